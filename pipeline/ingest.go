package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"pet-video-pipeline/assets"
	"pet-video-pipeline/types"
)

// IngestAssets normalizes the caller's reference files into the managed
// asset cache and seeds the run-level parameters. A missing source path
// fails the whole node — there is no partial ingestion.
type IngestAssets struct {
	baseNode
	store             *assets.Store
	sourcePaths       []string
	originPrompt      string
	targetDurationSec int
	fps               int
}

func (n *IngestAssets) Run(ctx context.Context, state *types.RunState) error {
	summary, _ := json.MarshalIndent(map[string]any{
		"origin_prompt":       n.originPrompt,
		"target_duration_sec": n.targetDurationSec,
		"fps":                 n.fps,
		"source_paths":        n.sourcePaths,
	}, "", "  ")
	n.logPrompt(string(summary))

	ingested := make([]types.Asset, 0, len(n.sourcePaths))
	ids := make([]string, 0, len(n.sourcePaths))
	for _, source := range n.sourcePaths {
		raw, err := os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("read source %s: %w", source, err)
		}

		prepared, ext, width, height := assets.PrepareReferenceImage(source, raw)
		asset, err := n.store.Store(prepared, ext, "image")
		if err != nil {
			return fmt.Errorf("store %s: %w", source, err)
		}
		asset.Width = width
		asset.Height = height

		logrus.Infof("[ingest] %s → %s.%s (%dx%d)", source, asset.ID[:12], asset.Ext, width, height)
		ingested = append(ingested, asset)
		ids = append(ids, asset.ID)
	}

	state.Assets = ingested
	state.AssetHash = assets.SHA256Hex([]byte(strings.Join(ids, "")))
	state.OriginPrompt = n.originPrompt
	state.TargetDurationSec = n.targetDurationSec
	state.FPS = n.fps

	n.logResponse(map[string]any{
		"asset_hash": state.AssetHash,
		"assets":     ingested,
	})
	logrus.Infof("[ingest] ✅ %d asset(s), fingerprint %s", len(ingested), state.AssetHash[:12])
	return nil
}
