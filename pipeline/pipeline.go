// Package pipeline orchestrates the pet video generation flow: a fixed
// sequence of nodes, each reading and mutating one shared RunState.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pet-video-pipeline/assets"
	"pet-video-pipeline/config"
	"pet-video-pipeline/runlog"
	"pet-video-pipeline/services"
	"pet-video-pipeline/types"
)

// Generator wires the service clients and owns the node topology. It is
// the only component that knows the order of the stages.
type Generator struct {
	cfg      *config.Config
	store    *assets.Store
	runLog   *runlog.Logger
	qwen     *services.QwenClient
	deepseek *services.DeepSeekClient
	jimeng   *services.JimengClient
}

// RunOptions are the per-run inputs supplied by the caller.
type RunOptions struct {
	ImagePaths        []string
	OriginPrompt      string
	TargetDurationSec int
	FPS               int
}

// runRecord is the snapshot persisted alongside the run logs.
type runRecord struct {
	RunID       string          `json:"run_id"`
	StartedAt   string          `json:"started_at"`
	CompletedAt string          `json:"completed_at"`
	Error       string          `json:"error,omitempty"`
	State       *types.RunState `json:"state"`
}

// New builds a Generator from config. Service clients are created once
// and reused for every run.
func New(cfg *config.Config) (*Generator, error) {
	store, err := assets.NewStore(cfg.Paths.Assets)
	if err != nil {
		return nil, err
	}

	mock := cfg.Pipeline.MockGeneration
	return &Generator{
		cfg:    cfg,
		store:  store,
		runLog: runlog.New(cfg.Paths.Runs),
		qwen: services.NewQwenClient(
			cfg.Describe.Model,
			mock,
			time.Duration(cfg.Describe.TimeoutSec)*time.Second,
		),
		deepseek: services.NewDeepSeekClient(
			cfg.Planner.Model,
			cfg.Planner.Temperature,
			mock,
			time.Duration(cfg.Planner.TimeoutSec)*time.Second,
		),
		jimeng: services.NewJimengClient(
			store,
			mock,
			time.Duration(cfg.Media.TimeoutSec)*time.Second,
			time.Duration(cfg.Media.PollIntervalSec*float64(time.Second)),
			cfg.Media.MaxPollAttempts,
		),
	}, nil
}

// Run executes every node in order against a fresh RunState and returns
// the final state. The first node failure aborts the rest of the run.
func (g *Generator) Run(ctx context.Context, opts RunOptions) (*types.RunState, error) {
	runID := uuid.NewString()[:8]
	state := types.NewRunState()
	nodes := g.buildNodes(runID, opts)

	logrus.Infof("🎬 Pet video pipeline starting — Run ID: %s", runID)

	record := &runRecord{
		RunID:     runID,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		State:     state,
	}
	defer func() {
		record.CompletedAt = time.Now().UTC().Format(time.RFC3339)
		g.saveRecord(record)
	}()

	for i, node := range nodes {
		logrus.Infof("━━━ STAGE %d/%d: %s ━━━", i+1, len(nodes), node.Name())
		started := time.Now()
		if err := node.Run(ctx, state); err != nil {
			record.Error = fmt.Sprintf("%s: %v", node.Name(), err)
			return state, fmt.Errorf("%s: %w", node.Name(), err)
		}
		logrus.Infof("[pipeline] %s done in %.2fs", node.Name(), time.Since(started).Seconds())
	}

	logrus.Infof("✅ Pipeline complete — Run ID: %s", runID)
	return state, nil
}

// buildNodes is the single place that knows the pipeline topology.
func (g *Generator) buildNodes(runID string, opts RunOptions) []Node {
	base := func(name string) baseNode {
		return baseNode{name: name, runID: runID, log: g.runLog}
	}
	return []Node{
		&IngestAssets{
			baseNode:          base("IngestAssets"),
			store:             g.store,
			sourcePaths:       opts.ImagePaths,
			originPrompt:      opts.OriginPrompt,
			targetDurationSec: opts.TargetDurationSec,
			fps:               opts.FPS,
		},
		&DescribePet{baseNode: base("DescribePet"), qwen: g.qwen},
		&BuildStyleBible{baseNode: base("BuildStyleBible")},
		&DraftStoryboard{baseNode: base("DraftStoryboard"), deepseek: g.deepseek},
		&ValidateStoryboard{baseNode: base("ValidateStoryboard")},
		&PlanSegments{baseNode: base("PlanSegments")},
		&GenKeyframe{baseNode: base("GenKeyframe"), jimeng: g.jimeng},
		&PickKeyframe{baseNode: base("PickKeyframe")},
		&GenVideoSegment{baseNode: base("GenVideoSegment"), jimeng: g.jimeng},
		&QCVideoSegment{baseNode: base("QCVideoSegment")},
		&AssembleVideo{baseNode: base("AssembleVideo"), outputDir: g.cfg.Paths.Output},
		&ReportNode{baseNode: base("Report"), outputDir: g.cfg.Paths.Output},
	}
}

func (g *Generator) saveRecord(record *runRecord) {
	dir := filepath.Join(g.cfg.Paths.Runs, record.RunID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logrus.Warnf("[pipeline] could not create run dir: %v", err)
		return
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		logrus.Warnf("[pipeline] could not marshal run record: %v", err)
		return
	}
	path := filepath.Join(dir, "pipeline_state.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		logrus.Warnf("[pipeline] could not save %s: %v", path, err)
	}
}
