package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"pet-video-pipeline/services"
	"pet-video-pipeline/types"
)

// styleBriefRunes caps how much of the style bible rides along on every
// keyframe call. The full bible already shaped the style image; the
// brief only nudges the generator.
const styleBriefRunes = 160

// GenKeyframe generates the keyframe chain for all planned segments.
// Segment one gets an opening and a closing frame; every later segment
// only adds its closing frame, anchored on the previous one, so N
// segments always produce N+1 keyframes.
type GenKeyframe struct {
	baseNode
	jimeng *services.JimengClient
}

func (n *GenKeyframe) Run(ctx context.Context, state *types.RunState) error {
	if len(state.Segments) == 0 {
		return fmt.Errorf("no planned segments to generate keyframes for")
	}

	styleBrief := truncateStyleBrief(state.StyleBible)
	descriptionContext := keyframeDescription(state.OriginPrompt, state.Description)
	n.logPrompt("Style brief: " + styleBrief + "\nDescription context: " + descriptionContext)

	if state.StyleRefImage == nil {
		styleImage, err := n.jimeng.GenerateStyleImage(ctx, state.Description, state.StyleBible, state.OriginPrompt, state.Assets)
		if err != nil {
			return fmt.Errorf("generate style reference image: %w", err)
		}
		state.StyleRefImage = &styleImage
		logrus.Infof("[keyframes] ✅ style reference image %s", styleImage.ID)
	}

	keyframes := make([]types.KeyframeResult, 0, len(state.Segments)+1)
	for i, segment := range state.Segments {
		if i == 0 {
			// the style reference rides in the payload; the opening
			// frame has no previous frame to anchor on
			payload := n.segmentPayload(state, segment, "start")
			opening, err := n.jimeng.GenerateKeyframe(ctx, 1, descriptionContext, styleBrief, payload, "")
			if err != nil {
				return fmt.Errorf("generate opening keyframe for segment %d: %w", segment.ID, err)
			}
			keyframes = append(keyframes, types.KeyframeResult{Index: 1, AssetID: opening.ID, LocalPath: opening.LocalPath})
		}

		prev := keyframes[len(keyframes)-1]
		payload := n.segmentPayload(state, segment, "end")
		closing, err := n.jimeng.GenerateKeyframe(ctx, prev.Index+1, descriptionContext, styleBrief, payload, prev.AssetID)
		if err != nil {
			return fmt.Errorf("generate closing keyframe for segment %d: %w", segment.ID, err)
		}
		keyframes = append(keyframes, types.KeyframeResult{Index: prev.Index + 1, AssetID: closing.ID, LocalPath: closing.LocalPath})
	}

	if len(keyframes) != len(state.Segments)+1 {
		return fmt.Errorf("keyframe chain out of step: %d keyframes for %d segments", len(keyframes), len(state.Segments))
	}
	state.Keyframes = keyframes

	n.logResponse(map[string]any{"keyframes": keyframes})
	logrus.Infof("[keyframes] ✅ %d keyframe(s) for %d segment(s)", len(keyframes), len(state.Segments))
	return nil
}

func (n *GenKeyframe) segmentPayload(state *types.RunState, segment types.Segment, phase string) map[string]any {
	anchorJSON, _ := json.Marshal(segment.EndAnchor)
	var anchor map[string]any
	_ = json.Unmarshal(anchorJSON, &anchor)

	payload := map[string]any{
		"segment_id":        segment.ID,
		"phase":             phase,
		"style":             segment.Style,
		"shot":              segment.Shot,
		"camera":            segment.Camera,
		"story":             segment.Story,
		"duration_sec":      segment.DurationSec,
		"props_bg":          segment.PropsBG,
		"consistency_flags": segment.ConsistencyFlags,
		"end_anchor":        anchor,
		"origin_prompt":     state.OriginPrompt,
		"segment_summary":   segment.Story,
	}
	if state.StyleRefImage != nil {
		payload["reference_asset_id"] = state.StyleRefImage.ID
	}
	return payload
}

func truncateStyleBrief(styleBible string) string {
	runes := []rune(styleBible)
	if len(runes) <= styleBriefRunes {
		return styleBible
	}
	return string(runes[:styleBriefRunes])
}

func keyframeDescription(originPrompt, description string) string {
	var parts []string
	if s := strings.TrimSpace(originPrompt); s != "" {
		parts = append(parts, "Original user intent: "+s)
	}
	if s := strings.TrimSpace(description); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

// PickKeyframe is the selection stage between keyframe generation and
// video generation. Generation currently yields a single candidate per
// slot, so selection passes the chain through unchanged; candidate
// scoring slots in here once the generator returns more than one take.
type PickKeyframe struct {
	baseNode
}

func (n *PickKeyframe) Run(ctx context.Context, state *types.RunState) error {
	n.logPrompt("Selecting the best keyframe candidate per slot.")

	if len(state.Keyframes) != len(state.Segments)+1 {
		return fmt.Errorf("expected %d keyframes, found %d", len(state.Segments)+1, len(state.Keyframes))
	}

	ids := make([]string, 0, len(state.Keyframes))
	for _, kf := range state.Keyframes {
		ids = append(ids, kf.AssetID)
	}
	n.logResponse(map[string]any{"selected": ids})
	logrus.Infof("[pick] ✅ kept %d keyframe(s)", len(ids))
	return nil
}
