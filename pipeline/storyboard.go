package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"pet-video-pipeline/services"
	"pet-video-pipeline/types"
)

// DraftStoryboard asks the planner for raw storyboard segment objects.
type DraftStoryboard struct {
	baseNode
	deepseek *services.DeepSeekClient
}

func (n *DraftStoryboard) Run(ctx context.Context, state *types.RunState) error {
	promptPayload, _ := json.MarshalIndent(map[string]any{
		"origin_prompt":       state.OriginPrompt,
		"description":         state.Description,
		"style_bible":         state.StyleBible,
		"target_duration_sec": state.TargetDurationSec,
	}, "", "  ")
	n.logPrompt(string(promptPayload))

	storyboard, err := n.deepseek.GenerateStoryboard(ctx, state.OriginPrompt, state.Description, state.StyleBible, state.TargetDurationSec)
	if err != nil {
		return err
	}
	state.Storyboard = storyboard

	n.logResponse(map[string]any{"storyboard": storyboard})
	logrus.Infof("[storyboard] ✅ drafted %d raw segment(s)", len(storyboard))
	return nil
}

// ValidateStoryboard gatekeeps the raw planner output against the
// segment schema. It accumulates every violation before failing, so one
// bad response surfaces all of its problems at once. On success the
// storyboard passes through untouched.
type ValidateStoryboard struct {
	baseNode
}

func (n *ValidateStoryboard) Run(ctx context.Context, state *types.RunState) error {
	n.logPrompt("Validating storyboard against schema constraints.")

	var violations []string
	if len(state.Storyboard) == 0 {
		violations = append(violations, "storyboard must contain at least one segment object")
	}
	for _, raw := range state.Storyboard {
		if raw == nil {
			violations = append(violations, "storyboard entries must be objects")
			continue
		}
		id := raw["id"]

		duration, ok := raw["duration_sec"]
		if !ok || duration == nil {
			violations = append(violations, fmt.Sprintf("segment %v missing duration_sec", id))
		} else if value, numeric := asFloat(duration); !numeric {
			violations = append(violations, fmt.Sprintf("segment %v duration not numeric: %v", id, duration))
		} else if value < 0.5 || value > 8 {
			violations = append(violations, fmt.Sprintf("segment %v duration invalid: %v", id, duration))
		}

		anchor, isMap := raw["end_anchor"].(map[string]any)
		if !isMap {
			violations = append(violations, fmt.Sprintf("segment %v end_anchor must be an object", id))
		} else {
			for _, key := range []string{"pose", "facing", "expression"} {
				if asString(anchor[key]) == "" {
					violations = append(violations, fmt.Sprintf("segment %v missing end_anchor.%s", id, key))
				}
			}
		}

		if len(toStringSlice(raw["props_bg"])) == 0 {
			violations = append(violations, fmt.Sprintf("segment %v requires props_bg entries", id))
		}
	}

	if len(violations) > 0 {
		n.logResponse(map[string]any{"status": "failed", "errors": violations})
		return fmt.Errorf("storyboard validation failed: %s", strings.Join(violations, "; "))
	}

	n.logResponse(map[string]any{"status": "passed", "segment_count": len(state.Storyboard)})
	logrus.Infof("[validate] ✅ %d segment(s) pass schema checks", len(state.Storyboard))
	return nil
}

// PlanSegments normalizes the validated raw storyboard into Segment
// records and aggregates every segment's consistency flags into the
// run-wide ledger.
type PlanSegments struct {
	baseNode
}

func (n *PlanSegments) Run(ctx context.Context, state *types.RunState) error {
	n.logPrompt("Normalising storyboard into segment records.")

	segments := make([]types.Segment, 0, len(state.Storyboard))
	ledger := map[string][]string{"flags": {}}

	for _, raw := range state.Storyboard {
		anchorMap := coerceEndAnchor(raw["end_anchor"])
		anchor := types.EndAnchor{
			Pose:         asString(anchorMap["pose"]),
			Facing:       asString(anchorMap["facing"]),
			Expression:   asString(anchorMap["expression"]),
			PropState:    asString(anchorMap["prop_state"]),
			PositionHint: toFloatMap(anchorMap["position_hint_norm"]),
		}

		id := len(segments) + 1
		if value, ok := asFloat(raw["id"]); ok {
			id = int(value)
		}
		duration := 6.0
		if value, ok := asFloat(raw["duration_sec"]); ok {
			duration = value
		}

		segment := types.Segment{
			ID:               id,
			DurationSec:      duration,
			Style:            asString(raw["style"]),
			Shot:             asString(raw["shot"]),
			Camera:           asString(raw["camera"]),
			Story:            asString(raw["story"]),
			PropsBG:          toStringSlice(raw["props_bg"]),
			EndAnchor:        anchor,
			ConsistencyFlags: toStringSlice(raw["consistency_flags"]),
		}
		segments = append(segments, segment)
		ledger["flags"] = append(ledger["flags"], segment.ConsistencyFlags...)
	}

	state.Segments = segments
	state.ConsistencyLedger = ledger

	n.logResponse(map[string]any{"segments": segments, "consistency_ledger": ledger})
	logrus.Infof("[plan] ✅ %d segment(s), %d consistency flag(s)", len(segments), len(ledger["flags"]))
	return nil
}

// coerceEndAnchor normalizes an end_anchor value into a map. The
// fallback ladder runs structured → JSON string → key:value fragments,
// in that order; planner output formats vary and the later rungs only
// exist to salvage the sloppier ones.
func coerceEndAnchor(value any) map[string]any {
	switch anchor := value.(type) {
	case map[string]any:
		return anchor
	case string:
		text := strings.TrimSpace(anchor)
		if text == "" {
			return map[string]any{}
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(text), &parsed); err == nil {
			return parsed
		}
		candidates := map[string]any{}
		normalized := strings.NewReplacer("\n", ",", ";", ",").Replace(text)
		for _, chunk := range strings.Split(normalized, ",") {
			chunk = strings.TrimSpace(chunk)
			if chunk == "" {
				continue
			}
			var key, val string
			if k, v, found := strings.Cut(chunk, ":"); found {
				key, val = k, v
			} else if k, v, found := strings.Cut(chunk, "="); found {
				key, val = k, v
			} else {
				continue
			}
			key = strings.TrimSpace(key)
			if key != "" {
				candidates[key] = strings.TrimSpace(val)
			}
		}
		return candidates
	default:
		return map[string]any{}
	}
}

func asString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toStringSlice(value any) []string {
	switch list := value.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toFloatMap(value any) map[string]float64 {
	raw, ok := value.(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for key, item := range raw {
		if f, numeric := asFloat(item); numeric {
			out[key] = f
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
