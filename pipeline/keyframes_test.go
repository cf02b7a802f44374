package pipeline

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pet-video-pipeline/assets"
	"pet-video-pipeline/services"
	"pet-video-pipeline/types"
)

func keyframeNode(t *testing.T) *GenKeyframe {
	t.Helper()
	store, err := assets.NewStore(t.TempDir())
	require.NoError(t, err)
	return &GenKeyframe{
		baseNode: testBase(t, "GenKeyframe"),
		jimeng:   services.NewJimengClient(store, true, time.Second, time.Millisecond, 3),
	}
}

func keyframeState(segmentCount int) *types.RunState {
	state := types.NewRunState()
	state.OriginPrompt = "a cat explores a floating garden"
	state.Description = "- small golden cat with a red scarf"
	state.StyleBible = "warm gold base, soft backlight"
	for i := 1; i <= segmentCount; i++ {
		state.Segments = append(state.Segments, types.Segment{
			ID:          i,
			DurationSec: 6,
			Shot:        "the cat leaps between petals",
			EndAnchor: types.EndAnchor{
				Pose:       "mid-leap",
				Facing:     "right three-quarter",
				Expression: "excited grin",
			},
		})
	}
	return state
}

func TestSegmentPayloadCarriesEndAnchorOnBothPhases(t *testing.T) {
	node := keyframeNode(t)
	state := keyframeState(1)

	for _, phase := range []string{"start", "end"} {
		payload := node.segmentPayload(state, state.Segments[0], phase)

		anchor, ok := payload["end_anchor"].(map[string]any)
		require.True(t, ok, "%s-phase payload must carry the end anchor", phase)
		assert.Equal(t, "mid-leap", anchor["pose"])
		assert.Equal(t, phase, payload["phase"])
	}
}

func TestGenKeyframeOpeningFrameHasNoPreviousAnchor(t *testing.T) {
	node := keyframeNode(t)
	state := keyframeState(2)

	require.NoError(t, node.Run(context.Background(), state))
	require.Len(t, state.Keyframes, 3)

	opening, err := os.ReadFile(state.Keyframes[0].LocalPath)
	require.NoError(t, err)
	text := string(opening)
	assert.True(t, strings.HasPrefix(text, "[Keyframe #1]"))
	// the style reference rides inside the payload, not as a previous frame
	assert.NotContains(t, text, "Prev frame anchor:")
	assert.Contains(t, text, "end_anchor")

	closing, err := os.ReadFile(state.Keyframes[1].LocalPath)
	require.NoError(t, err)
	assert.Contains(t, string(closing), "Prev frame anchor: "+state.Keyframes[0].AssetID)
}
