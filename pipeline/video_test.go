package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pet-video-pipeline/types"
)

func writeSegmentFile(t *testing.T, dir, name, content string) types.Asset {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return types.Asset{ID: name, MediaType: "video", LocalPath: path, Ext: "txt"}
}

func qcState(videos ...types.Asset) *types.RunState {
	state := types.NewRunState()
	state.Segments = make([]types.Segment, len(videos))
	for i := range state.Segments {
		state.Segments[i].ID = i + 1
	}
	state.Keyframes = make([]types.KeyframeResult, len(videos)+1)
	for i := range state.Keyframes {
		state.Keyframes[i] = types.KeyframeResult{Index: i + 1, AssetID: "kf" + string(rune('a'+i))}
	}
	state.Videos = videos
	return state
}

func TestQCVideoSegmentReportsEveryFailure(t *testing.T) {
	dir := t.TempDir()
	good := writeSegmentFile(t, dir, "seg1.txt", "anchors kfa and kfb present")
	badFirst := writeSegmentFile(t, dir, "seg2.txt", "only kfc here")
	badBoth := writeSegmentFile(t, dir, "seg3.txt", "no anchors at all")

	node := &QCVideoSegment{baseNode: testBase(t, "QCVideoSegment")}
	err := node.Run(context.Background(), qcState(good, badFirst, badBoth))

	require.Error(t, err)
	// failures are reported by storyboard segment id, not asset id
	assert.Equal(t, "video QC failed for segments: 2, 3", err.Error())
}

func TestQCVideoSegmentSkipsBinaryMedia(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg1.mp4")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x01}, 0644))
	binary := types.Asset{ID: "seg1", MediaType: "video", LocalPath: path, Ext: "mp4"}

	node := &QCVideoSegment{baseNode: testBase(t, "QCVideoSegment")}
	assert.NoError(t, node.Run(context.Background(), qcState(binary)))
}

func TestAssembleVideoJoinsPlaceholdersInOrder(t *testing.T) {
	dir := t.TempDir()
	state := types.NewRunState()
	state.Videos = []types.Asset{
		writeSegmentFile(t, dir, "seg1.txt", "first beat"),
		writeSegmentFile(t, dir, "seg2.txt", "second beat"),
	}

	node := &AssembleVideo{baseNode: testBase(t, "AssembleVideo"), outputDir: filepath.Join(dir, "out")}
	require.NoError(t, node.Run(context.Background(), state))

	require.NotNil(t, state.FinalVideo)
	assert.Equal(t, "final-testtest", state.FinalVideo.ID)
	assert.Equal(t, "txt", state.FinalVideo.Ext)

	content, err := os.ReadFile(state.FinalVideo.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "first beat\n\nsecond beat", string(content))
}

func TestAssembleVideoListsEveryMissingSegment(t *testing.T) {
	dir := t.TempDir()
	state := types.NewRunState()
	state.Videos = []types.Asset{
		{ID: "a", LocalPath: filepath.Join(dir, "gone1.txt")},
		{ID: "b", LocalPath: filepath.Join(dir, "gone2.txt")},
	}

	node := &AssembleVideo{baseNode: testBase(t, "AssembleVideo"), outputDir: filepath.Join(dir, "out")}
	err := node.Run(context.Background(), state)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone1.txt")
	assert.Contains(t, err.Error(), "gone2.txt")
}

func TestBinarySegmentsExcludesPlaceholders(t *testing.T) {
	videos := []types.Asset{
		{ID: "a", LocalPath: "/cache/a.txt"},
		{ID: "b", LocalPath: "/cache/b.mp4"},
		{ID: "c", LocalPath: "/cache/c.json"},
		{ID: "d", LocalPath: "/cache/d.MP4"},
	}

	binary := binarySegments(videos)

	require.Len(t, binary, 2)
	assert.Equal(t, "b", binary[0].ID)
	assert.Equal(t, "d", binary[1].ID)

	assert.Empty(t, binarySegments([]types.Asset{{LocalPath: "/cache/a.txt"}}))
}

func TestAssembleVideoRejectsEmptyInput(t *testing.T) {
	node := &AssembleVideo{baseNode: testBase(t, "AssembleVideo"), outputDir: t.TempDir()}
	err := node.Run(context.Background(), types.NewRunState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no segment videos")
}

func TestReportNodeWritesSummary(t *testing.T) {
	dir := t.TempDir()
	state := types.NewRunState()
	state.AssetHash = "cafebabe"
	state.FPS = 24
	state.Segments = []types.Segment{{ID: 1, DurationSec: 6, Shot: "a quiet meadow"}}
	state.Keyframes = []types.KeyframeResult{{Index: 1}, {Index: 2}}
	state.Videos = []types.Asset{{ID: "v1"}}
	state.FinalVideo = &types.Asset{LocalPath: filepath.Join(dir, "final.txt")}

	node := &ReportNode{baseNode: testBase(t, "Report"), outputDir: dir}
	require.NoError(t, node.Run(context.Background(), state))

	require.NotNil(t, state.Report)
	assert.Equal(t, "cafebabe", state.Report.AssetHash)
	assert.InDelta(t, 2*keyframeUnitCost+videoUnitCost, state.Report.CostEstimate, 1e-9)

	content, err := os.ReadFile(filepath.Join(dir, "testtest-report.txt"))
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "asset_hash: cafebabe")
	assert.Contains(t, text, "segment_count: 1")
	assert.Contains(t, text, "segment 1: 6.0s, a quiet meadow")
}
