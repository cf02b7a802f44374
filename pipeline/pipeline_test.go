package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pet-video-pipeline/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Pipeline.MockGeneration = true
	cfg.Paths.Assets = filepath.Join(root, "assets")
	cfg.Paths.Runs = filepath.Join(root, "runs")
	cfg.Paths.Output = filepath.Join(root, "outputs")
	return cfg
}

func writePhoto(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("photo bytes for "+name), 0644))
	return path
}

func TestRunMockEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	photos := t.TempDir()
	first := writePhoto(t, photos, "cat_window.jpg")
	second := writePhoto(t, photos, "cat_sofa.jpg")

	gen, err := New(cfg)
	require.NoError(t, err)

	state, err := gen.Run(context.Background(), RunOptions{
		ImagePaths:        []string{first, second},
		OriginPrompt:      "my cat sails a paper boat through the northern lights",
		TargetDurationSec: 30,
		FPS:               24,
	})
	require.NoError(t, err)

	require.NotEmpty(t, state.Segments)
	assert.Len(t, state.Keyframes, len(state.Segments)+1)
	assert.Len(t, state.Videos, len(state.Segments))
	assert.NotEmpty(t, state.AssetHash)
	assert.NotNil(t, state.StyleRefImage)

	require.NotNil(t, state.FinalVideo)
	final, err := os.ReadFile(state.FinalVideo.LocalPath)
	require.NoError(t, err)
	text := string(final)
	for i := range state.Segments {
		assert.Contains(t, text, state.Keyframes[i].AssetID)
	}
	// mock placeholders are stitched in storyboard order
	assert.Less(t,
		strings.Index(text, "[Video Segment #1]"),
		strings.Index(text, "[Video Segment #2]"))

	require.NotNil(t, state.Report)
	assert.Equal(t, state.AssetHash, state.Report.AssetHash)
	assert.Equal(t, 24, state.Report.GlobalFPS)
	assert.Positive(t, state.Report.CostEstimate)
}

func TestRunMockIsRepeatable(t *testing.T) {
	cfg := testConfig(t)
	photos := t.TempDir()
	photo := writePhoto(t, photos, "dog_park.jpg")
	opts := RunOptions{
		ImagePaths:        []string{photo},
		OriginPrompt:      "a dog discovers a tiny dragon",
		TargetDurationSec: 30,
		FPS:               24,
	}

	gen, err := New(cfg)
	require.NoError(t, err)

	first, err := gen.Run(context.Background(), opts)
	require.NoError(t, err)
	second, err := gen.Run(context.Background(), opts)
	require.NoError(t, err)

	// identical inputs produce identical content-addressed assets
	assert.Equal(t, first.AssetHash, second.AssetHash)
	require.Len(t, second.Keyframes, len(first.Keyframes))
	for i := range first.Keyframes {
		assert.Equal(t, first.Keyframes[i].AssetID, second.Keyframes[i].AssetID)
	}
}

func TestRunWritesPerStageLogsAndRecord(t *testing.T) {
	cfg := testConfig(t)
	photos := t.TempDir()
	photo := writePhoto(t, photos, "bird.jpg")

	gen, err := New(cfg)
	require.NoError(t, err)

	_, err = gen.Run(context.Background(), RunOptions{
		ImagePaths:        []string{photo},
		OriginPrompt:      "a parrot conducts an orchestra",
		TargetDurationSec: 30,
		FPS:               24,
	})
	require.NoError(t, err)

	runDirs, err := filepath.Glob(filepath.Join(cfg.Paths.Runs, "*"))
	require.NoError(t, err)
	require.Len(t, runDirs, 1)
	runDir := runDirs[0]

	for _, name := range []string{
		"DraftStoryboard-prompt.txt",
		"DraftStoryboard-response.json",
		"ValidateStoryboard-response.json",
		"pipeline_state.json",
	} {
		_, err := os.Stat(filepath.Join(runDir, name))
		assert.NoError(t, err, "expected %s in run dir", name)
	}

	reports, err := filepath.Glob(filepath.Join(cfg.Paths.Output, "*-report.txt"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	report, err := os.ReadFile(reports[0])
	require.NoError(t, err)
	assert.Contains(t, string(report), "asset_hash: ")
	assert.Contains(t, string(report), "global_fps: 24")
}

func TestRunFailsWhenSourcePhotoMissing(t *testing.T) {
	cfg := testConfig(t)

	gen, err := New(cfg)
	require.NoError(t, err)

	_, err = gen.Run(context.Background(), RunOptions{
		ImagePaths:        []string{filepath.Join(t.TempDir(), "nope.jpg")},
		OriginPrompt:      "anything",
		TargetDurationSec: 30,
		FPS:               24,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IngestAssets")

	// the failed run still leaves a record behind
	records, globErr := filepath.Glob(filepath.Join(cfg.Paths.Runs, "*", "pipeline_state.json"))
	require.NoError(t, globErr)
	assert.Len(t, records, 1)
}
