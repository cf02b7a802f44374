package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"pet-video-pipeline/assets"
	"pet-video-pipeline/services"
	"pet-video-pipeline/types"
)

// Per-call price sheet for the cost estimate in the final report.
const (
	keyframeUnitCost = 0.04
	videoUnitCost    = 0.50
)

// GenVideoSegment renders one video per planned segment, each one
// spanning the segment's opening and closing keyframes.
type GenVideoSegment struct {
	baseNode
	jimeng *services.JimengClient
}

func (n *GenVideoSegment) Run(ctx context.Context, state *types.RunState) error {
	if len(state.Keyframes) != len(state.Segments)+1 {
		return fmt.Errorf("keyframe chain incomplete: %d keyframes for %d segments", len(state.Keyframes), len(state.Segments))
	}
	n.logPrompt(fmt.Sprintf("Rendering %d video segment(s) at %d fps.", len(state.Segments), state.FPS))

	videos := make([]types.Asset, 0, len(state.Segments))
	for i, segment := range state.Segments {
		first := state.Keyframes[i]
		last := state.Keyframes[i+1]
		payload := map[string]any{
			"shot":              segment.Shot,
			"camera":            segment.Camera,
			"story":             segment.Story,
			"style":             segment.Style,
			"props_bg":          segment.PropsBG,
			"consistency_flags": segment.ConsistencyFlags,
			"duration_sec":      segment.DurationSec,
		}

		video, err := n.jimeng.GenerateVideoSegment(ctx, segment.ID, payload, first.AssetID, last.AssetID, state.FPS)
		if err != nil {
			return fmt.Errorf("generate video for segment %d: %w", segment.ID, err)
		}
		videos = append(videos, video)
		logrus.Infof("[video] ✅ segment %d rendered as %s", segment.ID, video.ID)
	}
	state.Videos = videos

	n.logResponse(map[string]any{"videos": videos})
	return nil
}

// QCVideoSegment checks each rendered segment against its keyframe
// anchors. Text placeholder assets embed the anchor asset IDs, so those
// are verified literally; binary media has no cheap equivalent check
// and passes through. All failing segments are reported in one error.
type QCVideoSegment struct {
	baseNode
}

func (n *QCVideoSegment) Run(ctx context.Context, state *types.RunState) error {
	n.logPrompt("Checking rendered segments against their keyframe anchors.")

	var failed []string
	checked := 0
	for i, video := range state.Videos {
		segmentID := state.Segments[i].ID
		data, err := os.ReadFile(video.LocalPath)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%d (unreadable: %v)", segmentID, err))
			continue
		}
		if !utf8.Valid(data) {
			continue
		}
		checked++
		text := string(data)
		first := state.Keyframes[i].AssetID
		last := state.Keyframes[i+1].AssetID
		if !strings.Contains(text, first) || !strings.Contains(text, last) {
			failed = append(failed, fmt.Sprintf("%d", segmentID))
		}
	}

	if len(failed) > 0 {
		n.logResponse(map[string]any{"status": "failed", "segments": failed})
		return fmt.Errorf("video QC failed for segments: %s", strings.Join(failed, ", "))
	}

	n.logResponse(map[string]any{"status": "passed", "checked": checked, "total": len(state.Videos)})
	logrus.Infof("[qc] ✅ %d/%d segment(s) verified", checked, len(state.Videos))
	return nil
}

// AssembleVideo concatenates the segment videos into the final cut.
// Real media goes through the ffmpeg concat demuxer; the text
// placeholders from mock runs are stitched into a single readable
// transcript instead.
type AssembleVideo struct {
	baseNode
	outputDir string
}

func (n *AssembleVideo) Run(ctx context.Context, state *types.RunState) error {
	if len(state.Videos) == 0 {
		return fmt.Errorf("no segment videos to assemble")
	}
	n.logPrompt(fmt.Sprintf("Assembling %d segment(s) into the final video.", len(state.Videos)))

	if err := os.MkdirAll(n.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	var missing []string
	for _, video := range state.Videos {
		if _, err := os.Stat(video.LocalPath); err != nil {
			missing = append(missing, video.LocalPath)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("segment files missing: %s", strings.Join(missing, ", "))
	}

	// text placeholders never enter the concat manifest
	var final types.Asset
	var err error
	if binary := binarySegments(state.Videos); len(binary) > 0 {
		final, err = n.concatWithFFmpeg(ctx, binary)
	} else {
		final, err = n.concatText(state.Videos)
	}
	if err != nil {
		return err
	}
	state.FinalVideo = &final

	n.logResponse(map[string]any{"final_video": final})
	logrus.Infof("[assemble] ✅ final video at %s", final.LocalPath)
	return nil
}

// binarySegments filters out the text placeholder assets mock runs
// produce, leaving only real media.
func binarySegments(videos []types.Asset) []types.Asset {
	var binary []types.Asset
	for _, video := range videos {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(video.LocalPath), "."))
		if ext != "txt" && ext != "json" {
			binary = append(binary, video)
		}
	}
	return binary
}

func (n *AssembleVideo) concatWithFFmpeg(ctx context.Context, videos []types.Asset) (types.Asset, error) {
	manifest, err := os.CreateTemp(n.outputDir, "concat-*.txt")
	if err != nil {
		return types.Asset{}, fmt.Errorf("create concat manifest: %w", err)
	}
	manifestPath := manifest.Name()
	defer os.Remove(manifestPath)

	for _, video := range videos {
		abs, err := filepath.Abs(video.LocalPath)
		if err != nil {
			abs = video.LocalPath
		}
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		if _, err := fmt.Fprintf(manifest, "file '%s'\n", escaped); err != nil {
			manifest.Close()
			return types.Asset{}, fmt.Errorf("write concat manifest: %w", err)
		}
	}
	if err := manifest.Close(); err != nil {
		return types.Asset{}, fmt.Errorf("close concat manifest: %w", err)
	}

	outputPath := filepath.Join(n.outputDir, n.runID+"-final.mp4")
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-f", "concat", "-safe", "0",
		"-i", manifestPath,
		"-c", "copy",
		outputPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return types.Asset{}, fmt.Errorf("ffmpeg concat failed: %w\n%s", err, strings.TrimSpace(string(out)))
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return types.Asset{}, fmt.Errorf("read assembled video: %w", err)
	}
	return types.Asset{
		ID:        "final-" + n.runID,
		MediaType: "video",
		LocalPath: outputPath,
		Ext:       "mp4",
		SHA256:    assets.SHA256Hex(data),
	}, nil
}

func (n *AssembleVideo) concatText(videos []types.Asset) (types.Asset, error) {
	parts := make([]string, 0, len(videos))
	for _, video := range videos {
		data, err := os.ReadFile(video.LocalPath)
		if err != nil {
			return types.Asset{}, fmt.Errorf("read segment placeholder: %w", err)
		}
		parts = append(parts, string(data))
	}

	outputPath := filepath.Join(n.outputDir, n.runID+"-final.txt")
	content := []byte(strings.Join(parts, "\n\n"))
	if err := os.WriteFile(outputPath, content, 0o644); err != nil {
		return types.Asset{}, fmt.Errorf("write assembled placeholder: %w", err)
	}
	return types.Asset{
		ID:        "final-" + n.runID,
		MediaType: "video",
		LocalPath: outputPath,
		Ext:       "txt",
		SHA256:    assets.SHA256Hex(content),
	}, nil
}

// ReportNode summarises the run into the Report struct and a flat text
// file next to the final video.
type ReportNode struct {
	baseNode
	outputDir string
}

func (n *ReportNode) Run(ctx context.Context, state *types.RunState) error {
	n.logPrompt("Writing the run report.")

	report := &types.Report{
		AssetHash:    state.AssetHash,
		GlobalFPS:    state.FPS,
		Segments:     state.Segments,
		CostEstimate: float64(len(state.Keyframes))*keyframeUnitCost + float64(len(state.Videos))*videoUnitCost,
	}
	state.Report = report

	lines := []string{
		"asset_hash: " + report.AssetHash,
		fmt.Sprintf("global_fps: %d", report.GlobalFPS),
		fmt.Sprintf("segment_count: %d", len(report.Segments)),
		fmt.Sprintf("cost_estimate: %.2f", report.CostEstimate),
	}
	if state.FinalVideo != nil {
		lines = append(lines, "final_video: "+state.FinalVideo.LocalPath)
	}
	for _, segment := range report.Segments {
		lines = append(lines, fmt.Sprintf("segment %d: %.1fs, %s", segment.ID, segment.DurationSec, segment.Shot))
	}

	if err := os.MkdirAll(n.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	reportPath := filepath.Join(n.outputDir, n.runID+"-report.txt")
	if err := os.WriteFile(reportPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	n.logResponse(report)
	logrus.Infof("[report] ✅ report at %s", reportPath)
	return nil
}
