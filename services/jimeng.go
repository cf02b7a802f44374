package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pet-video-pipeline/assets"
	"pet-video-pipeline/types"
)

const (
	jimengI2VReqKey      = "jimeng_i2v_first_tail_v30_1080"
	jimengKeyframeReqKey = "jimeng_i2i_v30"

	// 1x1 transparent PNG used when no reference image is available.
	fallbackSeedImageB64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR4nGNgYAAAAAMAASsJTYQAAAAASUVORK5CYII="
)

// JimengClient generates keyframe images and video segments through the
// Jimeng CV submit-and-poll API. In mock mode it fabricates
// deterministic text placeholder assets so the pipeline stays
// inspectable without network access or the real renderer.
type JimengClient struct {
	store           *assets.Store
	mock            bool
	httpClient      *http.Client
	pollInterval    time.Duration
	maxPollAttempts int
}

// NewJimengClient creates a media generator bound to the asset store.
func NewJimengClient(store *assets.Store, mock bool, timeout, pollInterval time.Duration, maxPollAttempts int) *JimengClient {
	return &JimengClient{
		store:           store,
		mock:            mock,
		httpClient:      &http.Client{Timeout: timeout},
		pollInterval:    pollInterval,
		maxPollAttempts: maxPollAttempts,
	}
}

// GenerateStyleImage creates the stylised character sheet used as the
// visual anchor for every later generation call.
func (c *JimengClient) GenerateStyleImage(ctx context.Context, description, styleBible, originPrompt string, refs []types.Asset) (types.Asset, error) {
	var contextParts []string
	if s := strings.TrimSpace(originPrompt); s != "" {
		contextParts = append(contextParts, s)
	}
	if s := strings.TrimSpace(description); s != "" {
		contextParts = append(contextParts, s)
	}
	descriptionContext := strings.Join(contextParts, "\n")

	referenceID := ""
	for _, asset := range refs {
		if asset.ID != "" {
			referenceID = asset.ID
			break
		}
	}

	if c.mock {
		lines := []string{
			"[Pet Style Image]",
			"Origin prompt: " + originPrompt,
			"Description context: " + descriptionContext,
			"Style bible: " + styleBible,
		}
		if referenceID != "" {
			lines = append(lines, "Reference asset: "+referenceID)
		}
		return c.storeMock(strings.Join(lines, "\n"), "image")
	}

	payload := map[string]any{
		"segment_id":       "pet_style",
		"prompt":           "Produce a stylised reference sheet of the pet character, subject only, no background, to keep later generations consistent.",
		"style":            styleBible,
		"camera":           "half-body and full-body model sheet, soft light, stable pose",
		"props_bg":         []any{"the character's signature accessory and any visible background motifs"},
		"consistency_flags": []any{
			"keep accessory placement and color",
			"keep coat texture and primary/secondary color steps",
		},
		"segment_summary": firstNonEmpty(originPrompt, description, "pet character style reference"),
		"description":     description,
		"origin_prompt":   originPrompt,
		"emphasis":        "emphasise accessories, coat color and body shape as the anchor for later keyframes.",
	}
	if referenceID != "" {
		payload["reference_asset_id"] = referenceID
	}

	form := c.buildKeyframeForm(descriptionContext, truncateRunes(styleBible, 200), payload, "")
	return c.submitAndCollect(ctx, form, "image", "png")
}

// GenerateKeyframe produces one keyframe image. prevAssetID anchors the
// frame to the previous keyframe; empty means the style reference (or
// the neutral seed) is the only anchor.
func (c *JimengClient) GenerateKeyframe(ctx context.Context, index int, description, styleBrief string, payload map[string]any, prevAssetID string) (types.Asset, error) {
	if c.mock {
		lines := []string{
			fmt.Sprintf("[Keyframe #%d]", index),
			"Description: " + description,
			"Style brief: " + styleBrief,
			"Segment details: " + renderPayload(payload),
		}
		if prevAssetID != "" {
			lines = append(lines, "Prev frame anchor: "+prevAssetID)
		}
		return c.storeMock(strings.Join(lines, "\n"), "image")
	}

	form := c.buildKeyframeForm(description, styleBrief, payload, prevAssetID)
	return c.submitAndCollect(ctx, form, "image", "png")
}

// GenerateVideoSegment produces one video asset spanning the segment's
// first and last keyframes.
func (c *JimengClient) GenerateVideoSegment(ctx context.Context, segmentID int, payload map[string]any, firstFrameID, lastFrameID string, fps int) (types.Asset, error) {
	if c.mock {
		content := strings.Join([]string{
			fmt.Sprintf("[Video Segment #%d]", segmentID),
			fmt.Sprintf("FPS: %d", fps),
			"First frame asset: " + firstFrameID,
			"Last frame asset: " + lastFrameID,
			"Payload: " + renderPayload(payload),
		}, "\n")
		return c.storeMock(content, "video")
	}

	form, err := c.buildVideoForm(payload, firstFrameID, lastFrameID, fps)
	if err != nil {
		return types.Asset{}, err
	}
	return c.submitAndCollect(ctx, form, "video", "mp4")
}

func (c *JimengClient) storeMock(content, mediaType string) (types.Asset, error) {
	return c.store.Store([]byte(content), "txt", mediaType)
}

// renderPayload serializes a payload map deterministically (JSON sorts
// object keys), so mock assets with identical inputs hash identically.
func renderPayload(payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}

// --- real API path ---

type jimengSubmitResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

type jimengResultResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status           string   `json:"status"`
		VideoURL         string   `json:"video_url"`
		ImageURL         string   `json:"image_url"`
		ImageURLs        []string `json:"image_urls"`
		BinaryDataBase64 []string `json:"binary_data_base64"`
	} `json:"data"`
}

func (c *JimengClient) creds() (apiKey, baseURL string, err error) {
	apiKey = os.Getenv("JIMENG_API_KEY")
	baseURL = os.Getenv("JIMENG_API_URL")
	if apiKey == "" || baseURL == "" {
		return "", "", fmt.Errorf("JIMENG_API_KEY or JIMENG_API_URL not set")
	}
	return apiKey, baseURL, nil
}

func (c *JimengClient) buildKeyframeForm(description, styleBrief string, payload map[string]any, prevAssetID string) map[string]any {
	var referenceIDs []string
	if prevAssetID != "" {
		referenceIDs = append(referenceIDs, prevAssetID)
	}
	for _, key := range []string{"reference_asset_id", "seed_image_asset_id"} {
		if v, ok := payload[key].(string); ok && v != "" {
			referenceIDs = append(referenceIDs, v)
		}
	}

	seedImage := fallbackSeedImageB64
	for _, id := range referenceIDs {
		if path := c.store.Resolve(id); path != "" {
			if data, err := os.ReadFile(path); err == nil {
				seedImage = base64.StdEncoding.EncodeToString(data)
				break
			}
		}
	}

	return map[string]any{
		"req_key":            jimengKeyframeReqKey,
		"binary_data_base64": []string{seedImage},
		"prompt":             composeKeyframePrompt(description, styleBrief, payload),
		"seed":               -1,
		"use_rephraser":      true,
	}
}

func (c *JimengClient) buildVideoForm(payload map[string]any, firstFrameID, lastFrameID string, fps int) (map[string]any, error) {
	binaries := make([]string, 0, 2)
	for _, anchor := range []struct{ id, label string }{
		{firstFrameID, "first frame"},
		{lastFrameID, "last frame"},
	} {
		path := c.store.Resolve(anchor.id)
		if path == "" {
			return nil, fmt.Errorf("no cached asset for %s: %s", anchor.label, anchor.id)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s asset: %w", anchor.label, err)
		}
		binaries = append(binaries, base64.StdEncoding.EncodeToString(data))
	}

	duration, _ := payload["duration_sec"].(float64)
	return map[string]any{
		"req_key":            jimengI2VReqKey,
		"binary_data_base64": binaries,
		"prompt":             composeSegmentPrompt(payload),
		"seed":               -1,
		"frames":             selectFrameCount(duration, fps),
	}, nil
}

// selectFrameCount snaps the requested length onto the API's supported
// frame counts.
func selectFrameCount(durationSec float64, fps int) int {
	valid := []int{121, 241}
	if durationSec <= 0 {
		return valid[0]
	}
	approx := int(math.Round(durationSec*float64(fps))) + 1
	best := valid[0]
	for _, option := range valid[1:] {
		if abs(option-approx) < abs(best-approx) {
			best = option
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// composeSegmentPrompt flattens a segment payload into the prompt text
// the generator receives: phase framing first, then the labelled
// style/shot/camera/props/consistency fields, then the end anchor.
func composeSegmentPrompt(payload map[string]any) string {
	if prompt, ok := payload["prompt"].(string); ok && strings.TrimSpace(prompt) != "" {
		return strings.TrimSpace(prompt)
	}

	var parts []string
	if phase, ok := payload["phase"].(string); ok && phase != "" {
		label := "closing frame"
		instruction := "the next segment opens on this exact frame, keep character design, pose and set dressing continuous."
		if phase == "start" {
			label = "opening frame"
			instruction = "this frame opens the segment, let the action begin naturally."
		}
		if id, ok := payload["segment_id"]; ok {
			parts = append(parts, fmt.Sprintf("Keyframe position: segment %v %s. %s", id, label, instruction))
		} else {
			parts = append(parts, fmt.Sprintf("Keyframe position: %s. %s", label, instruction))
		}
	}

	fields := []struct{ key, label string }{
		{"style", "Visual style"},
		{"shot", "Scene"},
		{"camera", "Camera language"},
		{"props_bg", "Props and background"},
		{"consistency_flags", "Consistency"},
	}
	for _, field := range fields {
		rendered := renderValue(payload[field.key])
		if rendered != "" {
			parts = append(parts, field.label+": "+rendered)
		}
	}

	if anchor, ok := payload["end_anchor"]; ok && anchor != nil {
		parts = append(parts, "End pose: "+renderValue(anchor))
	}
	if description, ok := payload["description"].(string); ok && description != "" {
		parts = append(parts, description)
	}

	if len(parts) > 0 {
		return strings.Join(parts, " | ")
	}
	if summary, ok := payload["segment_summary"].(string); ok && summary != "" {
		return summary
	}
	return "a whimsical pet short"
}

func composeKeyframePrompt(description, styleBrief string, payload map[string]any) string {
	var parts []string
	if s := strings.TrimSpace(description); s != "" {
		parts = append(parts, "Character design: "+s)
	}
	if s := strings.TrimSpace(styleBrief); s != "" {
		parts = append(parts, "Style summary: "+s)
	}
	if segmentPrompt := composeSegmentPrompt(payload); segmentPrompt != "" {
		parts = append(parts, segmentPrompt)
	}
	if emphasis, ok := payload["emphasis"].(string); ok && emphasis != "" {
		parts = append(parts, emphasis)
	}
	if len(parts) == 0 {
		return "an expressive pet character close-up"
	}
	return strings.Join(parts, "\n")
}

func renderValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	case []string:
		return strings.Join(value, ", ")
	case []any:
		items := make([]string, 0, len(value))
		for _, item := range value {
			if s := renderValue(item); s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, ", ")
	case map[string]any:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := renderValue(value[k]); s != "" {
				items = append(items, k+"="+s)
			}
		}
		return strings.Join(items, ", ")
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", value))
	}
}

// submitAndCollect submits a generation task, polls its status within
// the attempt budget, then stores the resulting media bytes.
func (c *JimengClient) submitAndCollect(ctx context.Context, form map[string]any, mediaType, defaultExt string) (types.Asset, error) {
	apiKey, baseURL, err := c.creds()
	if err != nil {
		return types.Asset{}, err
	}

	var submitted jimengSubmitResponse
	if err := c.postJSON(ctx, baseURL+"/cv_sync2async_submit_task", apiKey, form, &submitted); err != nil {
		return types.Asset{}, fmt.Errorf("submit generation task: %w", err)
	}
	if submitted.Code != 0 && submitted.Code != 10000 {
		return types.Asset{}, fmt.Errorf("generation service error [%d]: %s", submitted.Code, submitted.Message)
	}
	if submitted.Data.TaskID == "" {
		return types.Asset{}, fmt.Errorf("submit response missing task_id")
	}

	query := map[string]any{
		"req_key": form["req_key"],
		"task_id": submitted.Data.TaskID,
	}

	for attempt := 0; attempt < c.maxPollAttempts; attempt++ {
		var result jimengResultResponse
		if err := c.postJSON(ctx, baseURL+"/cv_sync2async_get_result", apiKey, query, &result); err != nil {
			return types.Asset{}, fmt.Errorf("poll generation task: %w", err)
		}
		if result.Code != 0 && result.Code != 10000 {
			return types.Asset{}, fmt.Errorf("generation service error [%d]: %s", result.Code, result.Message)
		}

		mediaURL := firstNonEmpty(result.Data.VideoURL, result.Data.ImageURL)
		if mediaURL == "" && len(result.Data.ImageURLs) > 0 {
			mediaURL = result.Data.ImageURLs[0]
		}
		var blob string
		if len(result.Data.BinaryDataBase64) > 0 {
			blob = result.Data.BinaryDataBase64[0]
		}

		switch strings.ToLower(result.Data.Status) {
		case "done":
			if mediaURL != "" || blob != "" {
				return c.collectResult(ctx, mediaURL, blob, mediaType, defaultExt)
			}
		case "failed", "error", "not_found", "expired":
			message := result.Message
			if message == "" {
				message = "task failed"
			}
			return types.Asset{}, fmt.Errorf("generation task failed with status %s: %s", result.Data.Status, message)
		}
		if mediaURL != "" || blob != "" {
			return c.collectResult(ctx, mediaURL, blob, mediaType, defaultExt)
		}

		select {
		case <-ctx.Done():
			return types.Asset{}, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}

	return types.Asset{}, fmt.Errorf("generation task not ready after %d poll attempts", c.maxPollAttempts)
}

func (c *JimengClient) collectResult(ctx context.Context, mediaURL, blob, mediaType, defaultExt string) (types.Asset, error) {
	ext := defaultExt
	var binary []byte
	if blob != "" {
		decoded, err := base64.StdEncoding.DecodeString(blob)
		if err != nil {
			return types.Asset{}, fmt.Errorf("decode generation payload: %w", err)
		}
		binary = decoded
	} else {
		data, err := c.download(ctx, mediaURL)
		if err != nil {
			return types.Asset{}, fmt.Errorf("download generation result: %w", err)
		}
		binary = data
		if fromURL := assets.GuessExtension(strings.SplitN(filepath.Base(mediaURL), "?", 2)[0]); fromURL != "" {
			ext = fromURL
		}
	}
	return c.store.Store(binary, ext, mediaType)
}

func (c *JimengClient) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d fetching media", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *JimengClient) postJSON(ctx context.Context, url, apiKey string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBytes)))
	}
	return json.Unmarshal(respBytes, out)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
