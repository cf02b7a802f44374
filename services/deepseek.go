package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultDeepSeekURL = "https://api.deepseek.com/v1"

const plannerSystemPrompt = `You are a storyboard planner for short animated pet videos.
Respond with ONLY a JSON array of segment objects — no preamble, no markdown, no explanation.

Each segment object must have:
- "id": integer, 1-based
- "duration_sec": number between 0.5 and 8.0
- "style": visual style keywords
- "shot": what happens in the frame
- "camera": camera language
- "story": the narrative beat
- "props_bg": non-empty array of background/prop labels
- "end_anchor": object with non-empty "pose", "facing", "expression",
  optional "prop_state" and "position_hint_norm" ({"x":0..1,"y":0..1})
- "consistency_flags": array of constraints the video must keep honoring`

// DeepSeekClient drafts storyboards via the DeepSeek chat API with a
// deterministic mock fallback.
type DeepSeekClient struct {
	model       string
	temperature float64
	mock        bool
	httpClient  *http.Client
}

// NewDeepSeekClient creates a planner client.
func NewDeepSeekClient(model string, temperature float64, mock bool, timeout time.Duration) *DeepSeekClient {
	return &DeepSeekClient{
		model:       model,
		temperature: temperature,
		mock:        mock,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// GenerateStoryboard returns raw storyboard segment objects. The real
// path tolerates code-fenced or prose-wrapped responses; anything that
// does not clean up into a JSON array is a hard error.
func (c *DeepSeekClient) GenerateStoryboard(ctx context.Context, originPrompt, description, styleBible string, targetDurationSec int) ([]map[string]any, error) {
	if c.mock {
		return mockStoryboard(originPrompt, targetDurationSec), nil
	}

	apiKey := os.Getenv("DEEPSEEK_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("DEEPSEEK_API_KEY not set")
	}
	baseURL := os.Getenv("DEEPSEEK_API_URL")
	if baseURL == "" {
		baseURL = defaultDeepSeekURL
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: plannerSystemPrompt},
			{Role: "user", Content: StoryboardPrompt(originPrompt, description, styleBible, targetDurationSec)},
		},
		Temperature: c.temperature,
	}
	text, err := postChat(ctx, c.httpClient, baseURL, apiKey, reqBody)
	if err != nil {
		return nil, fmt.Errorf("deepseek storyboard: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("deepseek response missing content")
	}

	cleaned := extractJSON(text)
	var storyboard []map[string]any
	if err := json.Unmarshal([]byte(cleaned), &storyboard); err != nil {
		if !strings.HasPrefix(strings.TrimSpace(cleaned), "[") {
			return nil, fmt.Errorf("deepseek storyboard response should be a JSON array of segments")
		}
		return nil, fmt.Errorf("decode deepseek response as JSON after cleaning: %w", err)
	}
	return storyboard, nil
}

// StoryboardPrompt renders the user prompt for the planner call.
func StoryboardPrompt(originPrompt, description, styleBible string, targetDurationSec int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan a storyboard for a %d second pet video.\n\n", targetDurationSec)
	fmt.Fprintf(&sb, "USER INTENT:\n%s\n\n", originPrompt)
	fmt.Fprintf(&sb, "PET DESCRIPTION:\n%s\n\n", description)
	fmt.Fprintf(&sb, "STYLE BIBLE:\n%s\n\n", styleBible)
	sb.WriteString("Respond ONLY with the JSON array. No markdown. No explanation.")
	return sb.String()
}

// extractJSON strips surrounding markdown fences, then takes the
// outermost [...] span (preferred) or {...} span. The ladder order is
// deliberate — planner output formats vary.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") {
		lines := strings.Split(s, "\n")
		if len(lines) >= 3 {
			s = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}
	if start, end := strings.Index(s, "["), strings.LastIndex(s, "]"); start != -1 && end > start {
		return s[start : end+1]
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

// mockStoryboard synthesizes 1-4 staged segments with a shared
// duration. The output is schema-valid by construction, and uses
// float64 numbers so it round-trips like parsed JSON.
func mockStoryboard(originPrompt string, targetDurationSec int) []map[string]any {
	origin := strings.TrimSpace(originPrompt)
	if origin == "" {
		origin = "a whimsical journey"
	}

	baseDuration := float64(targetDurationSec)
	if baseDuration < 24 {
		baseDuration = 24
	}
	segmentCount := int(math.Ceil(baseDuration / 10))
	if segmentCount < 1 {
		segmentCount = 1
	}
	if segmentCount > 4 {
		segmentCount = 4
	}
	perSegment := math.Round(baseDuration/float64(segmentCount)*100) / 100
	if perSegment > 8 {
		perSegment = 8
	}

	segments := make([]map[string]any, 0, segmentCount)
	for idx := 0; idx < segmentCount; idx++ {
		stage := idx + 1
		facing := "right three-quarter"
		expression := "excited grin"
		if stage == segmentCount {
			facing = "front"
			expression = "soft contentment"
		}
		segments = append(segments, map[string]any{
			"id":           float64(stage),
			"duration_sec": perSegment,
			"style":        styleForStage(stage),
			"shot":         shotForStage(stage, origin),
			"camera":       cameraForStage(stage),
			"story":        storyForStage(stage),
			"props_bg":     propsForStage(stage),
			"end_anchor": map[string]any{
				"pose":       poseForStage(stage),
				"facing":     facing,
				"expression": expression,
				"prop_state": "scarf trailing behind",
				"position_hint_norm": map[string]any{
					"x": 0.35 + math.Mod(float64(stage)*0.1, 0.3),
					"y": 0.4,
				},
			},
			"consistency_flags": []any{
				"scarf must stay visible",
				"coat color stays warm golden",
				"background glow stays soft",
			},
		})
	}
	return segments
}

func styleForStage(stage int) string {
	switch stage {
	case 1:
		return "whimsical calm fantasy"
	case 2:
		return "midair aurora burst"
	case 3:
		return "luminous chase through ruins"
	case 4:
		return "crescendo of floating lights"
	default:
		return "dreamy kinetic tableau"
	}
}

func shotForStage(stage int, origin string) string {
	var shot string
	switch stage {
	case 1:
		shot = "the pet pads across a misty morning meadow, stardust drifting around it"
	case 2:
		shot = "the pet springs onto floating stone steps, batting at glowing orbs"
	case 3:
		shot = "a dash across a mirror-still lake, its wake lighting up the night sky"
	case 4:
		shot = "the pet hovers before a gate of light, glancing back as energy ripples outward"
	default:
		shot = "a run through glowing mist"
	}
	return shot + ", echoing the intent: " + origin
}

func cameraForStage(stage int) string {
	switch stage {
	case 1:
		return "medium shot, slow dolly-in, gentle pan"
	case 2:
		return "wide shot, upward tilt following the leap"
	case 3:
		return "tracking shot, glide-cam orbit"
	case 4:
		return "close-up, slow orbit with rack focus"
	default:
		return "medium shot, handheld energy"
	}
}

func storyForStage(stage int) string {
	switch stage {
	case 1:
		return "the journey begins at first light"
	case 2:
		return "a playful discovery lifts the pet skyward"
	case 3:
		return "momentum builds into a joyful chase"
	case 4:
		return "the adventure settles into a warm farewell"
	default:
		return "the journey carries on"
	}
}

func propsForStage(stage int) []any {
	switch stage {
	case 1:
		return []any{"small red scarf", "dream-grass waves", "morning light shafts"}
	case 2:
		return []any{"small red scarf", "floating stone steps", "aurora energy orbs"}
	case 3:
		return []any{"small red scarf", "mirror lake", "starlight trail"}
	case 4:
		return []any{"small red scarf", "gate of light", "drifting dandelions"}
	default:
		return []any{"small red scarf"}
	}
}

func poseForStage(stage int) string {
	switch stage {
	case 1:
		return "front paw lifted, tail raised"
	case 2:
		return "mid-leap, limbs outstretched"
	case 3:
		return "low glide, claws skimming the water"
	case 4:
		return "hovering gaze, forepaws crossed"
	default:
		return "steady stance, watching the horizon"
	}
}
