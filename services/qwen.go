// Package services wraps the three external generative-AI providers
// used by the pipeline. Every client carries a deterministic mock path
// selected at construction time, so offline runs stay fully testable.
package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pet-video-pipeline/types"
)

const defaultQwenURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// QwenClient obtains pet descriptions from Qwen-VL via DashScope's
// OpenAI-compatible endpoint, or from a deterministic local mock.
type QwenClient struct {
	model      string
	mock       bool
	httpClient *http.Client
}

// NewQwenClient creates a describer client. API credentials are read
// from the environment at call time, mirroring how the rest of the
// pipeline passes credentials through.
func NewQwenClient(model string, mock bool, timeout time.Duration) *QwenClient {
	return &QwenClient{
		model:      model,
		mock:       mock,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// DescribePet returns a structured natural-language breakdown of the
// reference images: breed and build, palette suggestions, markings,
// accessories, expression and pose keywords.
func (c *QwenClient) DescribePet(ctx context.Context, refs []types.Asset, originPrompt string) (string, error) {
	if c.mock {
		return mockDescription(refs, originPrompt), nil
	}

	apiKey := os.Getenv("QWEN_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("QWEN_API_KEY not set")
	}
	baseURL := os.Getenv("QWEN_API_URL")
	if baseURL == "" {
		baseURL = defaultQwenURL
	}

	content := make([]map[string]any, 0, len(refs)+1)
	for _, asset := range refs {
		dataURL, err := encodeImageDataURL(asset)
		if err != nil {
			return "", fmt.Errorf("encode reference %s: %w", asset.ID, err)
		}
		content = append(content, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": dataURL},
		})
	}
	content = append(content, map[string]any{
		"type": "text",
		"text": DescribePrompt(originPrompt),
	})

	reqBody := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: content}},
	}
	text, err := postChat(ctx, c.httpClient, baseURL, apiKey, reqBody)
	if err != nil {
		return "", fmt.Errorf("qwen describe: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("qwen response missing description content")
	}
	return strings.TrimSpace(text), nil
}

// DescribePrompt renders the description request sent to the describer.
func DescribePrompt(originPrompt string) string {
	base := strings.TrimSpace(originPrompt)
	if base == "" {
		base = "Describe this pet's visual characteristics."
	}
	return base + "\n" +
		"Cover these points:\n" +
		"- breed and build\n" +
		"- primary and secondary coat colors with 2-4 suggested HEX values\n" +
		"- markings and distinctive features\n" +
		"- ever-present accessories or markers\n" +
		"- common expression and pose keywords\n" +
		"Answer with rich bullet points."
}

// mockDescription derives a deterministic description from the
// reference filenames, so offline runs produce stable downstream text.
func mockDescription(refs []types.Asset, originPrompt string) string {
	seen := make(map[string]bool)
	var names []string
	for _, asset := range refs {
		stem := strings.TrimSuffix(filepath.Base(asset.LocalPath), filepath.Ext(asset.LocalPath))
		if !seen[stem] {
			seen[stem] = true
			names = append(names, stem)
		}
	}
	sort.Strings(names)

	joined := strings.Join(names, ", ")
	if joined == "" {
		joined = "pet"
	}
	intent := strings.TrimSpace(originPrompt)
	if intent == "" {
		intent = "a friendly fantasy scene"
	}

	lines := []string{
		"- Pet references: " + joined,
		"- Breed & build: small-to-medium fantasy companion, light on its feet",
		"- Suggested palette: " + guessPalette(names),
		"- Distinctive features: soft long coat, expressive face, knitted scarf always worn",
		"- Expression cues: eyes catch the light, movements carry rhythm",
		"- User intent cues: " + intent,
	}
	return strings.Join(lines, "\n")
}

// guessPalette picks a soft palette suggestion from the filenames.
func guessPalette(names []string) string {
	if len(names) == 0 {
		return "warm gold #D6A85E, oxblood #8B2F39, moon white #F1F5F9"
	}
	joined := strings.ToLower(strings.Join(names, " "))
	if strings.Contains(joined, "cat") || strings.Contains(joined, "kitten") {
		return "warm orange #D99058, cream #F6E7D8, starlight blue #5B7FA4"
	}
	if strings.Contains(joined, "dog") || strings.Contains(joined, "pup") {
		return "amber #C17F2B, snow white #F4F0EC, forest green #295943"
	}
	return "dream violet #A485E2, aurora teal #4BC6B9, coral pink #FF6F91"
}

func encodeImageDataURL(asset types.Asset) (string, error) {
	data, err := os.ReadFile(asset.LocalPath)
	if err != nil {
		return "", err
	}
	mimeType := mime.TypeByExtension("." + asset.Ext)
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// postChat sends an OpenAI-compatible chat completion request and
// returns the first choice's content.
func postChat(ctx context.Context, client *http.Client, baseURL, apiKey string, body chatRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBytes)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
