package types

// Asset is an image or video file managed by the pipeline's asset cache.
type Asset struct {
	ID        string `json:"asset_id"`
	MediaType string `json:"media_type"` // image | video
	LocalPath string `json:"local_path"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Ext       string `json:"ext,omitempty"`
	SHA256    string `json:"sha256,omitempty"`
}

// EndAnchor pins the pose and orientation a segment must end on.
type EndAnchor struct {
	Pose         string             `json:"pose"`
	Facing       string             `json:"facing"`
	Expression   string             `json:"expression"`
	PropState    string             `json:"prop_state,omitempty"`
	PositionHint map[string]float64 `json:"position_hint_norm,omitempty"`
}

// Segment is one storyboard beat, read-only once planned.
type Segment struct {
	ID               int       `json:"id"`
	DurationSec      float64   `json:"duration_sec"`
	Style            string    `json:"style"`
	Shot             string    `json:"shot"`
	Camera           string    `json:"camera"`
	Story            string    `json:"story"`
	PropsBG          []string  `json:"props_bg"`
	EndAnchor        EndAnchor `json:"end_anchor"`
	ConsistencyFlags []string  `json:"consistency_flags"`
}

// KeyframeResult records one generated keyframe. Indexes are 1-based:
// segment i is bounded by keyframes i and i+1.
type KeyframeResult struct {
	Index     int                `json:"index"`
	AssetID   string             `json:"asset_id"`
	LocalPath string             `json:"local_path"`
	Scores    map[string]float64 `json:"scores,omitempty"`
}

// Report is the run summary surfaced at the end of the pipeline.
type Report struct {
	AssetHash    string         `json:"asset_hash"`
	GlobalFPS    int            `json:"global_fps"`
	Segments     []Segment      `json:"segments"`
	CostEstimate float64        `json:"cost_estimate"`
	TimingsMS    map[string]int `json:"timings_ms,omitempty"`
}

// RunState is the single mutable aggregate threaded through every node.
// Each field is written by exactly one node; the orchestrator is the
// only holder for the duration of a run.
type RunState struct {
	Assets            []Asset             `json:"assets"`
	AssetHash         string              `json:"asset_hash"`
	OriginPrompt      string              `json:"origin_prompt"`
	TargetDurationSec int                 `json:"target_duration_sec"`
	FPS               int                 `json:"fps"`
	Description       string              `json:"description"`
	StyleBible        string              `json:"style_bible"`
	StyleRefImage     *Asset              `json:"style_ref_image,omitempty"`
	Storyboard        []map[string]any    `json:"storyboard"`
	Segments          []Segment           `json:"segments"`
	ConsistencyLedger map[string][]string `json:"consistency_ledger"`
	Keyframes         []KeyframeResult    `json:"keyframes"`
	Videos            []Asset             `json:"videos"`
	FinalVideo        *Asset              `json:"final_video,omitempty"`
	Report            *Report             `json:"report,omitempty"`
}

// NewRunState returns a state with the run-level defaults applied.
func NewRunState() *RunState {
	return &RunState{
		TargetDurationSec: 30,
		FPS:               24,
	}
}
