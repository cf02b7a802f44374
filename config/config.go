package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Describe DescribeConfig `yaml:"describe"`
	Planner  PlannerConfig  `yaml:"planner"`
	Media    MediaConfig    `yaml:"media"`
	Upload   UploadConfig   `yaml:"upload"`
	Paths    PathsConfig    `yaml:"paths"`
}

type PipelineConfig struct {
	MockGeneration    bool `yaml:"mock_generation"`
	TargetDurationSec int  `yaml:"target_duration_sec"`
	FPS               int  `yaml:"fps"`
}

type DescribeConfig struct {
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type PlannerConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

type MediaConfig struct {
	TimeoutSec      int     `yaml:"timeout_sec"`
	PollIntervalSec float64 `yaml:"poll_interval_sec"`
	MaxPollAttempts int     `yaml:"max_poll_attempts"`
}

type UploadConfig struct {
	Visibility        string `yaml:"visibility"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	DefaultLanguage   string `yaml:"default_language"`
	CategoryID        string `yaml:"youtube_category_id"`
}

type PathsConfig struct {
	Assets string `yaml:"assets"`
	Runs   string `yaml:"runs"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no config.yaml exists.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MockGeneration:    true,
			TargetDurationSec: 30,
			FPS:               24,
		},
		Describe: DescribeConfig{
			Model:      "qwen-vl-plus",
			TimeoutSec: 60,
		},
		Planner: PlannerConfig{
			Model:       "deepseek-chat",
			Temperature: 0.6,
			TimeoutSec:  60,
		},
		Media: MediaConfig{
			TimeoutSec:      120,
			PollIntervalSec: 2.0,
			MaxPollAttempts: 300,
		},
		Upload: UploadConfig{
			Visibility:      "private",
			DefaultLanguage: "en",
			CategoryID:      "15",
		},
		Paths: PathsConfig{
			Assets: "assets",
			Runs:   "runs",
			Output: "outputs",
		},
	}
}

// Load reads config.yaml over the defaults, then applies env overrides.
// A missing file is not an error — defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays the PETGEN_* environment variables. API keys are
// read by the service clients at call time, not here.
func (c *Config) applyEnv() {
	if v := os.Getenv("PETGEN_ASSETS_DIR"); v != "" {
		c.Paths.Assets = v
	}
	if v := os.Getenv("PETGEN_RUNS_DIR"); v != "" {
		c.Paths.Runs = v
	}
	if v := os.Getenv("PETGEN_OUTPUT_DIR"); v != "" {
		c.Paths.Output = v
	}
	if v := os.Getenv("PETGEN_MOCK"); v != "" {
		c.Pipeline.MockGeneration = parseBool(v)
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
