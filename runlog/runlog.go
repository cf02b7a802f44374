// Package runlog persists the effective prompt and structured response
// of every pipeline step under runs/<run_id>. The logs are write-only:
// the pipeline never reads them back.
package runlog

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Logger writes per-step artifacts keyed by run ID and step name.
type Logger struct {
	baseDir string
}

// New creates a run logger rooted at baseDir.
func New(baseDir string) *Logger {
	return &Logger{baseDir: baseDir}
}

// LogPrompt persists the raw prompt text for a step. Failures are
// logged and swallowed — observability must never abort a run.
func (l *Logger) LogPrompt(runID, step, prompt string) {
	path := filepath.Join(l.baseDir, runID, step+"-prompt.txt")
	l.write(path, []byte(prompt))
}

// LogResponse persists the structured response as indented JSON.
func (l *Logger) LogResponse(runID, step string, response any) {
	data, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		logrus.Warnf("[runlog] could not marshal response for %s/%s: %v", runID, step, err)
		return
	}
	path := filepath.Join(l.baseDir, runID, step+"-response.json")
	l.write(path, data)
}

func (l *Logger) write(path string, data []byte) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logrus.Warnf("[runlog] could not create log dir for %s: %v", path, err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		logrus.Warnf("[runlog] could not write %s: %v", path, err)
	}
}
