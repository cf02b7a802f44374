package pipeline

import (
	"context"

	"pet-video-pipeline/runlog"
	"pet-video-pipeline/types"
)

// Node is one stage of the pipeline. Each node reads the fields earlier
// nodes wrote, mutates the fields it owns, and nothing else — every
// RunState field has exactly one writer.
type Node interface {
	Name() string
	Run(ctx context.Context, state *types.RunState) error
}

// baseNode carries the run identity and log sink every node shares.
type baseNode struct {
	name  string
	runID string
	log   *runlog.Logger
}

func (b baseNode) Name() string {
	return b.name
}

func (b baseNode) logPrompt(prompt string) {
	b.log.LogPrompt(b.runID, b.name, prompt)
}

func (b baseNode) logResponse(response any) {
	b.log.LogResponse(b.runID, b.name, response)
}
