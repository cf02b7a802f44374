package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"pet-video-pipeline/services"
	"pet-video-pipeline/types"
)

// DescribePet asks the vision describer for a structured breakdown of
// the reference images.
type DescribePet struct {
	baseNode
	qwen *services.QwenClient
}

func (n *DescribePet) Run(ctx context.Context, state *types.RunState) error {
	prompt := services.DescribePrompt(state.OriginPrompt)
	n.logPrompt(prompt)

	description, err := n.qwen.DescribePet(ctx, state.Assets, state.OriginPrompt)
	if err != nil {
		return err
	}
	state.Description = description

	n.logResponse(map[string]any{"description": description})
	logrus.Infof("[describe] ✅ description ready (%d chars)", len(description))
	return nil
}

// BuildStyleBible derives the style brief from the description and the
// origin prompt. Pure template transform, no external call.
type BuildStyleBible struct {
	baseNode
}

func (n *BuildStyleBible) Run(ctx context.Context, state *types.RunState) error {
	n.logPrompt("Composing style bible from description and origin prompt.")

	state.StyleBible = services.ComposeStyleBible(state.Description, state.OriginPrompt)

	n.logResponse(map[string]any{"style_bible": state.StyleBible})
	logrus.Infof("[stylebible] ✅ style bible ready (%d chars)", len(state.StyleBible))
	return nil
}
