// Package prompts embeds the static system prompts the Agent Loop and
// Research Orchestrator send on every LLM call, so they ship inside the
// binary rather than as runtime config files.
package prompts

import (
	_ "embed"
)

//go:embed system.txt
var SingleTabSystemPrompt string

//go:embed decompose.txt
var DecomposePrompt string

//go:embed aggregate.txt
var AggregatePrompt string
