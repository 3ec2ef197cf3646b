package input

import "context"

// ResearchRunner drives the Research Orchestrator's three phases for one
// user prompt.
type ResearchRunner interface {
	Run(ctx context.Context, prompt string, progress ProgressFunc) (*RunResult, error)
}
