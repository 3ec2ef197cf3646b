package input

import (
	"context"

	"browsercore/internal/domain/entity"
)

// ProgressFunc receives short human-readable status lines as a run
// proceeds; it is the in-process analogue of the agent_progress event.
type ProgressFunc func(text string)

// RunResult is what a completed or gracefully-terminated run hands back.
// LastSnapshotText carries the most recent snapshot's raw page text even
// when the run ends early (cancelled or timed out) without a terminal
// tool call — the Research Orchestrator uses it to build a {status:
// timeout} sub-task result instead of an empty one.
type RunResult struct {
	FinalAnswer      string
	Transcript       []entity.Message
	Steps            int
	LastSnapshotText string
}

// AgentRunner drives a single Agent Loop — either the top-level single-tab
// agent or one research sub-task, depending on how it was constructed.
type AgentRunner interface {
	Run(ctx context.Context, task string, progress ProgressFunc) (*RunResult, error)
}
