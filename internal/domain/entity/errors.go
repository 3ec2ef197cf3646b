package entity

import "errors"

// Error taxonomy. Errors an LLM can observe and react to never surface as
// Go errors from the action/observation layer — they come back as
// error-shaped strings instead. The sentinels below are for the handful of
// failures that the core itself must react to structurally: deciding
// whether to keep looping, detach, or emit agent_error.
var (
	// ErrConfigMissing means a required setting (typically the API key)
	// was absent. No recovery; surfaced as agent_error.
	ErrConfigMissing = errors.New("config missing")

	// ErrNotAttached means a command was sent to a tab the Debugger
	// Channel does not currently hold an attached session for.
	ErrNotAttached = errors.New("debugger not attached to tab")

	// ErrLLMTransport wraps a failed LLM call that the loop cannot retry
	// around; it propagates up and ends the run.
	ErrLLMTransport = errors.New("llm transport error")

	// ErrStepBudgetExhausted is returned internally by the Agent Loop
	// when it hits its step cap without reaching a terminal tool or a
	// text-only response; callers turn it into a graceful exit, not a
	// crash.
	ErrStepBudgetExhausted = errors.New("step budget exhausted")

	// ErrUserAbort marks a run that ended because the cooperative abort
	// flag was observed at a checkpoint.
	ErrUserAbort = errors.New("run aborted by user")
)
