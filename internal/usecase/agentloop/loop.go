// Package agentloop implements the reason-observe-act control loop of
// §4.4: it assembles prompts, invokes the LLM, dispatches tool calls
// through the Tool Catalog, and enforces termination and cancellation.
package agentloop

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"browsercore/internal/application/port/input"
	"browsercore/internal/application/port/output"
	"browsercore/internal/application/toolcatalog"
	"browsercore/internal/domain/agentrun"
	"browsercore/internal/domain/entity"
)

const (
	DefaultStepBudgetSingleTab = 30
	DefaultStepBudgetSubTask   = 20
	DefaultPruneK              = 6

	snapshotLoopThreshold = 3
)

var newTabSentinel = regexp.MustCompile(`__NEW_TAB__:(\d+)`)

// Config parameterizes one Loop: which tool catalog mode it runs, how
// many steps it gets, how much transcript history it keeps per LLM call,
// and the system prompt it opens with.
type Config struct {
	Mode         toolcatalog.Mode
	StepBudget   int
	PruneK       int
	SystemPrompt string
	Temperature  float32
}

var _ input.AgentRunner = (*Loop)(nil)

// Loop drives either the top-level single-tab agent or one research
// sub-task, depending on how Config.Mode and the initial tab were set.
type Loop struct {
	llm    output.LLMPort
	logger output.LoggerPort
	deps   toolcatalog.Deps
	abort  *agentrun.Handle
	cfg    Config
}

func New(llm output.LLMPort, deps toolcatalog.Deps, abort *agentrun.Handle, logger output.LoggerPort, cfg Config) *Loop {
	if cfg.StepBudget <= 0 {
		if cfg.Mode == toolcatalog.ModeSubTask {
			cfg.StepBudget = DefaultStepBudgetSubTask
		} else {
			cfg.StepBudget = DefaultStepBudgetSingleTab
		}
	}
	if cfg.PruneK <= 0 {
		cfg.PruneK = DefaultPruneK
	}
	return &Loop{llm: llm, deps: deps, abort: abort, logger: logger, cfg: cfg}
}

// Run drives the loop against task until a terminal tool fires, the LLM
// answers without tool calls, the step budget is exhausted, or the
// cooperative abort flag is observed. It starts with no tab and expects
// the LLM to call open_browser first; RunOnTab's initialTab lets a
// research sub-task start already pointed at its own tab.
func (l *Loop) Run(ctx context.Context, task string, progress input.ProgressFunc) (*input.RunResult, error) {
	return l.RunOnTab(ctx, task, 0, progress)
}

// RunOnTab is Run with an explicit starting tab, used by the Research
// Orchestrator's sub-task loops, each already bound to its own tab by
// Phase 2's createTab call.
func (l *Loop) RunOnTab(ctx context.Context, task string, initialTab entity.TabID, progress input.ProgressFunc) (*input.RunResult, error) {
	transcript := []entity.Message{{ID: uuid.NewString(), Role: entity.RoleUser, Content: task, Timestamp: time.Now()}}
	state := &toolcatalog.LoopState{ActiveTab: initialTab}

	// The finally discipline of §7/§8: a single-tab run detaches its tab
	// on every exit path (step budget, transport error, dispatch error,
	// implicit done, abort, or the terminal tool), not just the happy
	// path. A research sub-task's tab is deliberately left attached here
	// — the Research Orchestrator detaches every sub-task's tab together
	// after aggregation (§4.5 Phase 3), not one at a time as each
	// sub-task loop finishes.
	if l.cfg.Mode == toolcatalog.ModeSingleTab {
		defer func() {
			if state.ActiveTab != 0 {
				_ = l.deps.Registry.Detach(state.ActiveTab)
			}
		}()
	}

	consecutiveSnapshots := 0
	steps := 0

	for {
		if l.abort.Aborted() {
			transcript = append(transcript, entity.Message{Role: entity.RoleAssistant, Content: "⏹ Automation stopped by user."})
			_ = l.deps.Registry.DetachAll()
			return l.result(transcript, "⏹ Automation stopped by user.", steps, state), entity.ErrUserAbort
		}

		steps++
		if steps > l.cfg.StepBudget {
			const msg = "max steps reached"
			transcript = append(transcript, entity.Message{Role: entity.RoleAssistant, Content: msg})
			return l.result(transcript, msg, steps, state), entity.ErrStepBudgetExhausted
		}

		pruned := pruneTranscript(transcript, l.cfg.PruneK)
		l.logger.Debug("invoking llm", "step", steps, "transcriptTokens", countTranscriptTokens(pruned))

		resp, err := l.llm.Chat(ctx, output.ChatRequest{
			SystemPrompt: l.cfg.SystemPrompt,
			Messages:     pruned,
			Tools:        toolcatalog.Definitions(l.cfg.Mode),
			Temperature:  l.cfg.Temperature,
		})
		if err != nil {
			return l.result(transcript, "", steps, state), fmt.Errorf("%w: %w", entity.ErrLLMTransport, err)
		}

		resp.Message.ID = uuid.NewString()
		resp.Message.Role = entity.RoleAssistant
		resp.Message.Timestamp = time.Now()
		transcript = append(transcript, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			return l.result(transcript, resp.Message.Content, steps, state), nil
		}

		for _, tc := range resp.Message.ToolCalls {
			if l.abort.Aborted() {
				transcript = append(transcript, entity.Message{Role: entity.RoleAssistant, Content: "⏹ Automation stopped by user."})
				_ = l.deps.Registry.DetachAll()
				return l.result(transcript, "⏹ Automation stopped by user.", steps, state), entity.ErrUserAbort
			}

			resultText, terminal, derr := toolcatalog.Dispatch(ctx, l.cfg.Mode, l.deps, state, tc)
			if derr != nil {
				return l.result(transcript, "", steps, state), derr
			}

			if tc.Name == "take_snapshot" {
				consecutiveSnapshots++
				if consecutiveSnapshots >= snapshotLoopThreshold {
					resultText += "\n\n(You have taken several snapshots in a row without acting. Act on the current page or call the terminal tool if the task is complete.)"
				}
			} else {
				consecutiveSnapshots = 0
			}

			if toolcatalog.IsMutating(tc.Name) {
				time.Sleep(settleDelay(tc.Name, resultText))
				if snap, serr := l.deps.Observation.TakeSnapshot(ctx, state.ActiveTab); serr == nil {
					state.LastSnapshot = snap
					resultText += "\n\n" + toolcatalog.FormatSnapshot(snap)
				}
			}

			if m := newTabSentinel.FindStringSubmatch(resultText); m != nil {
				if id, convErr := strconv.ParseInt(m[1], 10, 64); convErr == nil {
					state.ActiveTab = entity.TabID(id)
				}
			}

			transcript = append(transcript, entity.Message{
				ID: uuid.NewString(), Role: entity.RoleTool, ToolCallID: tc.ID, ToolName: tc.Name,
				Content: resultText, Timestamp: time.Now(),
			})

			if progress != nil {
				progress(progressLine(tc.Name, state))
			}

			if terminal {
				return l.result(transcript, resultText, steps, state), nil
			}
		}
	}
}

func (l *Loop) result(transcript []entity.Message, finalAnswer string, steps int, state *toolcatalog.LoopState) *input.RunResult {
	lastText := ""
	if state.LastSnapshot != nil {
		lastText = state.LastSnapshot.RawText
	}
	return &input.RunResult{FinalAnswer: finalAnswer, Transcript: transcript, Steps: steps, LastSnapshotText: lastText}
}

// pruneTranscript retains every user message plus the most recent K
// assistant-led rounds (an assistant message and whatever tool-result
// messages follow it), dropping older rounds to cap token growth.
func pruneTranscript(transcript []entity.Message, k int) []entity.Message {
	var roundStarts []int
	for i, m := range transcript {
		if m.Role == entity.RoleAssistant {
			roundStarts = append(roundStarts, i)
		}
	}
	keepFrom := 0
	if len(roundStarts) > k {
		keepFrom = roundStarts[len(roundStarts)-k]
	}

	kept := make([]entity.Message, 0, len(transcript))
	for i, m := range transcript {
		if m.Role == entity.RoleUser || i >= keepFrom {
			kept = append(kept, m)
		}
	}
	return kept
}

// settleDelay returns how long to sleep between a mutating tool and its
// auto-re-snapshot. press_key gets a longer delay when its result
// indicates a navigation happened, since the new page needs time to
// settle; every other mutating tool gets a flat delay within the
// 800-1500ms band.
func settleDelay(toolName, resultText string) time.Duration {
	if toolName == "press_key" {
		if strings.Contains(resultText, "navigated") {
			return 1500 * time.Millisecond
		}
		return 300 * time.Millisecond
	}
	return 1000 * time.Millisecond
}

// progressLine renders the short human-readable status strings the
// Research Orchestrator forwards verbatim as a sub-task's progress.
func progressLine(toolName string, state *toolcatalog.LoopState) string {
	switch toolName {
	case "open_browser", "navigate":
		return "Navigating..."
	case "take_snapshot":
		n := 0
		if state.LastSnapshot != nil {
			n = len(state.LastSnapshot.Elements)
		}
		return fmt.Sprintf("Reading page (%d elements)", n)
	case "extract_data":
		return "Data extracted ✓"
	default:
		return toolName
	}
}

// IsGracefulTermination reports whether err represents one of the Agent
// Loop's own non-fatal exits (step budget, user abort) rather than a
// transport or dispatch failure a caller should surface as agent_error.
func IsGracefulTermination(err error) bool {
	return errors.Is(err, entity.ErrStepBudgetExhausted) || errors.Is(err, entity.ErrUserAbort)
}
