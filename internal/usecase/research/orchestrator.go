// Package research implements the Research Orchestrator of §4.5: a
// three-phase map-reduce that decomposes one prompt into parallel
// per-tab sub-tasks, runs each as its own Agent Loop, and synthesizes
// their results into a single answer.
package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"browsercore/internal/application/port/input"
	"browsercore/internal/application/port/output"
	"browsercore/internal/application/toolcatalog"
	"browsercore/internal/domain/agentrun"
	"browsercore/internal/domain/entity"
	"browsercore/internal/usecase/agentloop"
)

const (
	subTaskSettleDelay = 2 * time.Second
	subTaskWallClock   = 90 * time.Second
	subTaskDataCap     = 2000
)

// Prompts bundles the two system prompts the orchestrator's own LLM
// calls use, kept separate from the Agent Loop's system prompt since
// decomposition and aggregation are structurally different tasks.
type Prompts struct {
	Decompose string
	Aggregate string
}

// Orchestrator drives the three phases against one Deps, sharing the
// process-scoped abort flag with any single-tab agent the same process
// also runs.
type Orchestrator struct {
	llm     output.LLMPort
	deps    toolcatalog.Deps
	abort   *agentrun.Handle
	logger  output.LoggerPort
	prompts Prompts
}

func New(llm output.LLMPort, deps toolcatalog.Deps, abort *agentrun.Handle, logger output.LoggerPort, prompts Prompts) *Orchestrator {
	return &Orchestrator{llm: llm, deps: deps, abort: abort, logger: logger, prompts: prompts}
}

// Run executes all three phases. When Phase 1 decides prompt is not a
// research task, it returns immediately with no tabs created and a
// message steering the caller back to the single-tab agent, per the
// decomposition fallback case.
func (o *Orchestrator) Run(ctx context.Context, prompt string, progress input.ProgressFunc) (*input.RunResult, error) {
	plan := decompose(ctx, o.llm, o.prompts.Decompose, prompt)
	if !plan.IsResearch {
		return &input.RunResult{
			FinalAnswer: "This doesn't look like a multi-source research task. Try again in agent mode instead.",
		}, nil
	}

	if progress != nil {
		progress(fmt.Sprintf("Decomposed into %d sources", len(plan.SubTasks)))
	}

	results := o.runSubTasks(ctx, plan.SubTasks, progress)

	answer, err := aggregate(ctx, o.llm, o.prompts.Aggregate, prompt, results)

	// Phase 3 cleanup (§4.5): every sub-task's debugger session is
	// detached together once aggregation is done, win or lose. Tabs
	// themselves are left open so the user can still review sources.
	_ = o.deps.Registry.DetachAll()

	if err != nil {
		return nil, err
	}

	return &input.RunResult{FinalAnswer: answer}, nil
}

// runSubTasks implements Phase 2's settle-all semantics: every sub-task
// either succeeds, times out, or errors, and one sub-task's outcome
// never aborts its peers. errgroup.Group's zero value is used purely for
// its concurrency-fan-out convenience; Go() here never returns an error,
// so Wait() never short-circuits the others.
func (o *Orchestrator) runSubTasks(ctx context.Context, subTasks []entity.SubTask, progress input.ProgressFunc) []entity.SubTaskResult {
	results := make([]entity.SubTaskResult, len(subTasks))

	var g errgroup.Group
	for i, st := range subTasks {
		i, st := i, st
		g.Go(func() error {
			results[i] = o.runOneSubTask(ctx, st, progress)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (o *Orchestrator) runOneSubTask(ctx context.Context, st entity.SubTask, progress input.ProgressFunc) entity.SubTaskResult {
	tabID, err := o.deps.Registry.CreateTab(ctx, st.URL, st.Description)
	if err != nil {
		return entity.SubTaskResult{SubTask: st, Status: entity.SubTaskError, Error: err.Error()}
	}

	select {
	case <-time.After(subTaskSettleDelay):
	case <-ctx.Done():
		return entity.SubTaskResult{TabID: tabID, SubTask: st, Status: entity.SubTaskError, Error: ctx.Err().Error()}
	}

	subCtx, cancel := context.WithTimeout(ctx, subTaskWallClock)
	defer cancel()

	loop := agentloop.New(o.llm, o.deps, o.abort, o.logger, agentloop.Config{
		Mode:         toolcatalog.ModeSubTask,
		SystemPrompt: subTaskSystemPrompt(st),
	})

	task := fmt.Sprintf("%s\n\nExtraction goal: %s", st.Description, st.ExtractionGoal)
	result, runErr := loop.RunOnTab(subCtx, task, tabID, progress)

	if runErr != nil {
		if errors.Is(runErr, context.DeadlineExceeded) {
			data := result.LastSnapshotText
			if len(data) > subTaskDataCap {
				data = data[:subTaskDataCap]
			}
			return entity.SubTaskResult{TabID: tabID, SubTask: st, Status: entity.SubTaskTimeout, ExtractedData: data}
		}
		if agentloop.IsGracefulTermination(runErr) {
			return entity.SubTaskResult{TabID: tabID, SubTask: st, Status: entity.SubTaskSuccess, ExtractedData: result.FinalAnswer}
		}
		return entity.SubTaskResult{TabID: tabID, SubTask: st, Status: entity.SubTaskError, Error: runErr.Error()}
	}

	return entity.SubTaskResult{TabID: tabID, SubTask: st, Status: entity.SubTaskSuccess, ExtractedData: result.FinalAnswer}
}

func subTaskSystemPrompt(st entity.SubTask) string {
	return fmt.Sprintf(
		"You are a browser research sub-agent confined to one tab. Your sole objective: %s. "+
			"When you have enough information, call extract_data with the result as plain text. "+
			"Do not attempt to open new tabs.",
		st.ExtractionGoal,
	)
}
