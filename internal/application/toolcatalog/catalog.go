// Package toolcatalog declares the tools the LLM may call (§4.6) and
// dispatches each by name to the Observation & Action Layer. It lives in
// the application layer, not the domain, because a handler closes over
// output ports — interfaces the domain layer must never import.
package toolcatalog

import (
	"context"
	"fmt"
	"time"

	"browsercore/internal/application/port/output"
	"browsercore/internal/domain/entity"
)

// Mode selects which terminal tool and tool subset a catalog exposes.
// Single-tab and sub-task mode differ by exactly one terminal tool and
// one omitted tool (open_browser); everything else is shared.
type Mode int

const (
	ModeSingleTab Mode = iota
	ModeSubTask
)

// LoopState is the mutable state a running Agent Loop threads through
// every tool dispatch: which tab is currently active, and the most
// recent snapshot taken of it (used to validate UIDs before they ever
// reach the Action Layer).
type LoopState struct {
	ActiveTab    entity.TabID
	LastSnapshot *entity.Snapshot
}

// Deps bundles the output ports a tool handler needs. A handler never
// receives more than this — no access to the transcript, the step
// counter, or the abort flag, all of which stay owned by the Agent Loop.
type Deps struct {
	Observation     output.ObservationPort
	Action          output.ActionPort
	Registry        output.TabRegistryPort
	UserInteraction output.UserInteractionPort
}

// Handler executes one tool call. Terminal is true for task_complete and
// extract_data, signaling the Agent Loop to record the result and stop
// rather than continue dispatching. A non-nil error is reserved for
// context cancellation — ordinary failures come back as result strings.
type Handler func(ctx context.Context, deps Deps, state *LoopState, call entity.ToolCall) (result string, terminal bool, err error)

// Entry pairs one tool's LLM-facing schema with its implementation.
// Mutating marks the tools that trigger the Agent Loop's auto-re-snapshot
// policy after they run (§4.4.2 step 5c) — exactly the set the spec
// names, not every tool that happens to touch the page (scroll, for
// instance, is deliberately excluded).
type Entry struct {
	Definition entity.ToolDefinition
	Handler    Handler
	Mutating   bool
}

// Catalog returns the ordered tool list for the given mode: the shared
// action primitives plus open_browser in single-tab mode, and the
// mode-appropriate terminal tool.
func Catalog(mode Mode) []Entry {
	entries := append([]Entry{}, sharedEntries...)
	if mode == ModeSingleTab {
		entries = append(entries, openBrowserEntry)
	}
	entries = append(entries, terminalEntry(mode))
	return entries
}

// Definitions extracts just the schemas, the shape the LLM port sends on
// every invocation.
func Definitions(mode Mode) []entity.ToolDefinition {
	entries := Catalog(mode)
	defs := make([]entity.ToolDefinition, 0, len(entries))
	for _, e := range entries {
		defs = append(defs, e.Definition)
	}
	return defs
}

// Dispatch finds the named tool in the catalog for mode and runs it.
func Dispatch(ctx context.Context, mode Mode, deps Deps, state *LoopState, call entity.ToolCall) (result string, terminal bool, err error) {
	for _, e := range Catalog(mode) {
		if e.Definition.Name == call.Name {
			return e.Handler(ctx, deps, state, call)
		}
	}
	return fmt.Sprintf("unknown tool %q", call.Name), false, nil
}

// IsMutating reports whether toolName triggers the auto-re-snapshot
// policy, independent of mode (the set is identical in both).
func IsMutating(toolName string) bool {
	for _, e := range sharedEntries {
		if e.Definition.Name == toolName {
			return e.Mutating
		}
	}
	return false
}

func schema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func uidParam(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func stringParam(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func argString(call entity.ToolCall, key string) string {
	args, _ := call.ArgsMap()
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argInt(call entity.ToolCall, key string) int {
	args, _ := call.ArgsMap()
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

var sharedEntries = []Entry{
	{
		Definition: entity.ToolDefinition{
			Name:        "take_snapshot",
			Description: "Capture a fresh, UID-indexed view of the active tab's interactive elements and visible text. Call this after any navigation or when the current view may be stale.",
			Parameters:  schema(map[string]any{}),
		},
		Handler: handleTakeSnapshot,
	},
	{
		Definition: entity.ToolDefinition{
			Name:        "click",
			Description: "Click the element identified by uid, from the most recent snapshot. May open a new tab, in which case the result mentions it.",
			Parameters:  schema(map[string]any{"uid": uidParam("UID of the element to click, from the last take_snapshot result")}, "uid"),
		},
		Handler:  handleClick,
		Mutating: true,
	},
	{
		Definition: entity.ToolDefinition{
			Name:        "type_text",
			Description: "Type text into the input, textarea, or contenteditable element identified by uid. Clears any existing content first.",
			Parameters: schema(map[string]any{
				"uid":  uidParam("UID of the field to type into"),
				"text": stringParam("Text to type"),
			}, "uid", "text"),
		},
		Handler:  handleTypeText,
		Mutating: true,
	},
	{
		Definition: entity.ToolDefinition{
			Name:        "press_key",
			Description: "Press a single key on the active tab, e.g. Enter, Tab, Escape, ArrowDown, ArrowUp, or Backspace.",
			Parameters: schema(map[string]any{
				"key": map[string]any{
					"type":        "string",
					"description": "Key to press",
					"enum":        []string{"Enter", "Tab", "Escape", "ArrowDown", "ArrowUp", "ArrowLeft", "ArrowRight", "Backspace", "Delete"},
				},
			}, "key"),
		},
		Handler:  handlePressKey,
		Mutating: true,
	},
	{
		Definition: entity.ToolDefinition{
			Name:        "scroll",
			Description: "Scroll the active tab in a direction by a pixel amount (default 600).",
			Parameters: schema(map[string]any{
				"direction": map[string]any{
					"type": "string",
					"enum": []string{"up", "down", "left", "right"},
				},
				"amount": map[string]any{"type": "integer", "description": "Pixels to scroll, default 600"},
			}, "direction"),
		},
		Handler: handleScroll,
	},
	{
		Definition: entity.ToolDefinition{
			Name:        "select_option",
			Description: "Select an option on the <select> element identified by uid, matching by value, then exact text, then substring.",
			Parameters: schema(map[string]any{
				"uid":   uidParam("UID of the select element"),
				"value": stringParam("Option value or visible text to select"),
			}, "uid", "value"),
		},
		Handler:  handleSelectOption,
		Mutating: true,
	},
	{
		Definition: entity.ToolDefinition{
			Name:        "hover",
			Description: "Move the mouse over the element identified by uid, to reveal hover-only menus or tooltips.",
			Parameters:  schema(map[string]any{"uid": uidParam("UID of the element to hover")}, "uid"),
		},
		Handler:  handleHover,
		Mutating: true,
	},
	{
		Definition: entity.ToolDefinition{
			Name:        "set_value",
			Description: "Directly set the value of the input or textarea identified by uid, bypassing keystroke simulation. Use for sliders, numeric, or price-range fields where type_text is unreliable.",
			Parameters: schema(map[string]any{
				"uid":   uidParam("UID of the field"),
				"value": stringParam("Value to set"),
			}, "uid", "value"),
		},
		Handler:  handleSetValue,
		Mutating: true,
	},
	{
		Definition: entity.ToolDefinition{
			Name:        "wait_for_page_update",
			Description: "Wait for in-flight network activity on the active tab to settle, up to a timeout in milliseconds (default 5000).",
			Parameters:  schema(map[string]any{"timeoutMs": map[string]any{"type": "integer"}}),
		},
		Handler:  handleWaitForPageUpdate,
		Mutating: true,
	},
	{
		Definition: entity.ToolDefinition{
			Name:        "navigate",
			Description: "Navigate the active tab to an absolute URL. Always follow this with take_snapshot.",
			Parameters:  schema(map[string]any{"url": stringParam("URL to navigate to")}, "url"),
		},
		Handler: handleNavigate,
	},
	{
		Definition: entity.ToolDefinition{
			Name:        "screenshot",
			Description: "Capture a screenshot of the active tab. The result reports only the image format and size; the image itself is not returned. Not a substitute for take_snapshot.",
			Parameters:  schema(map[string]any{}),
		},
		Handler: handleScreenshot,
	},
	{
		Definition: entity.ToolDefinition{
			Name:        "ask",
			Description: "Ask the human operator a question and wait for a text answer — use when you're blocked on information only they have.",
			Parameters:  schema(map[string]any{"question": stringParam("Question to ask the user")}, "question"),
		},
		Handler: handleAsk,
	},
	{
		Definition: entity.ToolDefinition{
			Name:        "wait_for_user",
			Description: "Pause and wait for the human operator to complete a manual step (e.g. solving a CAPTCHA or logging in) before continuing.",
			Parameters:  schema(map[string]any{"message": stringParam("What you need the user to do")}, "message"),
		},
		Handler: handleWaitForUser,
	},
}

var openBrowserEntry = Entry{
	Definition: entity.ToolDefinition{
		Name:        "open_browser",
		Description: "Open a new browser tab at the given URL and make it the active tab. Always follow this with take_snapshot.",
		Parameters:  schema(map[string]any{"url": stringParam("URL to open")}, "url"),
	},
	Handler: handleOpenBrowser,
}

func terminalEntry(mode Mode) Entry {
	if mode == ModeSubTask {
		return Entry{
			Definition: entity.ToolDefinition{
				Name:        "extract_data",
				Description: "Record the extracted data for this sub-task and end it.",
				Parameters:  schema(map[string]any{"data": stringParam("The extracted data, as plain text")}, "data"),
			},
			Handler: handleExtractData,
		}
	}
	return Entry{
		Definition: entity.ToolDefinition{
			Name:        "task_complete",
			Description: "Record a human-readable summary of what was accomplished and end the run.",
			Parameters:  schema(map[string]any{"summary": stringParam("Summary of what was accomplished")}, "summary"),
		},
		Handler: handleTaskComplete,
	}
}

func handleTakeSnapshot(ctx context.Context, deps Deps, state *LoopState, _ entity.ToolCall) (string, bool, error) {
	snap, err := deps.Observation.TakeSnapshot(ctx, state.ActiveTab)
	if err != nil {
		return "", false, err
	}
	state.LastSnapshot = snap
	return FormatSnapshot(snap), false, nil
}

func handleClick(ctx context.Context, deps Deps, state *LoopState, call entity.ToolCall) (string, bool, error) {
	uid := argInt(call, "uid")
	res, err := deps.Action.Click(ctx, state.ActiveTab, uid, state.LastSnapshot)
	return res, false, err
}

func handleTypeText(ctx context.Context, deps Deps, state *LoopState, call entity.ToolCall) (string, bool, error) {
	uid := argInt(call, "uid")
	text := argString(call, "text")
	res, err := deps.Action.TypeText(ctx, state.ActiveTab, uid, state.LastSnapshot, text)
	return res, false, err
}

func handlePressKey(ctx context.Context, deps Deps, state *LoopState, call entity.ToolCall) (string, bool, error) {
	key := argString(call, "key")
	res, err := deps.Action.PressKey(ctx, state.ActiveTab, key)
	return res, false, err
}

func handleScroll(ctx context.Context, deps Deps, state *LoopState, call entity.ToolCall) (string, bool, error) {
	direction := argString(call, "direction")
	amount := argInt(call, "amount")
	res, err := deps.Action.Scroll(ctx, state.ActiveTab, direction, amount)
	return res, false, err
}

func handleSelectOption(ctx context.Context, deps Deps, state *LoopState, call entity.ToolCall) (string, bool, error) {
	uid := argInt(call, "uid")
	value := argString(call, "value")
	res, err := deps.Action.SelectOption(ctx, state.ActiveTab, uid, state.LastSnapshot, value)
	return res, false, err
}

func handleHover(ctx context.Context, deps Deps, state *LoopState, call entity.ToolCall) (string, bool, error) {
	uid := argInt(call, "uid")
	res, err := deps.Action.Hover(ctx, state.ActiveTab, uid, state.LastSnapshot)
	return res, false, err
}

func handleSetValue(ctx context.Context, deps Deps, state *LoopState, call entity.ToolCall) (string, bool, error) {
	uid := argInt(call, "uid")
	value := argString(call, "value")
	res, err := deps.Action.SetValue(ctx, state.ActiveTab, uid, state.LastSnapshot, value)
	return res, false, err
}

func handleWaitForPageUpdate(ctx context.Context, deps Deps, state *LoopState, call entity.ToolCall) (string, bool, error) {
	timeoutMs := argInt(call, "timeoutMs")
	timeout := time.Duration(timeoutMs) * time.Millisecond
	res, err := deps.Action.WaitForNetworkIdle(ctx, state.ActiveTab, timeout)
	return res, false, err
}

func handleNavigate(ctx context.Context, deps Deps, state *LoopState, call entity.ToolCall) (string, bool, error) {
	url := argString(call, "url")
	res, err := deps.Action.Navigate(ctx, state.ActiveTab, url)
	return res, false, err
}

func handleScreenshot(ctx context.Context, deps Deps, state *LoopState, _ entity.ToolCall) (string, bool, error) {
	res, err := deps.Action.Screenshot(ctx, state.ActiveTab)
	return res, false, err
}

func handleAsk(ctx context.Context, deps Deps, _ *LoopState, call entity.ToolCall) (string, bool, error) {
	question := argString(call, "question")
	answer, err := deps.UserInteraction.AskQuestion(ctx, question)
	if err != nil {
		return fmt.Sprintf("failed to get an answer: %v", err), false, nil
	}
	return answer, false, nil
}

func handleWaitForUser(ctx context.Context, deps Deps, _ *LoopState, call entity.ToolCall) (string, bool, error) {
	message := argString(call, "message")
	if err := deps.UserInteraction.WaitForUserAction(ctx, message); err != nil {
		return fmt.Sprintf("failed waiting for user: %v", err), false, nil
	}
	return "user confirmed the action is done", false, nil
}

func handleOpenBrowser(ctx context.Context, deps Deps, state *LoopState, call entity.ToolCall) (string, bool, error) {
	url := argString(call, "url")
	tabID, err := deps.Registry.CreateTab(ctx, url, "")
	if err != nil {
		return fmt.Sprintf("failed to open browser at %s: %v", url, err), false, nil
	}
	state.ActiveTab = tabID
	state.LastSnapshot = nil
	return fmt.Sprintf("opened %s in a new tab", url), false, nil
}

func handleTaskComplete(_ context.Context, deps Deps, state *LoopState, call entity.ToolCall) (string, bool, error) {
	summary := argString(call, "summary")
	_ = deps.Registry.Detach(state.ActiveTab)
	return summary, true, nil
}

func handleExtractData(_ context.Context, _ Deps, _ *LoopState, call entity.ToolCall) (string, bool, error) {
	data := argString(call, "data")
	return data, true, nil
}
