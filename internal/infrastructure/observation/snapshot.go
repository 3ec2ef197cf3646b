// Package observation implements the Observation & Action Layer (§4.3):
// the injected snapshot producer and the semantic action primitives that
// map a UID back to a live DOM node via the Debugger Channel.
package observation

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"browsercore/internal/application/port/output"
	"browsercore/internal/domain/entity"
)

// snapshotScript is delivered as a literal source string, embedded
// unprocessed, because any step that rewrites identifiers (minification,
// bundling) would break its in-page execution context. See §9.
//
//go:embed snapshot.js
var snapshotScript string

type rawSnapshot struct {
	URL      string       `json:"url"`
	Title    string       `json:"title"`
	Elements []rawElement `json:"elements"`
	RawText  string       `json:"rawText"`
}

type rawElement struct {
	UID          int         `json:"uid"`
	Tag          string      `json:"tag"`
	Role         string      `json:"role"`
	Name         string      `json:"name"`
	Context      string      `json:"context"`
	Href         string      `json:"href"`
	Type         string      `json:"type"`
	Value        string      `json:"value"`
	Placeholder  string      `json:"placeholder"`
	X            float64     `json:"x"`
	Y            float64     `json:"y"`
	Width        float64     `json:"width"`
	Height       float64     `json:"height"`
	IsClickable  bool        `json:"isClickable"`
	IsInput      bool        `json:"isInput"`
	IsVideo      bool        `json:"isVideo"`
	IsSelect     bool        `json:"isSelect"`
	Disabled     bool        `json:"disabled"`
	Checked      *bool       `json:"checked"`
	AriaExpanded *bool       `json:"ariaExpanded"`
	Options      []rawOption `json:"options"`
}

type rawOption struct {
	Value    string `json:"value"`
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
}

func toSnapshot(raw rawSnapshot) *entity.Snapshot {
	elements := make([]entity.SnapshotElement, 0, len(raw.Elements))
	for _, e := range raw.Elements {
		// Structural security rule: password/hidden types never carry a
		// value even if the producer somehow reported one upstream.
		value := e.Value
		if e.Type == "password" || e.Type == "hidden" {
			value = ""
		}

		var opts []entity.SnapshotOption
		for _, o := range e.Options {
			opts = append(opts, entity.SnapshotOption{Value: o.Value, Text: o.Text, Selected: o.Selected})
		}

		elements = append(elements, entity.SnapshotElement{
			UID: e.UID, Tag: e.Tag, Role: e.Role, Name: e.Name, Context: e.Context,
			Href: e.Href, Type: e.Type, Value: value, Placeholder: e.Placeholder,
			X: e.X, Y: e.Y, Width: e.Width, Height: e.Height,
			IsClickable: e.IsClickable, IsInput: e.IsInput, IsVideo: e.IsVideo, IsSelect: e.IsSelect,
			Disabled: e.Disabled, Checked: e.Checked, AriaExpanded: e.AriaExpanded, Options: opts,
		})
	}
	return &entity.Snapshot{URL: raw.URL, Title: raw.Title, Elements: elements, RawText: raw.RawText}
}

var _ output.ObservationPort = (*Producer)(nil)

type Producer struct {
	debugger output.DebuggerPort
	logger   output.LoggerPort
}

func NewProducer(debugger output.DebuggerPort, logger output.LoggerPort) *Producer {
	return &Producer{debugger: debugger, logger: logger}
}

const (
	docReadyPollInterval = 300 * time.Millisecond
	docReadyTimeout      = 3 * time.Second
	snapshotRetryDelay   = 1500 * time.Millisecond
)

// TakeSnapshot implements the observation contract of §4.3.1: wait for
// document readiness (tolerant, ≤3s), evaluate the injected script,
// retry once after a settle delay, and degrade to an empty-elements,
// best-effort snapshot rather than propagate failure.
func (p *Producer) TakeSnapshot(ctx context.Context, tabID entity.TabID) (*entity.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.waitDocReady(ctx, tabID)

	snap, err := p.evaluate(ctx, tabID)
	if err == nil {
		return snap, nil
	}
	p.logger.Debug("snapshot evaluate failed, retrying once", "tabID", tabID, "error", err)

	select {
	case <-time.After(snapshotRetryDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	snap, err = p.evaluate(ctx, tabID)
	if err == nil {
		return snap, nil
	}

	p.logger.Warn("snapshot degraded after retry", "tabID", tabID, "error", err)
	rawText := fmt.Sprintf("Snapshot error: %s", err)
	if text := p.degradedText(ctx, tabID); text != "" {
		rawText = text
	}
	return &entity.Snapshot{
		URL:      p.bestEffortEval(ctx, tabID, "location.href"),
		Title:    p.bestEffortEval(ctx, tabID, "document.title"),
		Elements: nil,
		RawText:  rawText,
	}, nil
}

// degradedText reads the page's raw HTML through the debugger, when that
// much still works, and falls back to a server-side text extraction so
// the LLM still sees page content even with zero interactive elements.
func (p *Producer) degradedText(ctx context.Context, tabID entity.TabID) string {
	raw, err := p.debugger.Send(ctx, tabID, "Runtime.evaluate", map[string]any{
		"expression": "document.documentElement.outerHTML",
	})
	if err != nil {
		return ""
	}
	var evalResult struct {
		Result struct {
			Value string `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &evalResult); err != nil || evalResult.Result.Value == "" {
		return ""
	}
	return extractVisibleText(evalResult.Result.Value)
}

func (p *Producer) waitDocReady(ctx context.Context, tabID entity.TabID) {
	deadline := time.Now().Add(docReadyTimeout)
	for time.Now().Before(deadline) {
		raw, err := p.debugger.Send(ctx, tabID, "Runtime.evaluate", map[string]any{
			"expression": "document.readyState",
		})
		if err == nil && bytesContains(raw, `"complete"`) {
			return
		}
		select {
		case <-time.After(docReadyPollInterval):
		case <-ctx.Done():
			return
		}
	}
}

func (p *Producer) evaluate(ctx context.Context, tabID entity.TabID) (*entity.Snapshot, error) {
	raw, err := p.debugger.Send(ctx, tabID, "Runtime.evaluate", map[string]any{
		"expression": snapshotScript,
	})
	if err != nil {
		return nil, err
	}

	var evalResult struct {
		Result struct {
			Value string `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &evalResult); err != nil {
		return nil, fmt.Errorf("decode eval result: %w", err)
	}
	if evalResult.Result.Value == "" {
		return nil, fmt.Errorf("empty evaluation result")
	}

	var rs rawSnapshot
	if err := json.Unmarshal([]byte(evalResult.Result.Value), &rs); err != nil {
		return nil, fmt.Errorf("decode snapshot json: %w", err)
	}
	return toSnapshot(rs), nil
}

func (p *Producer) bestEffortEval(ctx context.Context, tabID entity.TabID, expr string) string {
	raw, err := p.debugger.Send(ctx, tabID, "Runtime.evaluate", map[string]any{
		"expression": expr,
	})
	if err != nil {
		return ""
	}
	var evalResult struct {
		Result struct {
			Value string `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &evalResult); err != nil {
		return ""
	}
	return evalResult.Result.Value
}

func bytesContains(raw json.RawMessage, sub string) bool {
	return len(raw) > 0 && strings.Contains(string(raw), sub)
}
