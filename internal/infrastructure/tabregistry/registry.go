// Package tabregistry implements the lifecycle of agent-owned tabs on top
// of a BrowserHostPort (tab create/close) and a DebuggerPort (attach
// bookkeeping), combining the two into the single Tab Registry contract
// of §4.2.
package tabregistry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"browsercore/internal/application/port/output"
	"browsercore/internal/domain/entity"
)

type Registry struct {
	host     output.BrowserHostPort
	debugger output.DebuggerPort
	logger   output.LoggerPort

	mu    sync.RWMutex
	state map[entity.TabID]entity.Tab
}

func New(host output.BrowserHostPort, debugger output.DebuggerPort, logger output.LoggerPort) *Registry {
	return &Registry{
		host:     host,
		debugger: debugger,
		logger:   logger,
		state:    make(map[entity.TabID]entity.Tab),
	}
}

// normalizeURL prefixes bare hostnames with https:// exactly as §4.2
// requires ("google.com" -> "https://google.com").
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

func (r *Registry) CreateTab(ctx context.Context, url, taskDescription string) (entity.TabID, error) {
	url = normalizeURL(url)

	tabID, err := r.host.NewTab(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("create tab: %w", err)
	}

	r.mu.Lock()
	r.state[tabID] = entity.Tab{
		ID:              tabID,
		URL:             url,
		TaskDescription: taskDescription,
		Status:          entity.TabPending,
	}
	r.mu.Unlock()

	if err := r.Attach(ctx, tabID); err != nil {
		r.logger.Warn("failed to attach debugger to new tab", "tabID", tabID, "error", err)
	}

	return tabID, nil
}

func (r *Registry) Attach(ctx context.Context, tabID entity.TabID) error {
	if err := r.debugger.Attach(ctx, tabID); err != nil {
		return err
	}
	attached := true
	return r.UpdateState(tabID, entity.TabStatePatch{Attached: &attached})
}

// Detach is idempotent: detaching an already-detached or already-gone tab
// is a no-op, never an error.
func (r *Registry) Detach(tabID entity.TabID) error {
	_ = r.debugger.Detach(tabID)
	attached := false
	r.mu.Lock()
	if t, ok := r.state[tabID]; ok {
		t.Attached = attached
		r.state[tabID] = t
	}
	r.mu.Unlock()
	return nil
}

// CloseTab is idempotent for the same reason: the tab may already be gone.
func (r *Registry) CloseTab(ctx context.Context, tabID entity.TabID) error {
	_ = r.Detach(tabID)
	_ = r.host.CloseTab(ctx, tabID)
	r.mu.Lock()
	delete(r.state, tabID)
	r.mu.Unlock()
	return nil
}

func (r *Registry) DetachAll() error {
	return r.debugger.DetachAll()
}

// CloseAll detaches every tab before removing it from the registry, per
// §4.2's "closeAll detaches before removing" rule.
func (r *Registry) CloseAll(ctx context.Context) error {
	_ = r.DetachAll()

	r.mu.Lock()
	ids := make([]entity.TabID, 0, len(r.state))
	for id := range r.state {
		ids = append(ids, id)
	}
	r.state = make(map[entity.TabID]entity.Tab)
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.host.CloseTab(ctx, id)
	}
	return nil
}

func (r *Registry) UpdateState(tabID entity.TabID, patch entity.TabStatePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.state[tabID]
	if !ok {
		return fmt.Errorf("tab %d not found", tabID)
	}
	if patch.URL != nil {
		t.URL = *patch.URL
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.ExtractedData != nil {
		t.ExtractedData = *patch.ExtractedData
	}
	if patch.Error != nil {
		t.Error = *patch.Error
	}
	if patch.Attached != nil {
		t.Attached = *patch.Attached
	}
	r.state[tabID] = t
	return nil
}

func (r *Registry) GetState(tabID entity.TabID) (entity.Tab, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.state[tabID]
	return t, ok
}

func (r *Registry) GetAllStates() []entity.Tab {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.Tab, 0, len(r.state))
	for _, t := range r.state {
		out = append(out, t)
	}
	return out
}
