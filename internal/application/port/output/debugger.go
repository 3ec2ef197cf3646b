package output

import (
	"context"
	"encoding/json"

	"browsercore/internal/domain/entity"
)

// DebuggerListener receives page/network events delivered synchronously on
// the channel's own event loop.
type DebuggerListener func(tabID entity.TabID, payload json.RawMessage)

// DebuggerPort is a thin, typed wrapper over the browser's debugger-attach
// API. Attach is idempotent per tab; Send on an unattached tab fails with
// entity.ErrNotAttached. The channel is the sole owner of the attached-tab
// set, which changes only through Attach, Detach and DetachAll; a
// detachment made outside the channel (e.g. the user opening the
// browser's own devtools on an owned tab) is not reflected in it.
type DebuggerPort interface {
	Attach(ctx context.Context, tabID entity.TabID) error
	Detach(tabID entity.TabID) error
	DetachAll() error
	Send(ctx context.Context, tabID entity.TabID, method string, params map[string]any) (json.RawMessage, error)
	// On registers listener for event and returns a function that
	// unregisters it; callers that subscribe for a bounded operation must
	// call it when done.
	On(event string, listener DebuggerListener) func()
	IsAttached(tabID entity.TabID) bool
	AttachedTabs() []entity.TabID
}

// BrowserHostPort creates and destroys OS-level browser tabs. It is kept
// separate from DebuggerPort because tab lifecycle and debugger-session
// lifecycle are distinct concerns the Tab Registry composes, not a single
// operation.
type BrowserHostPort interface {
	NewTab(ctx context.Context, url string) (entity.TabID, error)
	CloseTab(ctx context.Context, tabID entity.TabID) error
	Screenshot(ctx context.Context, tabID entity.TabID) ([]byte, string, error)

	// AdoptNewTabs adopts any browser page not yet tracked under a TabID
	// (a window.open, a target="_blank" navigation) and returns the newly
	// assigned ids. The click action calls this right after clicking an
	// anchor to turn a freshly appeared tab into something addressable.
	AdoptNewTabs(ctx context.Context) ([]entity.TabID, error)
}
