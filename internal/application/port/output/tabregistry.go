package output

import (
	"context"

	"browsercore/internal/domain/entity"
)

// TabRegistryPort is the lifecycle manager for agent-owned tabs: create
// with a URL, attach/detach the debugger, record per-tab state, and
// close one or all. Create normalizes bare hostnames by prefixing
// "https://"; Detach and CloseTab are idempotent (a tab may already be
// gone).
type TabRegistryPort interface {
	CreateTab(ctx context.Context, url, taskDescription string) (entity.TabID, error)
	Attach(ctx context.Context, tabID entity.TabID) error
	Detach(tabID entity.TabID) error
	CloseTab(ctx context.Context, tabID entity.TabID) error
	DetachAll() error
	CloseAll(ctx context.Context) error
	UpdateState(tabID entity.TabID, patch entity.TabStatePatch) error
	GetState(tabID entity.TabID) (entity.Tab, bool)
	GetAllStates() []entity.Tab
}
