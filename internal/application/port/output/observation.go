package output

import (
	"context"
	"time"

	"browsercore/internal/domain/entity"
)

// ObservationPort produces a Snapshot of one tab. It never propagates a
// failure as a Go error except for context cancellation — script injection
// failures degrade to an empty-elements snapshot with best-effort url/title
// (such degraded snapshots are logged, not returned as errors).
type ObservationPort interface {
	TakeSnapshot(ctx context.Context, tabID entity.TabID) (*entity.Snapshot, error)
}

// ActionPort executes the semantic action primitives of §4.3.2. Every
// method either succeeds or returns an error-shaped result string; a
// non-nil error return is reserved for context cancellation and truly
// unrecoverable transport failures, never for ordinary "element not
// found"/"option not found" conditions the LLM itself can react to.
type ActionPort interface {
	Click(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot) (string, error)
	TypeText(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot, text string) (string, error)
	PressKey(ctx context.Context, tabID entity.TabID, key string) (string, error)
	Scroll(ctx context.Context, tabID entity.TabID, direction string, amount int) (string, error)
	SelectOption(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot, value string) (string, error)
	Hover(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot) (string, error)
	SetValue(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot, value string) (string, error)
	WaitForNetworkIdle(ctx context.Context, tabID entity.TabID, timeout time.Duration) (string, error)
	Navigate(ctx context.Context, tabID entity.TabID, url string) (string, error)

	// Screenshot is the auxiliary, explicitly LLM-requested observation
	// side channel of §4.9 — never auto-captured, never fed into snapshot
	// formatting, so it does not reintroduce vision-based page
	// understanding through the back door.
	Screenshot(ctx context.Context, tabID entity.TabID) (string, error)
}
