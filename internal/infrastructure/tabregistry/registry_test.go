package tabregistry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsercore/internal/application/port/output"
	"browsercore/internal/domain/entity"
)

type fakeHost struct {
	nextID    entity.TabID
	createErr error
	closed    []entity.TabID
}

func (f *fakeHost) NewTab(ctx context.Context, url string) (entity.TabID, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	return f.nextID, nil
}
func (f *fakeHost) CloseTab(ctx context.Context, tabID entity.TabID) error {
	f.closed = append(f.closed, tabID)
	return nil
}
func (f *fakeHost) Screenshot(ctx context.Context, tabID entity.TabID) ([]byte, string, error) {
	return nil, "", nil
}
func (f *fakeHost) AdoptNewTabs(ctx context.Context) ([]entity.TabID, error) { return nil, nil }

type fakeDebugger struct {
	attached  map[entity.TabID]bool
	attachErr error
}

func newFakeDebugger() *fakeDebugger { return &fakeDebugger{attached: map[entity.TabID]bool{}} }

func (f *fakeDebugger) Attach(ctx context.Context, tabID entity.TabID) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached[tabID] = true
	return nil
}
func (f *fakeDebugger) Detach(tabID entity.TabID) error {
	delete(f.attached, tabID)
	return nil
}
func (f *fakeDebugger) DetachAll() error {
	f.attached = map[entity.TabID]bool{}
	return nil
}
func (f *fakeDebugger) Send(ctx context.Context, tabID entity.TabID, method string, params map[string]any) (json.RawMessage, error) {
	return nil, nil
}
func (f *fakeDebugger) On(event string, listener output.DebuggerListener) func() { return func() {} }
func (f *fakeDebugger) IsAttached(tabID entity.TabID) bool                       { return f.attached[tabID] }
func (f *fakeDebugger) AttachedTabs() []entity.TabID {
	ids := make([]entity.TabID, 0, len(f.attached))
	for id := range f.attached {
		ids = append(ids, id)
	}
	return ids
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any)                      {}
func (nopLogger) Info(msg string, args ...any)                       {}
func (nopLogger) Warn(msg string, args ...any)                       {}
func (nopLogger) Error(msg string, args ...any)                      {}
func (nopLogger) WithField(key string, value any) output.LoggerPort  { return nopLogger{} }
func (nopLogger) WithFields(fields map[string]any) output.LoggerPort { return nopLogger{} }
func (nopLogger) Close() error                                       { return nil }

func newRegistry() (*Registry, *fakeHost, *fakeDebugger) {
	host := &fakeHost{}
	debugger := newFakeDebugger()
	return New(host, debugger, nopLogger{}), host, debugger
}

func TestNormalizeURL_PrefixesBareHostnames(t *testing.T) {
	assert.Equal(t, "https://google.com", normalizeURL("google.com"))
	assert.Equal(t, "http://localhost:8080", normalizeURL("http://localhost:8080"))
	assert.Equal(t, "", normalizeURL("  "))
}

func TestCreateTab_RecordsPendingStateAndAttaches(t *testing.T) {
	reg, _, debugger := newRegistry()

	tabID, err := reg.CreateTab(context.Background(), "example.com", "find the price")
	require.NoError(t, err)

	tab, ok := reg.GetState(tabID)
	require.True(t, ok)
	assert.Equal(t, "https://example.com", tab.URL)
	assert.Equal(t, entity.TabPending, tab.Status)
	assert.True(t, tab.Attached)
	assert.True(t, debugger.IsAttached(tabID))
}

func TestCreateTab_PropagatesHostFailure(t *testing.T) {
	host := &fakeHost{createErr: assertErr("browser crashed")}
	reg := New(host, newFakeDebugger(), nopLogger{})

	_, err := reg.CreateTab(context.Background(), "example.com", "")
	assert.ErrorContains(t, err, "browser crashed")
}

func TestDetach_IsIdempotentAndClearsAttachedFlag(t *testing.T) {
	reg, _, debugger := newRegistry()
	tabID, err := reg.CreateTab(context.Background(), "example.com", "")
	require.NoError(t, err)

	require.NoError(t, reg.Detach(tabID))
	require.NoError(t, reg.Detach(tabID))

	tab, ok := reg.GetState(tabID)
	require.True(t, ok)
	assert.False(t, tab.Attached)
	assert.False(t, debugger.IsAttached(tabID))
}

func TestCloseTab_RemovesFromStateAndClosesHostTab(t *testing.T) {
	reg, host, _ := newRegistry()
	tabID, err := reg.CreateTab(context.Background(), "example.com", "")
	require.NoError(t, err)

	require.NoError(t, reg.CloseTab(context.Background(), tabID))

	_, ok := reg.GetState(tabID)
	assert.False(t, ok)
	assert.Equal(t, []entity.TabID{tabID}, host.closed)
}

func TestCloseTab_IsIdempotentForAnAlreadyGoneTab(t *testing.T) {
	reg, _, _ := newRegistry()
	assert.NoError(t, reg.CloseTab(context.Background(), entity.TabID(999)))
}

func TestCloseAll_DetachesBeforeRemovingEveryTab(t *testing.T) {
	reg, host, debugger := newRegistry()
	first, err := reg.CreateTab(context.Background(), "a.example", "")
	require.NoError(t, err)
	second, err := reg.CreateTab(context.Background(), "b.example", "")
	require.NoError(t, err)

	require.NoError(t, reg.CloseAll(context.Background()))

	assert.Empty(t, reg.GetAllStates())
	assert.Empty(t, debugger.attached)
	assert.ElementsMatch(t, []entity.TabID{first, second}, host.closed)
}

func TestUpdateState_AppliesOnlyNonNilPatchFields(t *testing.T) {
	reg, _, _ := newRegistry()
	tabID, err := reg.CreateTab(context.Background(), "example.com", "task")
	require.NoError(t, err)

	newTitle := "Example Domain"
	require.NoError(t, reg.UpdateState(tabID, entity.TabStatePatch{Title: &newTitle}))

	tab, ok := reg.GetState(tabID)
	require.True(t, ok)
	assert.Equal(t, newTitle, tab.Title)
	assert.Equal(t, "https://example.com", tab.URL)
}

func TestUpdateState_UnknownTabReturnsError(t *testing.T) {
	reg, _, _ := newRegistry()
	status := entity.TabDone
	err := reg.UpdateState(entity.TabID(123), entity.TabStatePatch{Status: &status})
	assert.Error(t, err)
}

func TestGetAllStates_ReturnsEveryTrackedTab(t *testing.T) {
	reg, _, _ := newRegistry()
	_, err := reg.CreateTab(context.Background(), "a.example", "")
	require.NoError(t, err)
	_, err = reg.CreateTab(context.Background(), "b.example", "")
	require.NoError(t, err)

	assert.Len(t, reg.GetAllStates(), 2)
}

type assertErrString string

func (e assertErrString) Error() string { return string(e) }
func assertErr(msg string) error        { return assertErrString(msg) }
