package debugger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"

	"browsercore/internal/application/port/output"
	"browsercore/internal/domain/entity"
)

type emptyPageProvider struct{}

func (emptyPageProvider) PageFor(tabID entity.TabID) (*rod.Page, bool) { return nil, false }

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any)                      {}
func (nopLogger) Info(msg string, args ...any)                       {}
func (nopLogger) Warn(msg string, args ...any)                       {}
func (nopLogger) Error(msg string, args ...any)                      {}
func (nopLogger) WithField(key string, value any) output.LoggerPort  { return nopLogger{} }
func (nopLogger) WithFields(fields map[string]any) output.LoggerPort { return nopLogger{} }
func (nopLogger) Close() error                                       { return nil }

func TestAttach_FailsWithErrNotAttachedWhenPageIsMissing(t *testing.T) {
	ch := New(emptyPageProvider{}, nopLogger{})
	err := ch.Attach(context.Background(), entity.TabID(1))
	assert.ErrorIs(t, err, entity.ErrNotAttached)
	assert.False(t, ch.IsAttached(entity.TabID(1)))
}

func TestDetach_IsIdempotentOnAnUnattachedTab(t *testing.T) {
	ch := New(emptyPageProvider{}, nopLogger{})
	assert.NoError(t, ch.Detach(entity.TabID(1)))
	assert.NoError(t, ch.Detach(entity.TabID(1)))
}

func TestDetachAll_OnEmptyChannelIsANoOp(t *testing.T) {
	ch := New(emptyPageProvider{}, nopLogger{})
	assert.NoError(t, ch.DetachAll())
	assert.Empty(t, ch.AttachedTabs())
}

func TestSend_FailsWithErrNotAttachedWhenTabNeverAttached(t *testing.T) {
	ch := New(emptyPageProvider{}, nopLogger{})
	_, err := ch.Send(context.Background(), entity.TabID(1), "Page.navigate", map[string]any{"url": "https://example.com"})
	assert.ErrorIs(t, err, entity.ErrNotAttached)
}

func TestOn_DeliversEmittedPayloadToEveryListener(t *testing.T) {
	ch := New(emptyPageProvider{}, nopLogger{})

	var gotA, gotB entity.TabID
	ch.On("Page.loadEventFired", func(tabID entity.TabID, payload json.RawMessage) { gotA = tabID })
	ch.On("Page.loadEventFired", func(tabID entity.TabID, payload json.RawMessage) { gotB = tabID })

	ch.emit("Page.loadEventFired", entity.TabID(7), map[string]string{"ok": "true"})

	assert.Equal(t, entity.TabID(7), gotA)
	assert.Equal(t, entity.TabID(7), gotB)
}

func TestOn_UnrelatedEventNameDoesNotFireListener(t *testing.T) {
	ch := New(emptyPageProvider{}, nopLogger{})

	fired := false
	ch.On("Page.loadEventFired", func(tabID entity.TabID, payload json.RawMessage) { fired = true })

	ch.emit("Network.requestWillBeSent", entity.TabID(1), nil)
	assert.False(t, fired)
}

func TestOn_UnsubscribeStopsFurtherDelivery(t *testing.T) {
	ch := New(emptyPageProvider{}, nopLogger{})

	calls := 0
	unsubscribe := ch.On("Network.requestWillBeSent", func(tabID entity.TabID, payload json.RawMessage) { calls++ })

	ch.emit("Network.requestWillBeSent", entity.TabID(1), nil)
	unsubscribe()
	ch.emit("Network.requestWillBeSent", entity.TabID(1), nil)

	assert.Equal(t, 1, calls)
}

func TestOn_UnsubscribeLeavesOtherListenersOnTheSameEventIntact(t *testing.T) {
	ch := New(emptyPageProvider{}, nopLogger{})

	var aCalls, bCalls int
	unsubA := ch.On("Network.requestWillBeSent", func(tabID entity.TabID, payload json.RawMessage) { aCalls++ })
	ch.On("Network.requestWillBeSent", func(tabID entity.TabID, payload json.RawMessage) { bCalls++ })

	unsubA()
	ch.emit("Network.requestWillBeSent", entity.TabID(1), nil)

	assert.Equal(t, 0, aCalls)
	assert.Equal(t, 1, bCalls)
}

func TestStringParam_MissingKeyReturnsEmptyString(t *testing.T) {
	assert.Equal(t, "", stringParam(map[string]any{}, "url"))
	assert.Equal(t, "https://example.com", stringParam(map[string]any{"url": "https://example.com"}, "url"))
}

func TestFloatParam_AcceptsFloat64AndInt(t *testing.T) {
	assert.Equal(t, 3.5, floatParam(map[string]any{"x": 3.5}, "x"))
	assert.Equal(t, 4.0, floatParam(map[string]any{"x": 4}, "x"))
	assert.Equal(t, 0.0, floatParam(map[string]any{}, "x"))
}

func TestIntParam_TruncatesFloat(t *testing.T) {
	assert.Equal(t, 3, intParam(map[string]any{"clickCount": 3.9}, "clickCount"))
}
