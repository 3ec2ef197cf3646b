// Package debugger implements the Debugger Channel (§4.1) on top of
// go-rod. rod keeps a live CDP session open for every page it knows
// about, so "attach" here means enabling the Page and Network domains and
// recording the tab as ours; "detach" means forgetting it. Send is a
// typed-dispatch shim over rod's own proto.* request structs for the
// fixed set of CDP methods this system actually issues — go-rod's client
// surface is itself typed, not a free-form string-keyed RPC, so a truly
// generic passthrough would fight the library rather than use it.
package debugger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"browsercore/internal/application/port/output"
	"browsercore/internal/domain/entity"
)

// PageProvider resolves a tab id to the live rod page backing it.
type PageProvider interface {
	PageFor(tabID entity.TabID) (*rod.Page, bool)
}

var _ output.DebuggerPort = (*Channel)(nil)

type Channel struct {
	pages  PageProvider
	logger output.LoggerPort

	mu       sync.RWMutex
	attached map[entity.TabID]struct{}
	cancels  map[entity.TabID]func()

	listenersMu    sync.RWMutex
	listeners      map[string][]listenerEntry
	nextListenerID uint64
}

type listenerEntry struct {
	id uint64
	fn output.DebuggerListener
}

func New(pages PageProvider, logger output.LoggerPort) *Channel {
	return &Channel{
		pages:     pages,
		logger:    logger,
		attached:  make(map[entity.TabID]struct{}),
		cancels:   make(map[entity.TabID]func()),
		listeners: make(map[string][]listenerEntry),
	}
}

// Attach is idempotent per tab.
func (c *Channel) Attach(ctx context.Context, tabID entity.TabID) error {
	c.mu.Lock()
	if _, ok := c.attached[tabID]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	page, ok := c.pages.PageFor(tabID)
	if !ok {
		return fmt.Errorf("%w: tab %d", entity.ErrNotAttached, tabID)
	}

	if err := (proto.PageEnable{}).Call(page); err != nil {
		return fmt.Errorf("page enable: %w", err)
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return fmt.Errorf("network enable: %w", err)
	}

	cancel := c.subscribe(tabID, page)

	c.mu.Lock()
	c.attached[tabID] = struct{}{}
	c.cancels[tabID] = cancel
	c.mu.Unlock()
	return nil
}

// Detach is idempotent: detaching an unattached or already-gone tab is a
// no-op. The channel does not observe detachments made outside it (the
// user opens their own devtools on this tab): such a tab stays in the
// attached set until Detach or DetachAll is called for it.
func (c *Channel) Detach(tabID entity.TabID) error {
	c.mu.Lock()
	cancel, ok := c.cancels[tabID]
	delete(c.attached, tabID)
	delete(c.cancels, tabID)
	c.mu.Unlock()

	if ok && cancel != nil {
		cancel()
	}
	return nil
}

func (c *Channel) DetachAll() error {
	c.mu.Lock()
	ids := make([]entity.TabID, 0, len(c.attached))
	for id := range c.attached {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		_ = c.Detach(id)
	}
	return nil
}

func (c *Channel) IsAttached(tabID entity.TabID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.attached[tabID]
	return ok
}

func (c *Channel) AttachedTabs() []entity.TabID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]entity.TabID, 0, len(c.attached))
	for id := range c.attached {
		out = append(out, id)
	}
	return out
}

// On registers a listener for event and returns a function that removes
// it. Callers that subscribe for the lifetime of a single operation (e.g.
// WaitForNetworkIdle) must call the returned function when done, or the
// listener leaks for the lifetime of the tab.
func (c *Channel) On(event string, listener output.DebuggerListener) func() {
	c.listenersMu.Lock()
	id := c.nextListenerID
	c.nextListenerID++
	c.listeners[event] = append(c.listeners[event], listenerEntry{id: id, fn: listener})
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		entries := c.listeners[event]
		for i, e := range entries {
			if e.id == id {
				c.listeners[event] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

func (c *Channel) emit(event string, tabID entity.TabID, payload any) {
	c.listenersMu.RLock()
	entries := c.listeners[event]
	c.listenersMu.RUnlock()
	if len(entries) == 0 {
		return
	}
	raw, _ := json.Marshal(payload)
	for _, e := range entries {
		e.fn(tabID, raw)
	}
}

// subscribe starts the background listeners rod needs to turn page/network
// domain events into Debugger Channel notifications. Each tab gets its own
// goroutine rather than a literal shared event loop — the Go-native
// accommodation for a system designed around single-threaded cooperative
// scheduling (§5, §9).
func (c *Channel) subscribe(tabID entity.TabID, page *rod.Page) func() {
	stop := make(chan struct{})

	go func() {
		page.EachEvent(func(e *proto.PageLoadEventFired) {
			c.emit("Page.loadEventFired", tabID, e)
		}, func(e *proto.NetworkRequestWillBeSent) {
			c.emit("Network.requestWillBeSent", tabID, e)
		}, func(e *proto.NetworkLoadingFinished) {
			c.emit("Network.loadingFinished", tabID, e)
		}, func(e *proto.NetworkLoadingFailed) {
			c.emit("Network.loadingFailed", tabID, e)
		})()
		<-stop
	}()

	return func() { close(stop) }
}

// Send dispatches a fixed CDP method by name through rod's typed proto
// structs. Unsupported methods are a programmer error (every caller in
// this codebase only ever sends from the closed list below), not a
// runtime condition the LLM needs to observe, so it returns a plain Go
// error.
func (c *Channel) Send(ctx context.Context, tabID entity.TabID, method string, params map[string]any) (json.RawMessage, error) {
	if !c.IsAttached(tabID) {
		return nil, fmt.Errorf("%w: tab %d", entity.ErrNotAttached, tabID)
	}
	page, ok := c.pages.PageFor(tabID)
	if !ok {
		return nil, fmt.Errorf("%w: tab %d", entity.ErrNotAttached, tabID)
	}
	page = page.Context(ctx)

	switch method {
	case "Page.navigate":
		res, err := proto.PageNavigate{URL: stringParam(params, "url")}.Call(page)
		return marshalResult(res, err)
	case "Runtime.evaluate":
		res, err := proto.RuntimeEvaluate{
			Expression:    stringParam(params, "expression"),
			ReturnByValue: true,
			AwaitPromise:  true,
		}.Call(page)
		return marshalResult(res, err)
	case "Input.dispatchMouseEvent":
		err := proto.InputDispatchMouseEvent{
			Type:       proto.InputDispatchMouseEventType(stringParam(params, "type")),
			X:          floatParam(params, "x"),
			Y:          floatParam(params, "y"),
			Button:     proto.InputMouseButton(stringParam(params, "button")),
			ClickCount: intParam(params, "clickCount"),
			DeltaX:     floatParam(params, "deltaX"),
			DeltaY:     floatParam(params, "deltaY"),
		}.Call(page)
		return marshalResult(nil, err)
	case "Input.dispatchKeyEvent":
		err := proto.InputDispatchKeyEvent{
			Type: proto.InputDispatchKeyEventType(stringParam(params, "type")),
			Key:  stringParam(params, "key"),
			Code: stringParam(params, "code"),
		}.Call(page)
		return marshalResult(nil, err)
	case "Input.insertText":
		err := proto.InputInsertText{Text: stringParam(params, "text")}.Call(page)
		return marshalResult(nil, err)
	case "Network.enable":
		err := proto.NetworkEnable{}.Call(page)
		return marshalResult(nil, err)
	case "Page.captureScreenshot":
		res, err := proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatJpeg}.Call(page)
		return marshalResult(res, err)
	default:
		return nil, fmt.Errorf("unsupported CDP method: %s", method)
	}
}

func marshalResult(res any, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func floatParam(params map[string]any, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func intParam(params map[string]any, key string) int {
	return int(floatParam(params, key))
}
