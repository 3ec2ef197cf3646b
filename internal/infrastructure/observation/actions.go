package observation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"browsercore/internal/application/port/output"
	"browsercore/internal/domain/entity"
)

var _ output.ActionPort = (*Actions)(nil)

// Actions implements output.ActionPort over the Debugger Channel and the
// Browser Host. Every UID-taking primitive checks the element against the
// caller's most recent Snapshot before it ever touches the page — a stale
// UID never reaches the debugger at all.
type Actions struct {
	debugger             output.DebuggerPort
	host                 output.BrowserHostPort
	logger               output.LoggerPort
	disableCursorOverlay bool
}

func NewActions(debugger output.DebuggerPort, host output.BrowserHostPort, logger output.LoggerPort) *Actions {
	return &Actions{debugger: debugger, host: host, logger: logger}
}

// WithCursorOverlay toggles the on-page visible cursor marker every
// gesture primitive injects and repositions before it acts. Passing true
// turns it off, e.g. for a headless run where no one watches the tab.
func (a *Actions) WithCursorOverlay(disabled bool) *Actions {
	a.disableCursorOverlay = disabled
	return a
}

// cursorOverlayJS injects (idempotently) a small marker div tracking the
// live mouse position, purely so a human watching the tab can see where
// the agent is about to act.
const cursorOverlayJS = `(function(){
	if (document.getElementById('__agent_cursor__')) return;
	var c = document.createElement('div');
	c.id = '__agent_cursor__';
	c.style.cssText = 'position:fixed;width:16px;height:16px;border-radius:50%;' +
		'background:radial-gradient(circle, rgba(255,90,40,0.9) 0%, rgba(255,90,40,0.4) 70%, transparent 100%);' +
		'pointer-events:none;z-index:2147483647;transition:left 80ms ease-out, top 80ms ease-out;' +
		'transform:translate(-50%,-50%);left:-100px;top:-100px;';
	document.body.appendChild(c);
})()`

func cursorMoveJS(x, y float64) string {
	return fmt.Sprintf(`(function(){
		var c = document.getElementById('__agent_cursor__');
		if (!c) return;
		c.style.left = '%fpx';
		c.style.top = '%fpx';
	})()`, x, y)
}

// showCursorAt injects the overlay if it's not already present and moves
// it to (x, y). Failures are swallowed: the overlay is cosmetic and must
// never block a real gesture.
func (a *Actions) showCursorAt(ctx context.Context, tabID entity.TabID, x, y float64) {
	if a.disableCursorOverlay {
		return
	}
	_, _ = a.evalRaw(ctx, tabID, cursorOverlayJS)
	_, _ = a.evalRaw(ctx, tabID, cursorMoveJS(x, y))
}

func findElement(snap *entity.Snapshot, uid int) (entity.SnapshotElement, bool) {
	if snap == nil {
		return entity.SnapshotElement{}, false
	}
	for _, e := range snap.Elements {
		if e.UID == uid {
			return e, true
		}
	}
	return entity.SnapshotElement{}, false
}

func staleUIDError(uid int) string {
	return fmt.Sprintf("Error: Element with UID %d not found in snapshot. Take a new snapshot first.", uid)
}

type evalResult struct {
	Result struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	} `json:"result"`
	ExceptionDetails *struct {
		Text string `json:"text"`
	} `json:"exceptionDetails"`
}

// evalRaw evaluates a JS expression on tabID and returns the raw JSON value
// of the result, or an error for a thrown exception or transport failure.
func (a *Actions) evalRaw(ctx context.Context, tabID entity.TabID, expr string) (json.RawMessage, error) {
	raw, err := a.debugger.Send(ctx, tabID, "Runtime.evaluate", map[string]any{"expression": expr})
	if err != nil {
		return nil, err
	}
	var r evalResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode eval result: %w", err)
	}
	if r.ExceptionDetails != nil {
		return nil, fmt.Errorf("page exception: %s", r.ExceptionDetails.Text)
	}
	return r.Result.Value, nil
}

func (a *Actions) evalBool(ctx context.Context, tabID entity.TabID, expr string) (bool, error) {
	raw, err := a.evalRaw(ctx, tabID, expr)
	if err != nil {
		return false, err
	}
	var v bool
	_ = json.Unmarshal(raw, &v)
	return v, nil
}

func (a *Actions) evalString(ctx context.Context, tabID entity.TabID, expr string) (string, error) {
	raw, err := a.evalRaw(ctx, tabID, expr)
	if err != nil {
		return "", err
	}
	var v string
	_ = json.Unmarshal(raw, &v)
	return v, nil
}

func uidSelector(uid int) string {
	return fmt.Sprintf(`document.querySelector('[data-edith-uid="%d"]')`, uid)
}

// elementRect re-reads an element's bounding box right before a gesture is
// dispatched — the coordinates recorded in a Snapshot can be stale by the
// time the LLM acts on them (the page may have scrolled).
func (a *Actions) elementRect(ctx context.Context, tabID entity.TabID, uid int) (x, y float64, err error) {
	expr := fmt.Sprintf(`(function(){
		var el = %s;
		if (!el) return null;
		el.scrollIntoView({block: 'center', inline: 'center'});
		var r = el.getBoundingClientRect();
		return JSON.stringify({x: r.left + r.width/2, y: r.top + r.height/2});
	})()`, uidSelector(uid))
	raw, err := a.evalRaw(ctx, tabID, expr)
	if err != nil {
		return 0, 0, err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return 0, 0, fmt.Errorf("element for uid %d not found on the live page", uid)
	}
	var point struct{ X, Y float64 }
	if err := json.Unmarshal([]byte(s), &point); err != nil {
		return 0, 0, fmt.Errorf("decode element rect: %w", err)
	}
	return point.X, point.Y, nil
}

// Click implements §4.3.2's click primitive, trying each strategy in turn
// and stopping at the first one that reaches the page: an in-page
// .click() (with target="_blank" stripped so the click stays in-tab),
// then a CDP mouse gesture at the element's live center, then synthetic
// mousedown/mouseup/click events, and finally — if the element carries an
// absolute href — a direct navigation. A newly opened tab is adopted and
// reported back via the __NEW_TAB__ sentinel so the Agent Loop can make
// it the active tab; with more than one new tab, the last one wins.
func (a *Actions) Click(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot) (string, error) {
	el, ok := findElement(snap, uid)
	if !ok {
		return staleUIDError(uid), nil
	}

	clicked, cerr := a.evalBool(ctx, tabID, fmt.Sprintf(`(function(){
		var el = %s;
		if (!el) return false;
		var prevTarget = el.getAttribute('target');
		if (prevTarget === '_blank') el.removeAttribute('target');
		el.click();
		if (prevTarget === '_blank') el.setAttribute('target', prevTarget);
		return true;
	})()`, uidSelector(uid)))

	if cerr != nil || !clicked {
		x, y, rectErr := a.elementRect(ctx, tabID, uid)
		dispatched := rectErr == nil
		if dispatched {
			a.showCursorAt(ctx, tabID, x, y)
			for _, evt := range []string{"mouseMoved", "mousePressed", "mouseReleased"} {
				if _, derr := a.debugger.Send(ctx, tabID, "Input.dispatchMouseEvent", map[string]any{
					"type": evt, "x": x, "y": y, "button": "left", "clickCount": 1,
				}); derr != nil {
					dispatched = false
					break
				}
			}
		}

		if !dispatched {
			synthesized, serr := a.evalBool(ctx, tabID, fmt.Sprintf(`(function(){
				var el = %s;
				if (!el) return false;
				['mousedown', 'mouseup', 'click'].forEach(function(type){
					el.dispatchEvent(new MouseEvent(type, {bubbles: true, cancelable: true, view: window}));
				});
				return true;
			})()`, uidSelector(uid)))
			if serr != nil || !synthesized {
				if el.Href != "" {
					return a.Navigate(ctx, tabID, el.Href)
				}
				return fmt.Sprintf("click on uid %d did not reach the page: %v", uid, serr), nil
			}
		}
	}

	time.Sleep(500 * time.Millisecond)

	adopted, aerr := a.host.AdoptNewTabs(ctx)
	if aerr == nil && len(adopted) > 0 {
		newTab := adopted[len(adopted)-1]
		if err := a.debugger.Attach(ctx, newTab); err != nil {
			a.logger.Warn("failed to attach debugger to newly opened tab", "tabID", newTab, "error", err)
		}
		return fmt.Sprintf("clicked uid %d; a new tab opened: __NEW_TAB__:%d", uid, newTab), nil
	}

	return fmt.Sprintf("clicked %s %q", el.Role, el.Name), nil
}

// TypeText clears the target's current content and types new text into
// it, supporting both form fields and contenteditable elements.
func (a *Actions) TypeText(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot, text string) (string, error) {
	el, ok := findElement(snap, uid)
	if !ok {
		return staleUIDError(uid), nil
	}
	if el.Type == "password" || el.Type == "hidden" {
		return fmt.Sprintf("refusing to type into uid %d: password/hidden fields are never addressable", uid), nil
	}

	tx, ty, err := a.elementRect(ctx, tabID, uid)
	if err != nil {
		return fmt.Sprintf("could not locate element uid %d: %s", uid, err), nil
	}
	a.showCursorAt(ctx, tabID, tx, ty)

	focused, ferr := a.evalBool(ctx, tabID, fmt.Sprintf(`(function(){
		var el = %s;
		if (!el) return false;
		el.focus();
		if (el.isContentEditable) {
			var range = document.createRange();
			range.selectNodeContents(el);
			var sel = window.getSelection();
			sel.removeAllRanges();
			sel.addRange(range);
			document.execCommand('delete');
		} else {
			el.value = '';
			el.dispatchEvent(new Event('input', {bubbles: true}));
		}
		return true;
	})()`, uidSelector(uid)))
	if ferr != nil || !focused {
		return fmt.Sprintf("could not focus uid %d to type into it: %v", uid, ferr), nil
	}

	// insertText is the canonical channel here, not per-character key
	// events: it routes correctly through both plain inputs and
	// contenteditable roots, where synthetic keydown/keyup do not.
	if _, err := a.debugger.Send(ctx, tabID, "Input.insertText", map[string]any{"text": text}); err != nil {
		return fmt.Sprintf("failed to type into uid %d: %v", uid, err), nil
	}

	_, _ = a.evalRaw(ctx, tabID, fmt.Sprintf(`(function(){
		var el = %s;
		if (!el) return;
		el.dispatchEvent(new InputEvent('input', {bubbles: true, data: %s, inputType: 'insertText'}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		el.dispatchEvent(new KeyboardEvent('keydown', {bubbles: true}));
		el.dispatchEvent(new KeyboardEvent('keyup', {bubbles: true}));
	})()`, uidSelector(uid), mustJSON(text)))

	return fmt.Sprintf("typed %q into uid %d", text, uid), nil
}

func mustJSON(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

var virtualKeys = map[string]struct {
	key  string
	code string
}{
	"Enter":      {"Enter", "Enter"},
	"Tab":        {"Tab", "Tab"},
	"Escape":     {"Escape", "Escape"},
	"ArrowDown":  {"ArrowDown", "ArrowDown"},
	"ArrowUp":    {"ArrowUp", "ArrowUp"},
	"ArrowLeft":  {"ArrowLeft", "ArrowLeft"},
	"ArrowRight": {"ArrowRight", "ArrowRight"},
	"Backspace":  {"Backspace", "Backspace"},
	"Delete":     {"Delete", "Delete"},
}

// PressKey dispatches a key by name. The fixed table covers the
// non-printable keys the LLM actually names; any other key name is sent
// as-is as both the CDP key and code, with no char code or virtual key
// code attached. Enter is special:
// it often submits a form, so the primitive polls for a URL change and
// waits out the resulting navigation before returning.
func (a *Actions) PressKey(ctx context.Context, tabID entity.TabID, key string) (string, error) {
	code, virtualKey := keyCode(key)

	before, _ := a.evalString(ctx, tabID, "location.href")

	if _, err := a.debugger.Send(ctx, tabID, "Input.dispatchKeyEvent", map[string]any{
		"type": "keyDown", "key": virtualKey, "code": code,
	}); err != nil {
		return fmt.Sprintf("failed to press %s: %v", key, err), nil
	}
	if _, err := a.debugger.Send(ctx, tabID, "Input.dispatchKeyEvent", map[string]any{
		"type": "keyUp", "key": virtualKey, "code": code,
	}); err != nil {
		return fmt.Sprintf("failed to press %s: %v", key, err), nil
	}

	if key == "Enter" {
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			after, _ := a.evalString(ctx, tabID, "location.href")
			if after != "" && after != before {
				a.waitPageLoad(ctx, tabID, 8*time.Second)
				return "Pressed Enter — page navigated", nil
			}
			select {
			case <-time.After(300 * time.Millisecond):
			case <-ctx.Done():
				return "Pressed Enter", ctx.Err()
			}
		}
	}

	return fmt.Sprintf("Pressed key: %s", key), nil
}

// keyCode resolves a key name to the {code, key} pair dispatched over
// CDP. An unmapped key name is returned unchanged for both fields.
func keyCode(key string) (code, virtualKey string) {
	if vk, ok := virtualKeys[key]; ok {
		return vk.code, vk.key
	}
	return key, key
}

func (a *Actions) waitPageLoad(ctx context.Context, tabID entity.TabID, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ready, err := a.evalString(ctx, tabID, "document.readyState")
		if err == nil && ready == "complete" {
			return
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}
}

// Scroll dispatches a mouse wheel event and falls back to window.scrollBy
// if sending the wheel event over the debugger fails.
func (a *Actions) Scroll(ctx context.Context, tabID entity.TabID, direction string, amount int) (string, error) {
	if amount <= 0 {
		amount = 600
	}
	var dx, dy float64
	switch strings.ToLower(direction) {
	case "down":
		dy = float64(amount)
	case "up":
		dy = -float64(amount)
	case "right":
		dx = float64(amount)
	case "left":
		dx = -float64(amount)
	default:
		return fmt.Sprintf("unsupported scroll direction %q; use up, down, left, or right", direction), nil
	}

	if _, err := a.debugger.Send(ctx, tabID, "Input.dispatchMouseEvent", map[string]any{
		"type": "mouseWheel", "x": 400, "y": 300, "deltaX": dx, "deltaY": dy,
	}); err != nil {
		_, _ = a.evalRaw(ctx, tabID, fmt.Sprintf("window.scrollBy(%f, %f)", dx, dy))
	}

	time.Sleep(400 * time.Millisecond)
	return fmt.Sprintf("scrolled %s by %d", direction, amount), nil
}

// SelectOption matches value, then exact (case-insensitive) text, then
// substring text, against a <select>'s options — the same fallback chain
// a human skimming the rendered option list would use.
func (a *Actions) SelectOption(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot, value string) (string, error) {
	el, ok := findElement(snap, uid)
	if !ok {
		return staleUIDError(uid), nil
	}
	if !el.IsSelect {
		return fmt.Sprintf("uid %d is not a select element", uid), nil
	}

	match := -1
	for i, opt := range el.Options {
		if opt.Value == value {
			match = i
			break
		}
	}
	if match == -1 {
		lower := strings.ToLower(value)
		for i, opt := range el.Options {
			if strings.ToLower(opt.Text) == lower {
				match = i
				break
			}
		}
	}
	if match == -1 {
		lower := strings.ToLower(value)
		for i, opt := range el.Options {
			if strings.Contains(strings.ToLower(opt.Text), lower) {
				match = i
				break
			}
		}
	}
	if match == -1 {
		var available []string
		for _, opt := range el.Options {
			available = append(available, opt.Text)
		}
		return fmt.Sprintf("no option matching %q in uid %d; available options: %s", value, uid, strings.Join(available, ", ")), nil
	}

	changed, err := a.evalBool(ctx, tabID, fmt.Sprintf(`(function(){
		var el = %s;
		if (!el) return false;
		el.selectedIndex = %d;
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, uidSelector(uid), match))
	if err != nil || !changed {
		return fmt.Sprintf("failed to select option on uid %d: %v", uid, err), nil
	}
	return fmt.Sprintf("selected %q on uid %d", el.Options[match].Text, uid), nil
}

// Hover dispatches a mouse-moved gesture plus synthetic mouseenter/over
// events so hover-revealed menus and tooltips have a chance to render
// before the next snapshot is taken.
func (a *Actions) Hover(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot) (string, error) {
	if _, ok := findElement(snap, uid); !ok {
		return staleUIDError(uid), nil
	}

	x, y, err := a.elementRect(ctx, tabID, uid)
	if err != nil {
		return fmt.Sprintf("could not locate element uid %d: %s", uid, err), nil
	}
	a.showCursorAt(ctx, tabID, x, y)
	if _, err := a.debugger.Send(ctx, tabID, "Input.dispatchMouseEvent", map[string]any{
		"type": "mouseMoved", "x": x, "y": y,
	}); err != nil {
		return fmt.Sprintf("hover on uid %d failed: %v", uid, err), nil
	}

	_, _ = a.evalRaw(ctx, tabID, fmt.Sprintf(`(function(){
		var el = %s;
		if (!el) return;
		el.dispatchEvent(new MouseEvent('mouseenter', {bubbles: true}));
		el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true}));
	})()`, uidSelector(uid)))

	time.Sleep(200 * time.Millisecond)
	return fmt.Sprintf("hovered uid %d", uid), nil
}

// SetValue bypasses a framework's tracked value setter (React wraps the
// native <input> value property to intercept writes) by calling the
// prototype's own setter directly, then dispatching input/change so the
// framework still observes the change.
func (a *Actions) SetValue(ctx context.Context, tabID entity.TabID, uid int, snap *entity.Snapshot, value string) (string, error) {
	el, ok := findElement(snap, uid)
	if !ok {
		return staleUIDError(uid), nil
	}
	if el.Type == "password" || el.Type == "hidden" {
		return fmt.Sprintf("refusing to set value on uid %d: password/hidden fields are never addressable", uid), nil
	}

	encoded, _ := json.Marshal(value)
	ok2, err := a.evalBool(ctx, tabID, fmt.Sprintf(`(function(){
		var el = %s;
		if (!el) return false;
		var proto = el.tagName === 'TEXTAREA' ? window.HTMLTextAreaElement.prototype : window.HTMLInputElement.prototype;
		var setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
		setter.call(el, %s);
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, uidSelector(uid), string(encoded)))
	if err != nil || !ok2 {
		return fmt.Sprintf("failed to set value on uid %d: %v", uid, err), nil
	}
	return fmt.Sprintf("set value of uid %d to %q", uid, value), nil
}

// WaitForNetworkIdle tracks tabID's in-flight request count off the
// Debugger Channel's own Network.* event stream — requestWillBeSent
// increments it, loadingFinished/loadingFailed decrement it — and
// declares the page idle once that count has sat at zero for
// idleThreshold. The three listeners are scoped to this single call and
// torn down on every exit path via the unsubscribe functions On returns.
func (a *Actions) WaitForNetworkIdle(ctx context.Context, tabID entity.TabID, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	const idleThreshold = 500 * time.Millisecond
	const pollInterval = 100 * time.Millisecond

	var mu sync.Mutex
	pending := 0
	lastChange := time.Now()

	bump := func(id entity.TabID, delta int) {
		if id != tabID {
			return
		}
		mu.Lock()
		pending += delta
		if pending < 0 {
			pending = 0
		}
		lastChange = time.Now()
		mu.Unlock()
	}

	unsubs := []func(){
		a.debugger.On("Network.requestWillBeSent", func(id entity.TabID, _ json.RawMessage) { bump(id, 1) }),
		a.debugger.On("Network.loadingFinished", func(id entity.TabID, _ json.RawMessage) { bump(id, -1) }),
		a.debugger.On("Network.loadingFailed", func(id entity.TabID, _ json.RawMessage) { bump(id, -1) }),
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		mu.Lock()
		idle := pending == 0 && time.Since(lastChange) >= idleThreshold
		mu.Unlock()
		if idle {
			return "network idle", nil
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return "network idle wait cancelled", ctx.Err()
		}
	}
	mu.Lock()
	finalPending := pending
	mu.Unlock()
	return fmt.Sprintf("network idle wait timed out after %d pending requests; continuing anyway", finalPending), nil
}

// Navigate loads an absolute URL in tabID, normalizing bare hostnames the
// same way the Tab Registry does for newly created tabs.
func (a *Actions) Navigate(ctx context.Context, tabID entity.TabID, url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "navigate requires a non-empty url", nil
	}
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}

	if _, err := a.debugger.Send(ctx, tabID, "Page.navigate", map[string]any{"url": url}); err != nil {
		return fmt.Sprintf("navigation to %s failed: %v", url, err), nil
	}

	a.waitPageLoad(ctx, tabID, 15*time.Second)
	time.Sleep(800 * time.Millisecond)
	if !a.disableCursorOverlay {
		_, _ = a.evalRaw(ctx, tabID, cursorOverlayJS)
	}
	return fmt.Sprintf("navigated to %s", url), nil
}

// Screenshot captures and resizes tabID's current viewport via the
// Browser Host and reports only its format and size in the transcript.
// The image bytes are discarded here: they are not fed into the LLM's
// text-only context, and they are not stored or shown anywhere else.
func (a *Actions) Screenshot(ctx context.Context, tabID entity.TabID) (string, error) {
	data, format, err := a.host.Screenshot(ctx, tabID)
	if err != nil {
		return fmt.Sprintf("screenshot failed: %v", err), nil
	}
	return fmt.Sprintf("Screenshot captured (%s, %d bytes). Its contents are not available to you.", format, len(data)), nil
}
