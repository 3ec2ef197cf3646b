// Package host owns the one real *rod.Browser process and the mapping
// from this system's opaque entity.TabID to rod's own page handles. It
// implements output.BrowserHostPort; debugger-session bookkeeping is a
// separate concern layered on top by the sibling debugger package, which
// reads pages back out of this package via the PageProvider it exposes.
package host

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"browsercore/internal/application/port/output"
	"browsercore/internal/domain/entity"
)

var _ output.BrowserHostPort = (*Host)(nil)

// Config mirrors the teacher's BrowserConfig, extended with a screenshot
// max-width knob that used to be a hardcoded constant.
type Config struct {
	Headless        bool
	SlowMotion      time.Duration
	NoSandbox       bool
	DevTools        bool
	ScreenshotWidth int
}

func DefaultConfig() Config {
	return Config{
		Headless:        false,
		SlowMotion:      200 * time.Millisecond,
		NoSandbox:       true,
		DevTools:        false,
		ScreenshotWidth: 1024,
	}
}

type Host struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      Config

	nextID atomic.Int64

	mu       sync.RWMutex
	pages    map[entity.TabID]*rod.Page
	byTarget map[proto.TargetTargetID]entity.TabID
}

func New(cfg Config) (*Host, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Devtools(cfg.DevTools).
		NoSandbox(cfg.NoSandbox).
		Delete("use-mock-keychain").
		Set("disable-web-security").
		Set("allow-running-insecure-content").
		Set("disable-setuid-sandbox")

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url).Trace(false).SlowMotion(cfg.SlowMotion)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &Host{
		browser:  browser,
		launcher: l,
		cfg:      cfg,
		pages:    make(map[entity.TabID]*rod.Page),
		byTarget: make(map[proto.TargetTargetID]entity.TabID),
	}, nil
}

// NewTab opens a fresh top-level page and mints a new entity.TabID for it.
// An empty url opens about:blank, matching open_browser with no argument.
func (h *Host) NewTab(ctx context.Context, url string) (entity.TabID, error) {
	target := url
	if target == "" {
		target = "about:blank"
	}

	page, err := h.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return 0, fmt.Errorf("open tab: %w", err)
	}

	return h.track(page), nil
}

func (h *Host) track(page *rod.Page) entity.TabID {
	id := entity.TabID(h.nextID.Add(1))
	h.mu.Lock()
	h.pages[id] = page
	h.byTarget[page.TargetID] = id
	h.mu.Unlock()
	return id
}

func (h *Host) CloseTab(ctx context.Context, tabID entity.TabID) error {
	h.mu.Lock()
	page, ok := h.pages[tabID]
	delete(h.pages, tabID)
	if ok {
		delete(h.byTarget, page.TargetID)
	}
	h.mu.Unlock()

	if !ok {
		return nil // idempotent: already gone
	}
	return page.Close()
}

func (h *Host) Screenshot(ctx context.Context, tabID entity.TabID) ([]byte, string, error) {
	page, ok := h.PageFor(tabID)
	if !ok {
		return nil, "", fmt.Errorf("tab %d not found", tabID)
	}

	raw, err := page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, "", fmt.Errorf("screenshot: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("decode screenshot: %w", err)
	}
	if h.cfg.ScreenshotWidth > 0 && img.Bounds().Dx() > h.cfg.ScreenshotWidth {
		img = imaging.Resize(img, h.cfg.ScreenshotWidth, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, "", fmt.Errorf("encode screenshot: %w", err)
	}
	return buf.Bytes(), "jpeg", nil
}

// PageFor is the PageProvider the debugger channel reads from; it is the
// only place that hands out the underlying *rod.Page.
func (h *Host) PageFor(tabID entity.TabID) (*rod.Page, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.pages[tabID]
	return p, ok
}

// SnapshotTabIDs returns the set of tab ids the host tracks right now,
// for comparing before and after an action that may open a tab. It is a thin
// convenience over the host's own bookkeeping so the action layer never
// has to reach into rod's target list directly.
func (h *Host) SnapshotTabIDs() map[entity.TabID]struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[entity.TabID]struct{}, len(h.pages))
	for id := range h.pages {
		out[id] = struct{}{}
	}
	return out
}

// AdoptPage registers a page rod already discovered (e.g. one opened by
// window.open that the click primitive detects) under a fresh tab id.
func (h *Host) AdoptPage(page *rod.Page) entity.TabID {
	return h.track(page)
}

// Pages lists every rod target currently open in the browser, used to
// diff against SnapshotTabIDs for new-tab detection after a click.
func (h *Host) Pages(ctx context.Context) ([]*rod.Page, error) {
	return h.browser.Context(ctx).Pages()
}

// AdoptNewTabs diffs the browser's live page list against everything the
// host already tracks and adopts any page rod discovered on its own (a
// window.open, a target="_blank" navigation) under a fresh tab id. It is
// the mechanism the click action uses to turn "a new tab appeared" into a
// TabID the rest of the system can address.
func (h *Host) AdoptNewTabs(ctx context.Context) ([]entity.TabID, error) {
	pages, err := h.Pages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	h.mu.RLock()
	known := make(map[proto.TargetTargetID]struct{}, len(h.byTarget))
	for tid := range h.byTarget {
		known[tid] = struct{}{}
	}
	h.mu.RUnlock()

	var adopted []entity.TabID
	for _, page := range pages {
		if _, ok := known[page.TargetID]; ok {
			continue
		}
		adopted = append(adopted, h.track(page))
	}
	return adopted, nil
}

func (h *Host) Close() {
	if h.browser != nil {
		_ = h.browser.Close()
	}
	if h.launcher != nil {
		h.launcher.Kill()
		h.launcher.Cleanup()
	}
}
