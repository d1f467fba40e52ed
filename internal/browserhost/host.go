// Package browserhost is the reference Browser Host + State Extractor
// adapter: a Playwright-backed implementation of the page-scripting and
// tab-control surface the core treats as an external collaborator.
package browserhost

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	envHeadless       = "AGENT_HEADLESS"
	defaultNavTimeout = 30 * time.Second
	markerAttr        = "data-ba-idx"
)

// Host exposes the page-scripting surface the Agent Runner's bundled tool
// executor and state extractor need. It owns exactly one active tab.
type Host interface {
	Close(ctx context.Context) error
	Page() playwright.Page

	Navigate(ctx context.Context, url string, newTab bool) error
	GoBack(ctx context.Context) error
	ClickByIndex(ctx context.Context, index int) error
	ClickByCoordinates(ctx context.Context, x, y float64) error
	TypeText(ctx context.Context, index int, text string) error
	Scroll(ctx context.Context, direction string, index int, amount float64) error
	SendKeys(ctx context.Context, keys string) error
	WaitForElement(ctx context.Context, index int, timeout time.Duration) error
	WaitForNavigation(ctx context.Context, timeout time.Duration) error
	Evaluate(ctx context.Context, script string, arg any) (any, error)
	Screenshot(ctx context.Context) (string, error)
	ExtractLinks(ctx context.Context) ([]LinkInfo, error)
	PageMetadata(ctx context.Context) (Metadata, error)
	HighlightElement(ctx context.Context, index int) error
	DropdownOptions(ctx context.Context, index int) ([]string, error)
	SelectDropdownOption(ctx context.Context, index int, text string) error
}

// LinkInfo is one (text, href) pair from extract-links.
type LinkInfo struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Metadata is the get-page-metadata result.
type Metadata struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Launcher owns the Playwright process and browser lifecycle.
type Launcher struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewLauncher starts Playwright and launches Chromium.
func NewLauncher() (*Launcher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	headless := parseBoolEnv(envHeadless, true)
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args:     []string{"--disable-dev-shm-usage", "--no-sandbox"},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &Launcher{pw: pw, browser: browser}, nil
}

// NewHost opens a fresh tab and returns a Host bound to it.
func (l *Launcher) NewHost() (Host, error) {
	bctx, err := l.browser.NewContext(playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(defaultNavTimeout.Milliseconds()))
	return &host{bctx: bctx, page: page}, nil
}

// Close tears down the browser and Playwright process.
func (l *Launcher) Close() error {
	var err error
	if l.browser != nil {
		err = l.browser.Close()
	}
	if l.pw != nil {
		if stopErr := l.pw.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	return err
}

type host struct {
	bctx playwright.BrowserContext
	page playwright.Page
}

func (h *host) Page() playwright.Page { return h.page }

func (h *host) Close(ctx context.Context) error {
	if err := h.page.Close(); err != nil {
		return err
	}
	return h.bctx.Close()
}

func (h *host) Navigate(ctx context.Context, url string, newTab bool) error {
	if newTab {
		page, err := h.bctx.NewPage()
		if err != nil {
			return fmt.Errorf("new tab: %w", err)
		}
		h.page = page
	}
	_, err := h.page.Goto(url)
	return err
}

func (h *host) GoBack(ctx context.Context) error {
	_, err := h.page.GoBack()
	return err
}

func (h *host) selectorForIndex(index int) string {
	return fmt.Sprintf("[%s=\"%d\"]", markerAttr, index)
}

func (h *host) ClickByIndex(ctx context.Context, index int) error {
	return h.page.Locator(h.selectorForIndex(index)).First().Click()
}

func (h *host) ClickByCoordinates(ctx context.Context, x, y float64) error {
	return h.page.Mouse().Click(x, y)
}

func (h *host) TypeText(ctx context.Context, index int, text string) error {
	if index <= 0 {
		return h.page.Keyboard().Type(text)
	}
	return h.page.Locator(h.selectorForIndex(index)).First().Fill(text)
}

func (h *host) Scroll(ctx context.Context, direction string, index int, amount float64) error {
	delta := amount
	if delta <= 0 {
		delta = 600
	}
	if direction == "up" {
		delta = -delta
	}
	if index > 0 {
		_, err := h.page.Locator(h.selectorForIndex(index)).First().Evaluate(
			"(el, dy) => el.scrollBy(0, dy)", delta)
		return err
	}
	_, err := h.page.Evaluate("(dy) => window.scrollBy(0, dy)", delta)
	return err
}

func (h *host) SendKeys(ctx context.Context, keys string) error {
	return h.page.Keyboard().Press(keys)
}

func (h *host) WaitForElement(ctx context.Context, index int, timeout time.Duration) error {
	_, err := h.page.WaitForSelector(h.selectorForIndex(index), playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

func (h *host) WaitForNavigation(ctx context.Context, timeout time.Duration) error {
	return h.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (h *host) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	return h.page.Evaluate(script, arg)
}

func (h *host) Screenshot(ctx context.Context) (string, error) {
	data, err := h.page.Screenshot(playwright.PageScreenshotOptions{Type: playwright.ScreenshotTypePng})
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64Encode(data), nil
}

func (h *host) ExtractLinks(ctx context.Context) ([]LinkInfo, error) {
	raw, err := h.page.Evaluate(`() => Array.from(document.querySelectorAll('a[href]')).map(a => ({text: (a.innerText||'').trim().slice(0,200), href: a.href}))`)
	if err != nil {
		return nil, err
	}
	return decodeLinks(raw), nil
}

func (h *host) PageMetadata(ctx context.Context) (Metadata, error) {
	raw, err := h.page.Evaluate(`() => { const m = document.querySelector('meta[name="description"]'); return {title: document.title, url: window.location.href, description: m ? m.content : ''} }`)
	if err != nil {
		return Metadata{}, err
	}
	return decodeMetadata(raw), nil
}

func (h *host) HighlightElement(ctx context.Context, index int) error {
	_, err := h.page.Locator(h.selectorForIndex(index)).First().Evaluate(
		`(el) => { el.style.outline = '3px solid #ff5722'; setTimeout(() => { el.style.outline = '' }, 1500); }`, nil)
	return err
}

func (h *host) DropdownOptions(ctx context.Context, index int) ([]string, error) {
	raw, err := h.page.Locator(h.selectorForIndex(index)).First().Evaluate(
		`(el) => Array.from(el.options || []).map(o => o.text)`, nil)
	if err != nil {
		return nil, err
	}
	return decodeStrings(raw), nil
}

func (h *host) SelectDropdownOption(ctx context.Context, index int, text string) error {
	_, err := h.page.Locator(h.selectorForIndex(index)).First().SelectOption(playwright.SelectOptionValues{
		Labels: &[]string{text},
	})
	return err
}

func parseBoolEnv(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
