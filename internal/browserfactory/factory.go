// Package browserfactory produces isolated Playwright browser sessions:
// stealth-patched, optionally video-recording, and seedable with a
// previously captured storage state (cookies + localStorage) so the
// executor can simulate being logged in without re-running the login
// flow. Every session is a fresh BrowserContext; no two tests or crawl
// phases ever share one.
package browserfactory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// Options controls how a session is created.
type Options struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	RecordVideo    bool
	VideoDir       string
	StorageState   []byte // JSON storage_state.json content, or nil for a clean session
	UserAgent      string
}

// Session is one isolated browser session: a context + its default page.
type Session struct {
	Context playwright.BrowserContext
	Page    playwright.Page
}

// Close releases the session's context (and its page).
func (s *Session) Close() error {
	if s.Context != nil {
		return s.Context.Close()
	}
	return nil
}

// Factory launches and owns a single browser process; every call to
// NewSession spins up a fresh, isolated BrowserContext from it.
type Factory struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *zap.Logger
}

// New starts Playwright and launches Chromium. Both the crawler and
// the executor's worker pool obtain sessions from one factory.
func New(headless bool, logger *zap.Logger) (*Factory, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("browserfactory: starting playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args: []string{
			// stealth: remove the most obvious automation fingerprints
			"--disable-blink-features=AutomationControlled",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("browserfactory: launching chromium: %w", err)
	}

	return &Factory{pw: pw, browser: browser, logger: logger}, nil
}

// NewSession creates one isolated BrowserContext + Page, seeded with
// storage state if provided, recording video if requested.
func (f *Factory) NewSession(opts Options) (*Session, error) {
	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  valueOr(opts.ViewportWidth, 1920),
			Height: valueOr(opts.ViewportHeight, 1080),
		},
	}
	if opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.RecordVideo && opts.VideoDir != "" {
		ctxOpts.RecordVideo = &playwright.RecordVideo{Dir: opts.VideoDir}
	}
	if len(opts.StorageState) > 0 {
		statePath, err := writeTempStorageState(opts.StorageState)
		if err != nil {
			return nil, err
		}
		defer os.Remove(statePath)
		ctxOpts.StorageStatePath = playwright.String(statePath)
	}

	bctx, err := f.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("browserfactory: creating context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("browserfactory: creating page: %w", err)
	}

	// patch the most common headless-detection surface before any navigation.
	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealthInitScript)}); err != nil && f.logger != nil {
		f.logger.Warn("browserfactory: stealth init script failed", zap.Error(err))
	}

	return &Session{Context: bctx, Page: page}, nil
}

// CaptureStorageState returns the session's cookies + localStorage as
// the JSON blob seedable into a later session's Options.StorageState.
func (s *Session) CaptureStorageState() ([]byte, error) {
	state, err := s.Context.StorageState()
	if err != nil {
		return nil, fmt.Errorf("browserfactory: capturing storage state: %w", err)
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("browserfactory: encoding storage state: %w", err)
	}
	return blob, nil
}

// Close shuts down the browser and stops Playwright.
func (f *Factory) Close() error {
	if f.browser != nil {
		_ = f.browser.Close()
	}
	if f.pw != nil {
		return f.pw.Stop()
	}
	return nil
}

// writeTempStorageState persists a captured storage-state blob to a
// temp file, since playwright-go seeds context storage state from a
// file path rather than an in-memory buffer.
func writeTempStorageState(state []byte) (string, error) {
	f, err := os.CreateTemp("", "qaengine-storage-state-*.json")
	if err != nil {
		return "", fmt.Errorf("browserfactory: writing temp storage state: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(state); err != nil {
		return "", fmt.Errorf("browserfactory: writing temp storage state: %w", err)
	}
	return f.Name(), nil
}

func valueOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

const stealthInitScript = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`
