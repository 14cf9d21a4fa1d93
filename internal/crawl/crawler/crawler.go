// Package crawler drives a single browser session through the crawl
// frontier, extracting page structure, discovering links by four
// independent strategies (static, SPA, dynamic, interactive reveal),
// and producing the site model the planner consumes.
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/browserfactory"
	"github.com/qaengine/qaengine/internal/crawl/extract"
	"github.com/qaengine/qaengine/internal/crawl/frontier"
	"github.com/qaengine/qaengine/internal/crawl/urlnorm"
	"github.com/qaengine/qaengine/internal/domain"
)

// Config controls one crawl run.
type Config struct {
	BaseURL       string
	MaxPages      int
	MaxDepth      int
	Include       []*regexp.Regexp
	Exclude       []*regexp.Regexp
	ScreenshotDir string // baselines dir; empty disables screenshot capture
	DOMDir        string // debug dir for DOM snapshots; empty disables
	LoginPath     string // used by the auth probe pass
}

// Crawler owns one browser factory session and drains the frontier
// sequentially; link extraction depends on the previously rendered
// DOM, so pages are never fetched in parallel.
type Crawler struct {
	factory   *browserfactory.Factory
	extractor *extract.Extractor
	logger    *zap.Logger
}

func New(factory *browserfactory.Factory, logger *zap.Logger) *Crawler {
	return &Crawler{factory: factory, extractor: extract.New(), logger: logger}
}

// rejectedExtensions are never enqueued as crawlable pages.
var rejectedExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".bmp",
	".woff", ".woff2", ".ttf", ".eot", ".otf",
	".zip", ".tar", ".gz", ".rar", ".7z",
	".mp4", ".mp3", ".avi", ".mov", ".wav",
	".xml", ".json", ".pdf", ".rss", ".atom",
}

func isValidPageURL(raw string) bool {
	lower := strings.ToLower(raw)
	for _, ext := range rejectedExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

var spaMarkers = []string{"#root", "#__next", "#app", "[ng-app]", "[data-reactroot]", "#app-root"}

// Crawl runs the full crawl loop and returns the resulting site model.
func (c *Crawler) Crawl(ctx context.Context, cfg Config) (*domain.SiteModel, error) {
	session, err := c.factory.NewSession(browserfactory.Options{
		Headless:       true,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
	})
	if err != nil {
		return nil, fmt.Errorf("crawler: opening session: %w", err)
	}
	defer session.Close()

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("crawler: invalid base URL %q: %w", cfg.BaseURL, err)
	}

	var requests []domain.NetworkRequest
	apiEndpoints := make(map[string]bool)
	var netMu sync.Mutex // response events fire on the driver's goroutine
	session.Page.OnResponse(func(resp playwright.Response) {
		req := resp.Request()
		method := req.Method()
		resourceType := req.ResourceType()
		status := resp.Status()
		netMu.Lock()
		requests = append(requests, domain.NetworkRequest{
			Method: method,
			URL:    req.URL(),
			Status: status,
			Failed: status >= 400,
		})
		if resourceType == "xhr" || resourceType == "fetch" {
			if u, err := url.Parse(req.URL()); err == nil {
				apiEndpoints[method+":"+u.Path] = true
			}
		}
		netMu.Unlock()
	})

	scope := frontier.Scope{MaxDepth: cfg.MaxDepth, Include: cfg.Include, Exclude: cfg.Exclude}
	fr := frontier.New(scope)

	seedNorm, err := urlnorm.Normalize(cfg.BaseURL, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("crawler: normalizing seed URL: %w", err)
	}
	fr.Enqueue(seedNorm, 0, domain.PriorityStart)

	site := &domain.SiteModel{
		BaseURL:         cfg.BaseURL,
		NavigationGraph: make(map[string][]string),
		CrawledAt:       time.Now().UTC(),
	}

	sitemapLoaded := false

	for {
		if cfg.MaxPages > 0 && fr.VisitedCount() >= cfg.MaxPages {
			break
		}
		entry, ok := fr.Pop()
		if !ok {
			break
		}

		netMu.Lock()
		requests = requests[:0]
		netMu.Unlock()
		page, err := c.crawlOne(session.Page, entry.URL)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("crawler: navigation failed, skipping page", zap.String("url", entry.URL), zap.Error(err))
			}
			continue
		}
		netMu.Lock()
		page.NetworkRequests = append(page.NetworkRequests, requests...)
		netMu.Unlock()
		site.Pages = append(site.Pages, *page)

		if cfg.ScreenshotDir != "" {
			if path, err := c.captureScreenshot(session.Page, cfg.ScreenshotDir, page.PageID); err == nil {
				site.PageByID(page.PageID).ScreenshotPath = path
			}
		}
		if cfg.DOMDir != "" {
			if path, err := c.captureDOM(session.Page, cfg.DOMDir, page.PageID); err == nil {
				site.PageByID(page.PageID).DOMPath = path
			}
		}

		links := c.discoverLinks(session.Page, base)
		for _, link := range links {
			normalized, err := urlnorm.Normalize(link, cfg.BaseURL)
			if err != nil || !isValidPageURL(normalized) {
				continue
			}
			linkURL, err := url.Parse(normalized)
			if err != nil || !urlnorm.SameHost(base, linkURL) {
				continue
			}
			if fr.Enqueue(normalized, entry.Depth+1, domain.PriorityOrganic) {
				toID := urlnorm.PageID(normalized)
				site.AddEdge(page.PageID, toID)
			} else if fr.Visited(normalized) {
				toID := urlnorm.PageID(normalized)
				site.AddEdge(page.PageID, toID)
			}
		}

		if !sitemapLoaded {
			sitemapLoaded = true
			c.enqueueSitemap(session.Page, cfg, fr)
		}
	}

	netMu.Lock()
	for ep := range apiEndpoints {
		site.APIEndpoints = append(site.APIEndpoints, ep)
	}
	netMu.Unlock()
	sort.Strings(site.APIEndpoints)

	if err := c.probeAuth(session, site, cfg); err != nil && c.logger != nil {
		c.logger.Warn("crawler: auth probe pass failed", zap.Error(err))
	}

	return site, nil
}

// crawlOne navigates to rawURL (one retry on failure), classifies the
// page, and extracts its forms/elements. Link-extraction and
// classification errors degrade to empty sets; navigation failure
// after the retry returns an error and records no page.
func (c *Crawler) crawlOne(page playwright.Page, rawURL string) (*domain.PageModel, error) {
	var navErr error
	for attempt := 0; attempt < 2; attempt++ {
		_, navErr = page.Goto(rawURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(30000),
		})
		if navErr == nil {
			break
		}
	}
	if navErr != nil {
		return nil, fmt.Errorf("navigating to %s: %w", rawURL, navErr)
	}
	page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(5000),
	})

	result := c.extractor.ExtractPage(page)

	pm := &domain.PageModel{
		PageID:       urlnorm.PageID(rawURL),
		URL:          page.URL(),
		PageType:     result.PageType,
		Title:        result.Title,
		Elements:     result.Elements,
		Forms:        result.Forms,
		AuthRequired: domain.AuthRequiredUnknown,
	}
	return pm, nil
}

func (c *Crawler) captureScreenshot(page playwright.Page, dir, pageID string) (string, error) {
	path := dir + "/" + pageID + ".png"
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return "", err
	}
	return path, nil
}

func (c *Crawler) captureDOM(page playwright.Page, dir, pageID string) (string, error) {
	content, err := page.Content()
	if err != nil {
		return "", err
	}
	path := dir + "/" + pageID + ".html"
	if err := writeFile(path, content); err != nil {
		return "", err
	}
	return path, nil
}

// discoverLinks unions the four link-discovery strategies. Each
// strategy degrades to an empty slice on error; none may panic or
// propagate out of the crawl loop.
func (c *Crawler) discoverLinks(page playwright.Page, base *url.URL) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(links []string) {
		for _, l := range links {
			if l != "" && !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}

	add(c.staticLinks(page))
	add(c.spaLinks(page, base))
	add(c.dynamicLinks(page))
	add(c.interactiveRevealLinks(page))

	return out
}

func (c *Crawler) staticLinks(page playwright.Page) []string {
	var links []string
	loc := page.Locator(`a[href], area[href], frame[src], iframe[src]`)
	count, err := loc.Count()
	if err != nil {
		return links
	}
	for i := 0; i < count; i++ {
		el := loc.Nth(i)
		href, err := el.GetAttribute("href")
		if err != nil || href == "" {
			href, err = el.GetAttribute("src")
			if err != nil || href == "" {
				continue
			}
		}
		if isIgnorableScheme(href) {
			continue
		}
		links = append(links, href)
	}
	return links
}

func isIgnorableScheme(href string) bool {
	lower := strings.ToLower(strings.TrimSpace(href))
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:", "blob:"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func (c *Crawler) spaLinks(page playwright.Page, base *url.URL) []string {
	hasMarker := false
	for _, marker := range spaMarkers {
		if count, err := page.Locator(marker).Count(); err == nil && count > 0 {
			hasMarker = true
			break
		}
	}
	if !hasMarker {
		return nil
	}

	var links []string
	loc := page.Locator("a[href]")
	count, err := loc.Count()
	if err != nil {
		return links
	}
	for i := 0; i < count; i++ {
		href, err := loc.Nth(i).GetAttribute("href")
		if err != nil || href == "" {
			continue
		}
		if strings.HasPrefix(href, "/") || strings.HasPrefix(href, "#/") {
			links = append(links, base.Scheme+"://"+base.Host+href)
		}
	}
	return links
}

var (
	onclickLocationRe = regexp.MustCompile(`location(?:\.href)?\s*=\s*['"]([^'"]+)['"]`)
	onclickNavigateRe = regexp.MustCompile(`navigate\(\s*['"]([^'"]+)['"]`)
	onclickRouterRe   = regexp.MustCompile(`router\.push\(\s*['"]([^'"]+)['"]`)
)

func (c *Crawler) dynamicLinks(page playwright.Page) []string {
	var links []string

	onclickLoc := page.Locator("[onclick]")
	if count, err := onclickLoc.Count(); err == nil {
		for i := 0; i < count; i++ {
			onclick, err := onclickLoc.Nth(i).GetAttribute("onclick")
			if err != nil || onclick == "" {
				continue
			}
			for _, re := range []*regexp.Regexp{onclickLocationRe, onclickNavigateRe, onclickRouterRe} {
				if m := re.FindStringSubmatch(onclick); len(m) == 2 {
					links = append(links, m[1])
				}
			}
		}
	}

	for _, attr := range []string{"data-href", "data-url", "data-link", "data-to", "data-route"} {
		loc := page.Locator("[" + attr + "]")
		if count, err := loc.Count(); err == nil {
			for i := 0; i < count; i++ {
				if v, err := loc.Nth(i).GetAttribute(attr); err == nil && v != "" {
					links = append(links, v)
				}
			}
		}
	}

	if formActionLoc := page.Locator("[formaction]"); formActionLoc != nil {
		if count, err := formActionLoc.Count(); err == nil {
			for i := 0; i < count; i++ {
				if v, err := formActionLoc.Nth(i).GetAttribute("formaction"); err == nil && v != "" {
					links = append(links, v)
				}
			}
		}
	}

	if content, err := page.Locator(`meta[http-equiv="refresh" i]`).First().GetAttribute("content"); err == nil && content != "" {
		if _, after, found := strings.Cut(content, ";"); found {
			after = strings.TrimSpace(after)
			if idx := strings.Index(strings.ToLower(after), "url="); idx >= 0 {
				if target := strings.TrimSpace(after[idx+4:]); target != "" {
					links = append(links, target)
				}
			}
		}
	}

	formLoc := page.Locator("form[action]")
	if count, err := formLoc.Count(); err == nil {
		for i := 0; i < count; i++ {
			if v, err := formLoc.Nth(i).GetAttribute("action"); err == nil && v != "" {
				links = append(links, v)
			}
		}
	}

	return links
}

var toggleSelectors = []string{
	"nav button",
	`[aria-haspopup="true"]`,
	`[data-toggle="dropdown"]`,
	`[class*="menu-toggle"]`,
	"details > summary",
	`[aria-expanded="false"]`,
}

const maxToggles = 8

// interactiveRevealLinks clicks up to maxToggles navigation/dropdown
// toggles, collecting any newly-visible anchor hrefs, then presses
// Escape and restores the original URL if a click caused navigation.
func (c *Crawler) interactiveRevealLinks(page playwright.Page) []string {
	originalURL := page.URL()

	before := visibleAnchorHrefs(page)
	var revealed []string
	revealedSeen := map[string]bool{}
	clicks := 0

	for _, sel := range toggleSelectors {
		if clicks >= maxToggles {
			break
		}
		loc := page.Locator(sel)
		count, err := loc.Count()
		if err != nil {
			continue
		}
		for i := 0; i < count && clicks < maxToggles; i++ {
			el := loc.Nth(i)
			visible, err := el.IsVisible()
			if err != nil || !visible {
				continue
			}
			if err := el.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(1000)}); err != nil {
				continue
			}
			clicks++

			after := visibleAnchorHrefs(page)
			for href := range after {
				if !before[href] && !revealedSeen[href] {
					revealedSeen[href] = true
					revealed = append(revealed, href)
				}
			}

			page.Keyboard().Press("Escape")

			if page.URL() != originalURL {
				page.Goto(originalURL, playwright.PageGotoOptions{
					WaitUntil: playwright.WaitUntilStateDomcontentloaded,
					Timeout:   playwright.Float(10000),
				})
			}
		}
	}

	return revealed
}

func visibleAnchorHrefs(page playwright.Page) map[string]bool {
	out := make(map[string]bool)
	loc := page.Locator("a[href]")
	count, err := loc.Count()
	if err != nil {
		return out
	}
	for i := 0; i < count; i++ {
		el := loc.Nth(i)
		visible, err := el.IsVisible()
		if err != nil || !visible {
			continue
		}
		if href, err := el.GetAttribute("href"); err == nil && href != "" {
			out[href] = true
		}
	}
	return out
}

// enqueueSitemap fetches /sitemap.xml after the first page completes
// and enqueues every <loc> at SITEMAP priority. Sitemap entries are a
// backfill safety net; loading them before the first organic page
// would starve the crawl of live-UI context.
func (c *Crawler) enqueueSitemap(page playwright.Page, cfg Config, fr *frontier.Frontier) {
	sitemapURL := strings.TrimSuffix(cfg.BaseURL, "/") + "/sitemap.xml"
	resp, err := page.Request().Get(sitemapURL, playwright.APIRequestContextGetOptions{
		Timeout: playwright.Float(5000),
	})
	if err != nil || resp == nil || resp.Status() >= 400 {
		return
	}
	body, err := resp.Text()
	if err != nil {
		return
	}

	locRe := regexp.MustCompile(`<loc>\s*([^<\s]+)\s*</loc>`)
	for _, m := range locRe.FindAllStringSubmatch(body, -1) {
		normalized, err := urlnorm.Normalize(m[1], cfg.BaseURL)
		if err != nil || !isValidPageURL(normalized) {
			continue
		}
		fr.Enqueue(normalized, 1, domain.PrioritySitemap)
	}
}

// probeAuth opens a fresh unauthenticated session and, for every page
// in the site model, determines whether it requires authentication
// from the response status, the final URL's path, and the title.
func (c *Crawler) probeAuth(authed *browserfactory.Session, site *domain.SiteModel, cfg Config) error {
	probeSession, err := c.factory.NewSession(browserfactory.Options{Headless: true})
	if err != nil {
		return fmt.Errorf("opening probe session: %w", err)
	}
	defer probeSession.Close()

	titleKeywords := []string{"login", "sign in", "log in", "authenticate"}

	for i := range site.Pages {
		pg := &site.Pages[i]
		resp, err := probeSession.Page.Goto(pg.URL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(8000),
		})
		if err != nil {
			pg.AuthRequired = domain.AuthRequiredUnknown
			continue
		}

		required := false
		if resp != nil {
			status := resp.Status()
			if status == 401 || status == 403 {
				required = true
			}
		}
		if !required && cfg.LoginPath != "" && strings.Contains(probeSession.Page.URL(), cfg.LoginPath) {
			required = true
		}
		if !required {
			if title, err := probeSession.Page.Title(); err == nil {
				lowerTitle := strings.ToLower(title)
				for _, kw := range titleKeywords {
					if strings.Contains(lowerTitle, kw) {
						required = true
						break
					}
				}
			}
		}

		if required {
			pg.AuthRequired = domain.AuthRequiredTrue
		} else {
			pg.AuthRequired = domain.AuthRequiredFalse
		}
	}

	return nil
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
