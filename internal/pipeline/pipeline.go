// Package pipeline wires the four stages — crawl, plan, execute,
// coverage merge — over one browser factory, one LLM client, and the
// on-disk store. The Temporal activities and the CLI entrypoints are
// both thin wrappers around this service; everything stateful lives
// here.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/qaengine/qaengine/internal/apperr"
	"github.com/qaengine/qaengine/internal/browserfactory"
	"github.com/qaengine/qaengine/internal/config"
	"github.com/qaengine/qaengine/internal/coverage"
	"github.com/qaengine/qaengine/internal/crawl/crawler"
	"github.com/qaengine/qaengine/internal/crypto"
	"github.com/qaengine/qaengine/internal/domain"
	"github.com/qaengine/qaengine/internal/exec"
	"github.com/qaengine/qaengine/internal/llm"
	"github.com/qaengine/qaengine/internal/observability"
	"github.com/qaengine/qaengine/internal/plan"
	"github.com/qaengine/qaengine/internal/repository/postgres"
	rediscache "github.com/qaengine/qaengine/internal/repository/redis"
	"github.com/qaengine/qaengine/internal/smartauth"
	"github.com/qaengine/qaengine/internal/storage"
	"github.com/qaengine/qaengine/internal/store/fsstore"
)

// Service owns the long-lived collaborators every stage shares.
type Service struct {
	cfg       *config.Config
	store     *fsstore.Store
	llmClient *llm.ClaudeClient       // nil when no API key is configured
	cache     *rediscache.Cache       // nil unless Redis is enabled
	objstore  *storage.MinIOClient    // nil unless object storage is enabled
	repos     *postgres.Repositories  // nil unless the Postgres mirror is enabled
	metrics   *observability.Metrics  // nil disables instrumentation
	logger    *zap.Logger
}

// New builds the pipeline service. A missing API key is not an error:
// the LLM client stays nil and every AI feature degrades as designed.
// Redis and MinIO are optional accelerators; the Postgres mirror is
// optional but fatal when explicitly enabled and unreachable.
func New(cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) (*Service, error) {
	store, err := fsstore.New(cfg.Crawl.WorkDir)
	if err != nil {
		return nil, err
	}

	var llmClient *llm.ClaudeClient
	if cfg.Claude.Enabled() {
		llmClient, err = llm.NewClaudeClient(llm.Config{
			APIKey:       cfg.Claude.APIKey,
			Model:        cfg.Claude.Model,
			MaxTokens:    cfg.Claude.MaxTokens,
			Timeout:      cfg.Claude.Timeout,
			RateLimitRPM: cfg.Claude.RateLimitRPM,
			CacheTTL:     cfg.Claude.CacheTTL,
			CacheSize:    cfg.Claude.CacheSize,
			MaxRetries:   cfg.Claude.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("pipeline: building llm client: %w", err)
		}
	} else {
		logger.Warn("pipeline: no LLM API key configured; planner falls back to deterministic plans, step recovery and ai_evaluate degrade")
	}

	var cache *rediscache.Cache
	if cfg.Redis.Enabled {
		cache, err = rediscache.New(cfg.Redis)
		if err != nil {
			logger.Warn("pipeline: redis unavailable, plan cache disabled", zap.Error(err))
			cache = nil
		}
	}

	var objstore *storage.MinIOClient
	if cfg.Storage.Enabled {
		objstore, err = storage.NewMinIOClient(storage.MinIOConfig{
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKey,
			SecretAccessKey: cfg.Storage.SecretKey,
			UseSSL:          cfg.Storage.UseSSL,
			BucketName:      cfg.Storage.Bucket,
		})
		if err != nil {
			logger.Warn("pipeline: object storage unavailable, evidence stays local only", zap.Error(err))
			objstore = nil
		}
	}

	var repos *postgres.Repositories
	if cfg.Database.Enabled {
		db, err := postgres.New(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("pipeline: coverage mirror enabled but unreachable: %w", err)
		}
		repos = postgres.NewRepositories(db)
	}

	return &Service{
		cfg:       cfg,
		store:     store,
		llmClient: llmClient,
		cache:     cache,
		objstore:  objstore,
		repos:     repos,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// LLMClient exposes the shared client (nil when disabled) so the
// report generator can reuse it.
func (s *Service) LLMClient() *llm.ClaudeClient { return s.llmClient }

// Repos exposes the optional Postgres mirror for the API handlers.
func (s *Service) Repos() *postgres.Repositories { return s.repos }

// Cache exposes the optional Redis cache for the API middleware.
func (s *Service) Cache() *rediscache.Cache { return s.cache }

// Store exposes the on-disk store for the API handlers.
func (s *Service) Store() *fsstore.Store { return s.store }

// RunsDir is where per-run evidence and results live.
func (s *Service) RunsDir() string { return s.cfg.Executor.RunsDir }

// LoadRun reads a persisted run result by id; missing returns (nil, nil).
func (s *Service) LoadRun(runID string) (*domain.RunResult, error) {
	return s.store.LoadRunResult(s.cfg.Executor.RunsDir, runID)
}

// ReportFormats lists the configured report output formats.
func (s *Service) ReportFormats() []string { return s.cfg.Report.Formats }

// Crawl discovers the target's reachable surface and persists the site
// model. The browser factory lives only for the duration of the stage.
func (s *Service) Crawl(ctx context.Context, targetURL string) (*domain.SiteModel, error) {
	if targetURL == "" {
		targetURL = s.cfg.Crawl.TargetURL
	}
	if targetURL == "" {
		return nil, apperr.ErrConfigInvalid("no target URL configured")
	}

	factory, err := browserfactory.New(s.cfg.Crawl.Headless, s.logger)
	if err != nil {
		return nil, apperr.ErrBrowserLaunch(err)
	}
	defer factory.Close()

	include, err := compilePatterns(s.cfg.Crawl.IncludePatterns)
	if err != nil {
		return nil, apperr.ErrConfigInvalid(fmt.Sprintf("include pattern: %v", err))
	}
	exclude, err := compilePatterns(s.cfg.Crawl.ExcludePatterns)
	if err != nil {
		return nil, apperr.ErrConfigInvalid(fmt.Sprintf("exclude pattern: %v", err))
	}

	c := crawler.New(factory, s.logger)
	site, err := c.Crawl(ctx, crawler.Config{
		BaseURL:       targetURL,
		MaxPages:      s.cfg.Crawl.MaxPages,
		MaxDepth:      s.cfg.Crawl.MaxDepth,
		Include:       include,
		Exclude:       exclude,
		ScreenshotDir: s.store.BaselinesDir(),
		DOMDir:        s.store.DebugDir(),
		LoginPath:     s.cfg.Crawl.LoginPath,
	})
	if err != nil {
		return nil, apperr.ErrStageCrashed("crawl", err)
	}

	if err := s.store.SaveSiteModel(site); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.PagesCrawled.Observe(float64(len(site.Pages)))
	}
	s.logger.Info("pipeline: crawl complete",
		zap.Int("pages", len(site.Pages)),
		zap.Int("api_endpoints", len(site.APIEndpoints)))
	return site, nil
}

// Plan generates and persists a test plan for the last crawled site
// model (or the one passed in).
func (s *Service) Plan(ctx context.Context, site *domain.SiteModel) (*domain.TestPlan, error) {
	if site == nil {
		var err error
		site, err = s.store.LoadSiteModel()
		if err != nil {
			return nil, err
		}
		if site == nil {
			return nil, apperr.ErrConfigInvalid("no site model: run crawl first")
		}
	}

	reg, err := s.store.LoadRegistry()
	if err != nil {
		return nil, err
	}
	var gaps *coverage.GapReport
	if reg != nil {
		gaps = coverage.AnalyzeGaps(reg, site, s.cfg.Coverage.StalenessDays, time.Now().UTC())
	}

	// An unchanged site with no new gaps can reuse the cached plan
	// instead of paying for another LLM round trip.
	siteHash := rediscache.SiteModelHash(site)
	if s.cache != nil && (gaps == nil || gaps.IsEmpty()) {
		if cached, err := s.cache.GetPlan(ctx, siteHash); err == nil && cached != nil {
			s.logger.Info("pipeline: reusing cached plan", zap.String("plan_id", cached.PlanID))
			if err := s.store.SaveLatestPlan(cached); err != nil {
				return nil, err
			}
			return cached, nil
		}
	}

	planner := plan.New(s.llmClient, plan.Config{
		Categories:          toCategories(s.cfg.Planner.Categories),
		MaxTests:            s.cfg.Planner.MaxTests,
		VisualDiffTolerance: s.cfg.Planner.VisualDiffTolerance,
		Viewports:           s.cfg.Planner.Viewports,
		Hints:               s.cfg.Planner.Hints,
		DebugDir:            s.store.DebugDir(),
	}, s.logger)

	testPlan, err := planner.Plan(ctx, site, gaps, plan.AuthCredentials{
		Username: s.cfg.Auth.Username,
		Password: s.cfg.Auth.Password,
		LoginURL: s.cfg.Auth.LoginURL,
	})
	if err != nil {
		return nil, apperr.ErrStageCrashed("plan", err)
	}

	if err := s.store.SaveLatestPlan(testPlan); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetPlan(ctx, siteHash, testPlan); err != nil {
			s.logger.Warn("pipeline: caching plan failed", zap.Error(err))
		}
	}
	s.logger.Info("pipeline: plan ready",
		zap.String("plan_id", testPlan.PlanID),
		zap.Int("test_cases", len(testPlan.TestCases)))
	return testPlan, nil
}

// Execute runs the plan (or the stored latest plan) and persists the
// run result. Auth storage state is resolved lazily, on the first
// auth-required test, through the smart-auth resolver.
func (s *Service) Execute(ctx context.Context, testPlan *domain.TestPlan) (*domain.RunResult, error) {
	if testPlan == nil {
		var err error
		testPlan, err = s.store.LoadLatestPlan()
		if err != nil {
			return nil, err
		}
		if testPlan == nil {
			return nil, apperr.ErrConfigInvalid("no plan: run plan first")
		}
	}

	factory, err := browserfactory.New(s.cfg.Crawl.Headless, s.logger)
	if err != nil {
		return nil, apperr.ErrBrowserLaunch(err)
	}
	defer factory.Close()

	executor := exec.New(factory, s.llmClient, s.authStateProvider(factory), exec.Config{
		MaxParallelContexts:       s.cfg.Executor.MaxParallelContexts,
		MaxExecutionTime:          s.cfg.Executor.MaxExecutionTime,
		AIMaxFallbackCallsPerTest: s.cfg.Executor.AIMaxFallbackCallsPerTest,
		SmartResolve:              s.cfg.Executor.SmartResolve,
		FlakeDetection:            s.cfg.Executor.FlakeDetection,
		RunsDir:                   s.cfg.Executor.RunsDir,
		BaselineDir:               s.store.BaselinesDir(),
		Headless:                  s.cfg.Crawl.Headless,
	}, s.logger)

	run, err := executor.Execute(ctx, testPlan)
	if err != nil {
		return nil, apperr.ErrStageCrashed("execute", err)
	}

	if _, err := s.store.SaveRunResult(s.cfg.Executor.RunsDir, run); err != nil {
		return nil, err
	}
	if s.repos != nil {
		if err := s.repos.Runs.Insert(ctx, run); err != nil {
			s.logger.Warn("pipeline: recording run in mirror failed", zap.Error(err))
		}
	}
	if s.objstore != nil {
		s.uploadRunEvidence(ctx, run)
	}
	if s.metrics != nil {
		byStatus := make(map[[2]string]int)
		for _, tr := range run.TestResults {
			byStatus[[2]string{string(tr.Result), string(tr.Category)}]++
		}
		status := "completed"
		if run.Totals.Failed > 0 || run.Totals.Errored > 0 {
			status = "failed"
		}
		s.metrics.RecordRun(status, byStatus, run.Totals.Flaky)
	}
	s.logger.Info("pipeline: execution complete",
		zap.String("run_id", run.RunID),
		zap.Int("passed", run.Totals.Passed),
		zap.Int("failed", run.Totals.Failed),
		zap.Int("skipped", run.Totals.Skipped))
	return run, nil
}

// authStateProvider returns the lazy login hook handed to the
// executor. Auth failure is logged, not fatal: auth-required tests run
// with an empty jar and observe redirects.
func (s *Service) authStateProvider(factory *browserfactory.Factory) exec.AuthStateProvider {
	if !s.cfg.Auth.Configured() {
		return nil
	}
	return func(ctx context.Context) []byte {
		// A recent login's storage state is reused across runs; it sits
		// on disk encrypted so credentials never rest in plaintext.
		key := crypto.DefaultKey()
		if encrypted, err := s.store.LoadAuthState(24 * time.Hour); err == nil && encrypted != nil {
			if plaintext, err := crypto.Decrypt(string(encrypted), key); err == nil {
				s.logger.Info("pipeline: reusing stored auth state")
				return []byte(plaintext)
			}
		}

		session, err := factory.NewSession(browserfactory.Options{Headless: s.cfg.Crawl.Headless})
		if err != nil {
			s.logger.Warn("pipeline: opening auth session failed", zap.Error(err))
			return nil
		}
		defer session.Close()

		resolver := smartauth.New(s.llmClient, s.logger)
		result := resolver.Login(ctx, session.Page, session.Context, smartauth.Config{
			LoginURL:         s.cfg.Auth.LoginURL,
			Username:         s.cfg.Auth.Username,
			Password:         s.cfg.Auth.Password,
			UsernameSelector: s.cfg.Auth.UsernameSelector,
			PasswordSelector: s.cfg.Auth.PasswordSelector,
			SubmitSelector:   s.cfg.Auth.SubmitSelector,
			SuccessIndicator: s.cfg.Auth.SuccessIndicator,
			AutoDetect:       s.cfg.Auth.AutoDetect,
			LLMFallback:      s.cfg.Auth.LLMFallback,
		})
		if !result.Success {
			s.logger.Warn("pipeline: smart auth failed; auth-required tests will observe redirects",
				zap.String("error", result.Error))
			return nil
		}
		s.logger.Info("pipeline: authenticated",
			zap.String("tier", result.Tier),
			zap.String("post_login_url", result.PostLoginURL))

		if encrypted, err := crypto.Encrypt(string(result.StorageState), key); err == nil {
			if err := s.store.SaveAuthState([]byte(encrypted)); err != nil {
				s.logger.Warn("pipeline: persisting auth state failed", zap.Error(err))
			}
		}
		return result.StorageState
	}
}

// MergeCoverage folds the run into the registry and saves it
// atomically. The registry is loaded, mutated in memory, and written
// exactly once.
func (s *Service) MergeCoverage(run *domain.RunResult) (*domain.CoverageRegistry, error) {
	reg, err := s.store.LoadRegistry()
	if err != nil {
		return nil, err
	}
	site, err := s.store.LoadSiteModel()
	if err != nil {
		return nil, err
	}
	if reg == nil {
		target := run.TargetURL
		if target == "" && site != nil {
			target = site.BaseURL
		}
		reg = domain.NewCoverageRegistry(target)
	}

	merger := coverage.NewMerger(s.cfg.Coverage.RetentionCap, s.logger)
	merger.Merge(reg, run, site)

	if err := s.store.SaveRegistry(reg); err != nil {
		return nil, err
	}
	if s.repos != nil {
		if err := s.repos.Coverage.Mirror(context.Background(), reg); err != nil {
			s.logger.Warn("pipeline: mirroring coverage failed", zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.CoverageScore.Set(reg.GlobalStats.OverallScore)
		s.metrics.RegressionsFound.Set(float64(reg.GlobalStats.RegressionCount))
	}
	s.logger.Info("pipeline: coverage merged",
		zap.Int("pages_tested", reg.GlobalStats.PagesTested),
		zap.Float64("overall_score", reg.GlobalStats.OverallScore),
		zap.Int("regressions", reg.GlobalStats.RegressionCount))
	return reg, nil
}

// Gaps runs the gap analyzer over the stored registry and site model.
func (s *Service) Gaps() (*coverage.GapReport, error) {
	reg, err := s.store.LoadRegistry()
	if err != nil {
		return nil, err
	}
	if reg == nil {
		reg = domain.NewCoverageRegistry(s.cfg.Crawl.TargetURL)
	}
	site, err := s.store.LoadSiteModel()
	if err != nil {
		return nil, err
	}
	return coverage.AnalyzeGaps(reg, site, s.cfg.Coverage.StalenessDays, time.Now().UTC()), nil
}

// uploadRunEvidence mirrors the run's evidence tree into object
// storage under runs/<run_id>/. Upload failures are logged per file
// and never fail the run.
func (s *Service) uploadRunEvidence(ctx context.Context, run *domain.RunResult) {
	root := filepath.Join(s.cfg.Executor.RunsDir, run.RunID)
	uploaded := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		rel, relErr := filepath.Rel(s.cfg.Executor.RunsDir, path)
		if relErr != nil {
			return nil
		}
		key := filepath.ToSlash(filepath.Join("runs", rel))
		if _, upErr := s.objstore.Upload(ctx, key, data, contentTypeFor(path)); upErr != nil {
			s.logger.Warn("pipeline: evidence upload failed", zap.String("key", key), zap.Error(upErr))
			return nil
		}
		uploaded++
		return nil
	})
	if err != nil {
		s.logger.Warn("pipeline: walking evidence tree failed", zap.Error(err))
		return
	}
	s.logger.Info("pipeline: evidence uploaded", zap.Int("objects", uploaded))
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".png":
		return "image/png"
	case ".json":
		return "application/json"
	case ".html":
		return "text/html"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func toCategories(names []string) []domain.Category {
	var out []domain.Category
	for _, n := range names {
		c := domain.Category(n)
		if c.IsValid() {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = []domain.Category{domain.CategoryFunctional}
	}
	return out
}
