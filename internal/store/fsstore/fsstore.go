// Package fsstore owns the on-disk working tree: the coverage
// registry, the site model with its screenshot baselines, the latest
// plan, and the debug directory for LLM parse failures. All JSON
// writes are atomic (temp file + rename) so a crashed run never leaves
// a half-written registry behind.
package fsstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/qaengine/qaengine/internal/domain"
)

// DefaultRoot is the working-tree directory created next to wherever
// the engine is invoked.
const DefaultRoot = ".qa-framework"

// Store reads and writes the engine's persistent files under root.
type Store struct {
	root string
}

// New creates the working tree under root (DefaultRoot if empty).
func New(root string) (*Store, error) {
	if root == "" {
		root = DefaultRoot
	}
	s := &Store{root: root}
	for _, dir := range []string{
		s.root,
		filepath.Join(s.root, "coverage"),
		filepath.Join(s.root, "site_model"),
		s.BaselinesDir(),
		s.DebugDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("fsstore: creating %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Store) Root() string          { return s.root }
func (s *Store) RegistryPath() string  { return filepath.Join(s.root, "coverage", "registry.json") }
func (s *Store) SiteModelPath() string { return filepath.Join(s.root, "site_model", "model.json") }
func (s *Store) BaselinesDir() string  { return filepath.Join(s.root, "site_model", "baselines") }
func (s *Store) LatestPlanPath() string { return filepath.Join(s.root, "latest_plan.json") }
func (s *Store) DebugDir() string      { return filepath.Join(s.root, "debug") }

// LoadRegistry reads the coverage registry; a missing file returns
// (nil, nil) — the caller starts fresh.
func (s *Store) LoadRegistry() (*domain.CoverageRegistry, error) {
	var reg domain.CoverageRegistry
	ok, err := s.load(s.RegistryPath(), &reg)
	if err != nil || !ok {
		return nil, err
	}
	return &reg, nil
}

// SaveRegistry atomically overwrites the registry.
func (s *Store) SaveRegistry(reg *domain.CoverageRegistry) error {
	return s.save(s.RegistryPath(), reg)
}

// ResetCoverage deletes the registry file; missing is not an error.
func (s *Store) ResetCoverage() error {
	if err := os.Remove(s.RegistryPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsstore: resetting coverage: %w", err)
	}
	return nil
}

// LoadSiteModel reads the last crawl's site model; missing returns (nil, nil).
func (s *Store) LoadSiteModel() (*domain.SiteModel, error) {
	var site domain.SiteModel
	ok, err := s.load(s.SiteModelPath(), &site)
	if err != nil || !ok {
		return nil, err
	}
	return &site, nil
}

// SaveSiteModel atomically overwrites the site model.
func (s *Store) SaveSiteModel(site *domain.SiteModel) error {
	return s.save(s.SiteModelPath(), site)
}

// LoadLatestPlan reads the last generated plan; missing returns (nil, nil).
func (s *Store) LoadLatestPlan() (*domain.TestPlan, error) {
	var p domain.TestPlan
	ok, err := s.load(s.LatestPlanPath(), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// SaveLatestPlan atomically overwrites the latest plan.
func (s *Store) SaveLatestPlan(p *domain.TestPlan) error {
	return s.save(s.LatestPlanPath(), p)
}

// SaveRunResult writes the run's machine-readable result under the
// runs directory, next to its evidence.
func (s *Store) SaveRunResult(runsDir string, run *domain.RunResult) (string, error) {
	dir := filepath.Join(runsDir, run.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("fsstore: creating run dir: %w", err)
	}
	path := filepath.Join(dir, "result.json")
	if err := s.save(path, run); err != nil {
		return "", err
	}
	return path, nil
}

// AuthStatePath is where the encrypted login storage state lives.
func (s *Store) AuthStatePath() string { return filepath.Join(s.root, "auth_state.enc") }

// SaveAuthState persists the (already encrypted) storage-state blob.
func (s *Store) SaveAuthState(encrypted []byte) error {
	if err := os.WriteFile(s.AuthStatePath(), encrypted, 0o600); err != nil {
		return fmt.Errorf("fsstore: writing auth state: %w", err)
	}
	return nil
}

// LoadAuthState returns the encrypted storage-state blob if it exists
// and is younger than maxAge; otherwise (nil, nil).
func (s *Store) LoadAuthState(maxAge time.Duration) ([]byte, error) {
	info, err := os.Stat(s.AuthStatePath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fsstore: reading auth state: %w", err)
	}
	if maxAge > 0 && time.Since(info.ModTime()) > maxAge {
		return nil, nil
	}
	data, err := os.ReadFile(s.AuthStatePath())
	if err != nil {
		return nil, fmt.Errorf("fsstore: reading auth state: %w", err)
	}
	return data, nil
}

// LoadRunResult reads a persisted run result; missing returns (nil, nil).
func (s *Store) LoadRunResult(runsDir, runID string) (*domain.RunResult, error) {
	var run domain.RunResult
	ok, err := s.load(filepath.Join(runsDir, runID, "result.json"), &run)
	if err != nil || !ok {
		return nil, err
	}
	return &run, nil
}

func (s *Store) load(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fsstore: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("fsstore: decoding %s: %w", path, err)
	}
	return true, nil
}

func (s *Store) save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("fsstore: encoding %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("fsstore: writing %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fsstore: writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fsstore: writing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fsstore: replacing %s: %w", path, err)
	}
	return nil
}
