// Package frontier implements the crawl frontier: a priority queue of
// URLs with three tiers (START, ORGANIC, SITEMAP), FIFO within a tier,
// and queued/visited dedup sets that make enqueueing a known URL a
// no-op. Sitemap entries sit in the lowest tier so organically
// discovered links always drain first.
package frontier

import (
	"container/heap"
	"regexp"
	"sync"

	"github.com/qaengine/qaengine/internal/domain"
)

// Entry is one frontier item.
type Entry struct {
	URL            string
	Depth          int
	Priority       domain.FrontierPriority
	insertionOrder int
}

// Scope gates which URLs may be enqueued at all.
type Scope struct {
	MaxDepth int
	Include  []*regexp.Regexp
	Exclude  []*regexp.Regexp
}

// allowed reports whether rawURL passes the include/exclude scope gate.
func (s Scope) allowed(rawURL string) bool {
	for _, re := range s.Exclude {
		if re.MatchString(rawURL) {
			return false
		}
	}
	if len(s.Include) == 0 {
		return true
	}
	for _, re := range s.Include {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Frontier is a priority queue ordered by (priority asc, insertion
// order asc), with queued/visited dedup sets keyed by normalized URL.
type Frontier struct {
	mu      sync.Mutex
	heap    entryHeap
	queued  map[string]bool
	visited map[string]bool
	scope   Scope
	counter int
}

// New builds an empty frontier gated by scope.
func New(scope Scope) *Frontier {
	return &Frontier{
		queued:  make(map[string]bool),
		visited: make(map[string]bool),
		scope:   scope,
	}
}

// Enqueue adds normalizedURL at the given priority/depth. Returns false
// without enqueuing if the URL is already queued or visited, exceeds
// max depth, or falls outside scope.
func (f *Frontier) Enqueue(normalizedURL string, depth int, priority domain.FrontierPriority) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queued[normalizedURL] || f.visited[normalizedURL] {
		return false
	}
	if f.scope.MaxDepth > 0 && depth > f.scope.MaxDepth {
		return false
	}
	if !f.scope.allowed(normalizedURL) {
		return false
	}

	f.queued[normalizedURL] = true
	entry := &Entry{URL: normalizedURL, Depth: depth, Priority: priority, insertionOrder: f.counter}
	f.counter++
	heap.Push(&f.heap, entry)
	return true
}

// Pop removes and returns the lowest-priority (then earliest-inserted)
// entry, moving it from queued to visited. Returns ok=false if empty.
func (f *Frontier) Pop() (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.heap.Len() == 0 {
		return Entry{}, false
	}
	e := heap.Pop(&f.heap).(*Entry)
	delete(f.queued, e.URL)
	f.visited[e.URL] = true
	return *e, true
}

// Len reports the number of entries currently queued.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}

// Visited reports whether normalizedURL has already been popped.
func (f *Frontier) Visited(normalizedURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited[normalizedURL]
}

// VisitedCount reports how many URLs have been popped so far.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// entryHeap implements container/heap ordering entries by
// (Priority asc, insertionOrder asc) — lower priority value pops
// first; ties broken FIFO.
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].insertionOrder < h[j].insertionOrder
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(*Entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
