package jobs

import (
	"sync"

	"github.com/ternarybob/colligo/internal/common"
)

// DedupSet answers "has this job seen this URL or this content?" with atomic
// mark-and-test semantics. The primary key is the scheme-stripped URL hash so
// http/https duplicates collapse; the scheme-aware hash is tracked to detect
// protocol-only variants.
type DedupSet struct {
	mu            sync.Mutex
	urlHashes     map[string]struct{}
	schemeAware   map[string]struct{}
	contentHashes map[string]struct{}
}

// NewDedupSet creates an empty per-job dedup set
func NewDedupSet() *DedupSet {
	return &DedupSet{
		urlHashes:     make(map[string]struct{}),
		schemeAware:   make(map[string]struct{}),
		contentHashes: make(map[string]struct{}),
	}
}

// MarkVisited records the URL hashes. Returns false if the primary hash was
// already present, true if it was inserted now.
func (d *DedupSet) MarkVisited(hashes common.URLHashes) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, seen := d.urlHashes[hashes.Primary]; seen {
		return false
	}
	d.urlHashes[hashes.Primary] = struct{}{}
	d.schemeAware[hashes.SchemeAware] = struct{}{}
	return true
}

// SeenSchemeVariant reports whether the exact scheme-aware form was visited
func (d *DedupSet) SeenSchemeVariant(hashes common.URLHashes) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, seen := d.schemeAware[hashes.SchemeAware]
	return seen
}

// MarkContent records a content fingerprint. Returns false on collision,
// meaning the page is a duplicate of one already processed.
func (d *DedupSet) MarkContent(contentHash string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, seen := d.contentHashes[contentHash]; seen {
		return false
	}
	d.contentHashes[contentHash] = struct{}{}
	return true
}

// VisitedCount returns the number of distinct URLs marked
func (d *DedupSet) VisitedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urlHashes)
}
