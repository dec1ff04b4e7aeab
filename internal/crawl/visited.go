package crawl

import "sync"

// VisitedSet records every URL the crawl has claimed. It is owned by the
// Scheduler and shared by pointer with its workers.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

// Claim adds u and reports whether it was new. Once limit URLs are held no
// more are accepted; a limit of zero or less means no limit.
func (v *VisitedSet) Claim(u string, limit int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[u]; ok {
		return false
	}
	if limit > 0 && len(v.seen) >= limit {
		return false
	}
	v.seen[u] = struct{}{}
	return true
}

func (v *VisitedSet) Has(u string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[u]
	return ok
}

func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}
