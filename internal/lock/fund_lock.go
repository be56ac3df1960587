// Package lock provides per-fund exclusive sections.
package lock

import (
	"sort"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// FundLocker hands out one mutex per fund id. Entries are dropped once nobody holds or waits on them.
type FundLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewFundLocker creates an empty lock table.
func NewFundLocker() *FundLocker {
	return &FundLocker{locks: make(map[string]*entry)}
}

// Lock acquires the sections for every id in ascending order and returns the release func.
// Duplicate and empty ids are ignored.
func (l *FundLocker) Lock(ids ...string) (unlock func()) {
	ordered := normalize(ids)
	acquired := make([]*entry, 0, len(ordered))
	for _, id := range ordered {
		e := l.acquire(id)
		e.mu.Lock()
		acquired = append(acquired, e)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(acquired) - 1; i >= 0; i-- {
				acquired[i].mu.Unlock()
				l.release(ordered[i])
			}
		})
	}
}

// Held returns how many fund ids currently have an entry in the table.
func (l *FundLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *FundLocker) acquire(id string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[id]
	if !ok {
		e = &entry{}
		l.locks[id] = e
	}
	e.refs++
	return e
}

func (l *FundLocker) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.locks[id]
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
}

func normalize(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
