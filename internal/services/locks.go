package services

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// entityLocks is a process-local keyed mutex. Entries are reference counted and
// dropped once nobody holds or waits on them.
type entityLocks struct {
	mu sync.Mutex
	m  map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newEntityLocks() *entityLocks {
	return &entityLocks{m: map[string]*lockEntry{}}
}

// LockAll acquires every key in sorted order and returns the release func. Sorting is
// what keeps two overlapping lock sets from deadlocking.
func (l *entityLocks) LockAll(keys []string) func() {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	entries := make([]*lockEntry, 0, len(keys))
	for _, k := range keys {
		l.mu.Lock()
		e, ok := l.m[k]
		if !ok {
			e = &lockEntry{}
			l.m[k] = e
		}
		e.refs++
		l.mu.Unlock()

		e.mu.Lock()
		entries = append(entries, e)
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
			l.mu.Lock()
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(l.m, keys[i])
			}
			l.mu.Unlock()
		}
	}
}

func (l *entityLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func deviceKey(id uuid.UUID) string { return "device:" + id.String() }
func groupKey(id uint) string       { return fmt.Sprintf("group:%d", id) }
func profileKey(id uint) string     { return fmt.Sprintf("profile:%d", id) }

type lockKeys []string

func (k *lockKeys) devices(ids ...uuid.UUID) {
	for _, id := range ids {
		*k = append(*k, deviceKey(id))
	}
}

func (k *lockKeys) groups(ids ...uint) {
	for _, id := range ids {
		*k = append(*k, groupKey(id))
	}
}

func (k *lockKeys) profiles(ids ...uint) {
	for _, id := range ids {
		*k = append(*k, profileKey(id))
	}
}

// covers reports whether every key in want is already held.
func (k lockKeys) covers(want lockKeys) bool {
	held := make(map[string]struct{}, len(k))
	for _, key := range k {
		held[key] = struct{}{}
	}
	for _, key := range want {
		if _, ok := held[key]; !ok {
			return false
		}
	}
	return true
}
