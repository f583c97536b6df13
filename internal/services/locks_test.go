package services

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEntityLocksReleaseEntries(t *testing.T) {
	l := newEntityLocks()
	unlock := l.LockAll([]string{"group:2", "device:a", "group:2"})
	if got := l.size(); got != 2 {
		t.Fatalf("held entries: want=2 got=%d", got)
	}
	unlock()
	if got := l.size(); got != 0 {
		t.Fatalf("entries after release: want=0 got=%d", got)
	}
}

func TestEntityLocksOverlappingSetsDoNotDeadlock(t *testing.T) {
	l := newEntityLocks()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.LockAll([]string{"a", "b", "c"})()
		}()
		go func() {
			defer wg.Done()
			l.LockAll([]string{"c", "b", "a"})()
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("lock sets deadlocked")
	}
	if got := l.size(); got != 0 {
		t.Fatalf("entries after release: want=0 got=%d", got)
	}
}

func TestEntityLocksExclude(t *testing.T) {
	l := newEntityLocks()
	unlock := l.LockAll([]string{"device:x"})
	acquired := make(chan struct{})
	go func() {
		l.LockAll([]string{"device:x", "group:1"})()
		close(acquired)
	}()
	select {
	case <-acquired:
		t.Fatalf("second holder acquired a held key")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatalf("second holder never acquired after release")
	}
}

func TestLockKeysCovers(t *testing.T) {
	d := uuid.New()
	var held lockKeys
	held.devices(d)
	held.groups(1, 2)

	var want lockKeys
	want.groups(2)
	want.devices(d)
	if !held.covers(want) {
		t.Fatalf("expected %v to cover %v", held, want)
	}
	want.profiles(7)
	if held.covers(want) {
		t.Fatalf("expected %v not to cover %v", held, want)
	}
}
