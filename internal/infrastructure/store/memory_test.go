package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreSetIfAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.SetIfAbsent(ctx, "k", []byte("v1"), 0)
	if err != nil || !first {
		t.Fatalf("first set: %v %v", first, err)
	}
	second, err := s.SetIfAbsent(ctx, "k", []byte("v2"), 0)
	if err != nil || second {
		t.Fatalf("duplicate set must lose: %v %v", second, err)
	}
	value, found, err := s.Get(ctx, "k")
	if err != nil || !found || string(value) != "v1" {
		t.Fatalf("get: %q %v %v", value, found, err)
	}
}

func TestMemoryStoreSetIfAbsentConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	const workers = 32

	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.SetIfAbsent(ctx, "race", []byte("x"), 0)
			if err != nil {
				t.Errorf("set: %v", err)
				return
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore()
	current := time.Now()
	s.now = func() time.Time { return current }
	ctx := context.Background()

	if _, err := s.SetIfAbsent(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	current = current.Add(2 * time.Minute)

	_, found, err := s.Get(ctx, "k")
	if err != nil || found {
		t.Fatalf("expired entry must be invisible: %v %v", found, err)
	}
	// expired slot is reclaimable
	first, err := s.SetIfAbsent(ctx, "k", []byte("v2"), time.Minute)
	if err != nil || !first {
		t.Fatalf("expired slot not reclaimed: %v %v", first, err)
	}

	current = current.Add(2 * time.Minute)
	removed, err := s.PurgeExpired(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("purge: %d %v", removed, err)
	}
}

func TestMemoryStoreCompareAndDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, _ = s.SetIfAbsent(ctx, "k", []byte("holder-1"), 0)

	removed, err := s.CompareAndDelete(ctx, "k", []byte("holder-2"))
	if err != nil || removed {
		t.Fatalf("wrong holder must not delete: %v %v", removed, err)
	}
	removed, err = s.CompareAndDelete(ctx, "k", []byte("holder-1"))
	if err != nil || !removed {
		t.Fatalf("owner delete failed: %v %v", removed, err)
	}
}

func TestMemoryStoreReserveSequence(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.ReserveSequence(ctx, "addr", 7)
	if err != nil || first != 7 {
		t.Fatalf("reserve with floor: %d %v", first, err)
	}
	second, err := s.ReserveSequence(ctx, "addr", 7)
	if err != nil || second != 8 {
		t.Fatalf("second reserve: %d %v", second, err)
	}
	// floor below the cached counter is ignored
	third, err := s.ReserveSequence(ctx, "addr", 0)
	if err != nil || third != 9 {
		t.Fatalf("third reserve: %d %v", third, err)
	}
}

func TestMemoryStoreSyncSequence(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	next, err := s.SyncSequence(ctx, "addr", 10)
	if err != nil || next != 10 {
		t.Fatalf("sync to floor: %d %v", next, err)
	}
	// sync never consumes: the next reservation gets the synced value
	issued, err := s.ReserveSequence(ctx, "addr", 0)
	if err != nil || issued != 10 {
		t.Fatalf("reserve after sync: %d %v", issued, err)
	}
	// floor below the counter leaves it untouched
	next, err = s.SyncSequence(ctx, "addr", 3)
	if err != nil || next != 11 {
		t.Fatalf("sync below counter: %d %v", next, err)
	}
}

func TestMemoryStoreReleaseSequence(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	issued, _ := s.ReserveSequence(ctx, "addr", 5)

	rewound, err := s.ReleaseSequence(ctx, "addr", issued)
	if err != nil || !rewound {
		t.Fatalf("release of latest: %v %v", rewound, err)
	}
	again, _ := s.ReserveSequence(ctx, "addr", 0)
	if again != issued {
		t.Fatalf("released value must be reissued, got %d want %d", again, issued)
	}

	// stale release after a newer reservation is a no-op
	newer, _ := s.ReserveSequence(ctx, "addr", 0)
	rewound, err = s.ReleaseSequence(ctx, "addr", issued)
	if err != nil || rewound {
		t.Fatalf("stale release must be ignored: %v %v", rewound, err)
	}
	next, _ := s.ReserveSequence(ctx, "addr", 0)
	if next != newer+1 {
		t.Fatalf("counter disturbed by stale release: got %d want %d", next, newer+1)
	}
}
