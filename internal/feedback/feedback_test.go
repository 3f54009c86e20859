package feedback

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSeedInitialIsIdempotent(t *testing.T) {
	s := New(t.TempDir(), 0)
	rnd := rand.New(rand.NewSource(1))

	calls := 0
	pick := func(*rand.Rand) ([]byte, error) {
		calls++
		return []byte("seed"), nil
	}

	if err := s.SeedInitial(context.Background(), pick, rnd, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.SeedInitial(context.Background(), pick, rnd, 2); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected pick to be called once, got %d", calls)
	}
}

func TestTryUpdateAcceptsDominatingCandidate(t *testing.T) {
	s := New(t.TempDir(), 0)
	rnd := rand.New(rand.NewSource(1))
	s.SeedInitial(context.Background(), func(*rand.Rand) ([]byte, error) { return []byte("x"), nil }, rnd, 2)

	accepted, err := s.TryUpdate(context.Background(), []byte("xx"), []uint64{1, 1})
	if err != nil {
		t.Fatal(err)
	}
	if !accepted {
		t.Fatal("expected candidate dominating empty counters to be accepted")
	}

	snap := s.Snapshot()
	if string(snap.Bytes) != "xx" || snap.Size != 2 {
		t.Fatalf("unexpected snapshot after accept: %+v", snap)
	}
}

func TestTryUpdateRejectsNonDominatingCandidate(t *testing.T) {
	s := New(t.TempDir(), 0)
	rnd := rand.New(rand.NewSource(1))
	s.SeedInitial(context.Background(), func(*rand.Rand) ([]byte, error) { return []byte("x"), nil }, rnd, 2)
	if _, err := s.TryUpdate(context.Background(), []byte("xx"), []uint64{5, 5}); err != nil {
		t.Fatal(err)
	}

	// Trades dimension 0 for dimension 1: not accepted under strict
	// Pareto non-dominance.
	accepted, err := s.TryUpdate(context.Background(), []byte("yy"), []uint64{6, 4})
	if err != nil {
		t.Fatal(err)
	}
	if accepted {
		t.Fatal("expected a trade-off candidate to be rejected")
	}

	snap := s.Snapshot()
	if string(snap.Bytes) != "xx" {
		t.Fatalf("rejected update must not change best, got %q", snap.Bytes)
	}
}

func TestTryUpdatePublishesAtomically(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 0)
	rnd := rand.New(rand.NewSource(1))
	s.SeedInitial(context.Background(), func(*rand.Rand) ([]byte, error) { return []byte("x"), nil }, rnd, 1)

	if _, err := s.TryUpdate(context.Background(), []byte("published"), []uint64{1}); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dir, CurrentBestName))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "published" {
		t.Fatalf("got %q, want %q", got, "published")
	}
	if _, err := os.Stat(filepath.Join(dir, tmpCurrentBestName)); !os.IsNotExist(err) {
		t.Fatal("temp publish file should not remain after a successful rename")
	}
}

func TestAcceptanceMonotonicity(t *testing.T) {
	s := New(t.TempDir(), 0)
	rnd := rand.New(rand.NewSource(1))
	s.SeedInitial(context.Background(), func(*rand.Rand) ([]byte, error) { return []byte("x"), nil }, rnd, 1)

	var lastSeen uint64
	for i := uint64(1); i <= 20; i++ {
		accepted, err := s.TryUpdate(context.Background(), []byte("c"), []uint64{i})
		if err != nil {
			t.Fatal(err)
		}
		if accepted {
			snap := s.Snapshot()
			if snap.Counters[0] < lastSeen {
				t.Fatalf("observed best counter decreased: %d < %d", snap.Counters[0], lastSeen)
			}
			lastSeen = snap.Counters[0]
		}
	}
}

func TestSnapshotReflectsAcceptedCandidate(t *testing.T) {
	s := New(t.TempDir(), 0)
	rnd := rand.New(rand.NewSource(1))
	s.SeedInitial(context.Background(), func(*rand.Rand) ([]byte, error) { return []byte("x"), nil }, rnd, 2)

	if _, err := s.TryUpdate(context.Background(), []byte("xx"), []uint64{3, 4}); err != nil {
		t.Fatal(err)
	}

	want := Snapshot{Bytes: []byte("xx"), Size: 2, Counters: []uint64{3, 4}}
	got := s.Snapshot()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected snapshot (-want +got):\n%s", diff)
	}
}

func TestClampOnCrashReducesIterSinceReset(t *testing.T) {
	s := New(t.TempDir(), 0)
	rnd := rand.New(rand.NewSource(1))
	s.SeedInitial(context.Background(), func(*rand.Rand) ([]byte, error) { return []byte("x"), nil }, rnd, 1)

	// Establish a best, then repeatedly fail to improve on it so
	// iterSinceReset climbs past the mask.
	s.TryUpdate(context.Background(), []byte("best"), []uint64{5})
	for i := 0; i < 5000; i++ {
		s.TryUpdate(context.Background(), []byte("c"), []uint64{1})
	}
	if s.IterSinceReset() <= SubMask {
		t.Fatalf("expected iterSinceReset to exceed mask before clamp, got %d", s.IterSinceReset())
	}

	s.ClampOnCrash()
	if s.IterSinceReset() > SubMask {
		t.Fatalf("expected clamp to bound iterSinceReset to <= %d, got %d", SubMask, s.IterSinceReset())
	}
}

func TestNeedsResetHonoursBudget(t *testing.T) {
	s := New(t.TempDir(), 3)
	rnd := rand.New(rand.NewSource(1))
	s.SeedInitial(context.Background(), func(*rand.Rand) ([]byte, error) { return []byte("x"), nil }, rnd, 1)

	// Establish a best worth failing to improve on.
	if accepted, err := s.TryUpdate(context.Background(), []byte("best"), []uint64{5}); err != nil || !accepted {
		t.Fatalf("expected initial candidate to be accepted, accepted=%v err=%v", accepted, err)
	}

	for i := 0; i < 3; i++ {
		if s.NeedsReset() {
			t.Fatalf("should not need reset yet at iteration %d", i)
		}
		// Counters below the established best are rejected, incrementing
		// iterSinceReset.
		s.TryUpdate(context.Background(), []byte("c"), []uint64{1})
	}
	if !s.NeedsReset() {
		t.Fatal("expected budget to be exhausted")
	}

	s.Reset(context.Background(), []byte("fresh"), 1)
	if s.NeedsReset() {
		t.Fatal("reset should clear iterSinceReset")
	}
}
