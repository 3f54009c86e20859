package corpus

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed")
	if err := os.WriteFile(path, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}

	idx, err := Load(context.Background(), path, 1024, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 1 || idx.At(0) != path {
		t.Fatalf("expected single entry %q, got len=%d at0=%q", path, idx.Len(), idx.At(0))
	}
}

func TestLoadDirDiscipline(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, size int) {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("good1", 10)
	write("good2", 20)
	write("empty", 0)
	write("oversized", 100)
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0755); err != nil {
		t.Fatal(err)
	}

	idx, err := Load(context.Background(), dir, 50, false, false)
	if err != nil {
		t.Fatal(err)
	}

	got := map[string]bool{}
	for i := 0; i < idx.Len(); i++ {
		got[filepath.Base(idx.At(i))] = true
	}
	want := map[string]bool{"good1": true, "good2": true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k := range want {
		if !got[k] {
			t.Fatalf("missing expected entry %q in %v", k, got)
		}
	}
}

func TestLoadEmptyDirFails(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(context.Background(), dir, 1024, false, false); err == nil {
		t.Fatal("expected an error loading an empty directory")
	}
}

func TestLoadDynamicPlaceholder(t *testing.T) {
	idx, err := Load(context.Background(), "", 1024, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 1 || idx.At(0) != DynamicFilePlaceholder {
		t.Fatalf("expected dynamic placeholder, got %+v", idx)
	}
}

func TestLoadExternalPlaceholder(t *testing.T) {
	idx, err := Load(context.Background(), "", 1024, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 1 || idx.At(0) != CreatedFilePlaceholder {
		t.Fatalf("expected created placeholder, got %+v", idx)
	}
}

func TestPickRandomInRange(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(dir, string(rune('a'+i))), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	idx, err := Load(context.Background(), dir, 1024, false, false)
	if err != nil {
		t.Fatal(err)
	}

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		n := idx.PickRandom(rnd)
		if n < 0 || n >= idx.Len() {
			t.Fatalf("PickRandom returned out-of-range index %d (len=%d)", n, idx.Len())
		}
	}
}
