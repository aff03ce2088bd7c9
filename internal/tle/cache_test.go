package tle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCacheLoadLatest(t *testing.T) {
	c := NewCache(t.TempDir(), 5)

	base := time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)
	for i, body := range []string{"old", "middle", "newest"} {
		if err := c.Write([]byte(body), base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	data, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if string(data) != "newest" {
		t.Errorf("data = %q, want newest", data)
	}
	if !ts.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("ts = %v, want %v", ts, base.Add(2*time.Hour))
	}
}

func TestCachePrune(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 2)

	base := time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		if err := c.Write([]byte("x"), base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	// Unrelated files are ignored and never pruned.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := c.list()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d cache files, want 2", len(files))
	}
	if !files[0].ts.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("oldest kept = %v, want %v", files[0].ts, base.Add(2*time.Minute))
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
}

func TestCacheEmpty(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "missing"), 0)
	_, _, err := c.LoadLatest()
	if !errors.Is(err, ErrNoCache) {
		t.Errorf("err = %v, want ErrNoCache", err)
	}
}
