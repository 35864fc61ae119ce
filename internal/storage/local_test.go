package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir(), 30*time.Minute, zerolog.Nop())

	if cp, err := store.Load(ctx); err != nil || cp != nil {
		t.Fatalf("expected empty store, got %#v err=%v", cp, err)
	}

	if err := store.Save(ctx, Checkpoint{
		JobID:            "job-1",
		Command:          "compress to 3mb",
		PrimaryFileName:  "report.pdf",
		EstimatedSeconds: 12,
	}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	cp, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cp == nil || cp.JobID != "job-1" || cp.Command != "compress to 3mb" || cp.PrimaryFileName != "report.pdf" {
		t.Fatalf("unexpected checkpoint: %#v", cp)
	}
	if cp.StartedAt.IsZero() {
		t.Fatal("StartedAt should be stamped on save")
	}
}

func TestLocalStoreOverwritesSingleSlot(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir(), 0, zerolog.Nop())
	_ = store.Save(ctx, Checkpoint{JobID: "first"})
	_ = store.Save(ctx, Checkpoint{JobID: "second"})

	cp, err := store.Load(ctx)
	if err != nil || cp == nil || cp.JobID != "second" {
		t.Fatalf("expected second checkpoint, got %#v err=%v", cp, err)
	}
}

func TestLocalStoreExpiry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewLocalStore(dir, 30*time.Minute, zerolog.Nop())

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if err := store.Save(ctx, Checkpoint{JobID: "old", StartedAt: now.Add(-31 * time.Minute)}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	cp, err := store.Load(ctx)
	if err != nil || cp != nil {
		t.Fatalf("expired checkpoint should be absent, got %#v err=%v", cp, err)
	}
	if _, err := os.Stat(filepath.Join(dir, checkpointFilename)); !os.IsNotExist(err) {
		t.Fatalf("expired checkpoint should be deleted, stat err=%v", err)
	}

	_ = store.Save(ctx, Checkpoint{JobID: "fresh", StartedAt: now.Add(-29 * time.Minute)})
	if cp, _ := store.Load(ctx); cp == nil || cp.JobID != "fresh" {
		t.Fatalf("fresh checkpoint should survive, got %#v", cp)
	}
}

func TestLocalStoreClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir(), 0, zerolog.Nop())
	store.Clear(ctx)
	_ = store.Save(ctx, Checkpoint{JobID: "job"})
	store.Clear(ctx)
	store.Clear(ctx)
	if cp, _ := store.Load(ctx); cp != nil {
		t.Fatalf("expected cleared store, got %#v", cp)
	}
}

func TestLocalStoreCorruptFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, checkpointFilename), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	store := NewLocalStore(dir, 0, zerolog.Nop())
	if cp, err := store.Load(ctx); err == nil || cp != nil {
		t.Fatalf("expected decode error, got %#v err=%v", cp, err)
	}
	if cp, err := store.Load(ctx); err != nil || cp != nil {
		t.Fatalf("corrupt file should be removed, got %#v err=%v", cp, err)
	}
}

func TestLocalStoreRejectsEmptyJobID(t *testing.T) {
	store := NewLocalStore(t.TempDir(), 0, zerolog.Nop())
	if err := store.Save(context.Background(), Checkpoint{}); err != ErrInvalidCheckpoint {
		t.Fatalf("expected ErrInvalidCheckpoint, got %v", err)
	}
}
