package token

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_SaveLoad(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := NewRecord("jane@example.com", "at", "rt", time.Now().Add(time.Hour), DefaultExpiryMargin)
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := s.Load(ctx, "jane@example.com")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got.AccessToken != "at" || got.RefreshToken != "rt" {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestMemoryStore_LoadNeverConnected(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Load(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Load error = %v, want ErrNotConnected", err)
	}
}

func TestMemoryStore_SaveValidation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Save(ctx, nil); err == nil {
		t.Error("expected error for nil record")
	}
	if err := s.Save(ctx, &Record{AccessToken: "at"}); err == nil {
		t.Error("expected error for empty subject")
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := NewRecord("s", "at", "rt", time.Now().Add(time.Hour), DefaultExpiryMargin)
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := s.Delete(ctx, "s"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := s.Load(ctx, "s"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Load after delete = %v, want ErrNotConnected", err)
	}

	// Deleting again is not an error.
	if err := s.Delete(ctx, "s"); err != nil {
		t.Errorf("repeat Delete error: %v", err)
	}
}

func TestMemoryStore_StoresCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := NewRecord("s", "at", "rt", time.Now().Add(time.Hour), DefaultExpiryMargin)
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	rec.AccessToken = "mutated-after-save"

	got, err := s.Load(ctx, "s")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got.AccessToken != "at" {
		t.Error("mutating a saved record should not affect the store")
	}

	got.AccessToken = "mutated-after-load"
	again, err := s.Load(ctx, "s")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if again.AccessToken != "at" {
		t.Error("mutating a loaded record should not affect the store")
	}
}

func TestMemoryStore_Len(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
	for _, subject := range []string{"a", "b", "c"} {
		rec := NewRecord(subject, "at", "rt", time.Now().Add(time.Hour), DefaultExpiryMargin)
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save error: %v", err)
		}
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
}
