package spacenote_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spacenote/spacenote"
)

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := spacenote.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if store == nil {
		t.Error("expected non-nil store")
	}
}
