package core

import (
	"context"
	"path/filepath"
	"testing"

	"capresearch/internal/infra/persistence/memory"
	"capresearch/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreDrivers(t *testing.T) {
	ctx := context.Background()

	mem, err := OpenPersistentStore(ctx, StorageOptions{Driver: StorageMemory}, nil)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := mem.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", mem)
	}
	if err := CloseStore(mem); err != nil {
		t.Fatalf("closing memory store should be a no-op: %v", err)
	}

	path := filepath.Join(t.TempDir(), "research.db")
	store, err := OpenPersistentStore(ctx, StorageOptions{SQLitePath: path}, NewDefaultRulesEngine(testVendors))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	lite, ok := store.(*sqlite.Store)
	if !ok || lite.Path() != path {
		t.Fatalf("expected sqlite store at %s, got %T", path, store)
	}
	svc := NewService(store, WithVendors(testVendors...))
	mustCreateCapability(t, svc, "Billing")
	if err := CloseStore(store); err != nil {
		t.Fatalf("close sqlite: %v", err)
	}

	reopened, err := OpenPersistentStore(ctx, StorageOptions{Driver: "SQLite", SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = CloseStore(reopened) }()
	list, err := NewService(reopened).ListCapabilities(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected persisted capability, got %v %v", list, err)
	}

	if _, err := OpenPersistentStore(ctx, StorageOptions{Driver: "oracle"}, nil); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}
