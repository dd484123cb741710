package service

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckpointer_SnapshotAndUndo_RestoresContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	cp := NewCheckpointer(0, nil)
	cp.Snapshot(path)

	if err := os.WriteFile(path, []byte("mutated"), 0644); err != nil {
		t.Fatal(err)
	}

	ok, err := cp.Undo()
	if err != nil || !ok {
		t.Fatalf("undo failed: ok=%v err=%v", ok, err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "original" {
		t.Fatalf("expected restored content, got %q", got)
	}
}

func TestCheckpointer_SnapshotAndUndo_DeletesCreatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.txt")

	cp := NewCheckpointer(0, nil)
	cp.Snapshot(path) // file does not exist yet

	if err := os.WriteFile(path, []byte("created"), 0644); err != nil {
		t.Fatal(err)
	}

	ok, err := cp.Undo()
	if err != nil || !ok {
		t.Fatalf("undo failed: ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected file to be deleted by undo")
	}

	// idempotent on missing-file deletion
	cp.Snapshot(path)
	ok, err = cp.Undo()
	if err != nil || !ok {
		t.Fatalf("second undo should also succeed idempotently: ok=%v err=%v", ok, err)
	}
}

func TestCheckpointer_CapEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	cp := NewCheckpointer(2, nil)

	for i := 0; i < 5; i++ {
		p := filepath.Join(dir, "f.txt")
		cp.Snapshot(p)
	}

	if cp.Depth() != 2 {
		t.Fatalf("expected depth capped at 2, got %d", cp.Depth())
	}
}

func TestCheckpointer_UndoOnEmptyStack(t *testing.T) {
	cp := NewCheckpointer(0, nil)
	ok, err := cp.Undo()
	if ok || err != nil {
		t.Fatalf("expected no-op on empty stack, got ok=%v err=%v", ok, err)
	}
}
