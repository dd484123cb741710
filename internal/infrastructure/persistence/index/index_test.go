package index

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/coderunner/agentcore/internal/domain/entity"
	"github.com/coderunner/agentcore/internal/infrastructure/config"
	"github.com/coderunner/agentcore/internal/infrastructure/persistence"
)

func openTestIndex(t *testing.T) (*Index, *persistence.Journal) {
	t.Helper()
	dir := t.TempDir()
	idx, err := Open(&config.DatabaseConfig{Type: "sqlite", DSN: filepath.Join(dir, "index.db")})
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	j := persistence.NewJournal(filepath.Join(dir, "journal.ndjson"))
	return idx, j
}

func TestIndex_UpsertAndByID(t *testing.T) {
	idx, _ := openTestIndex(t)

	rec := persistence.SessionRecord{
		ID:        "s1",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
		Messages:  []entity.Message{entity.NewUserMessage("hi")},
	}
	if err := idx.Upsert(rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	row, err := idx.ByID("s1")
	if err != nil {
		t.Fatal(err)
	}
	if row == nil || row.MessageCount != 1 {
		t.Fatalf("expected indexed row with 1 message, got %+v", row)
	}

	missing, err := idx.ByID("nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown id, got %+v err=%v", missing, err)
	}
}

func TestIndex_RebuildFromJournal(t *testing.T) {
	idx, j := openTestIndex(t)

	now := time.Now().UTC()
	if err := j.Append(persistence.SessionRecord{ID: "s1", CreatedAt: now, UpdatedAt: now, Messages: []entity.Message{entity.NewUserMessage("a")}}); err != nil {
		t.Fatal(err)
	}
	later := now.Add(time.Hour)
	if err := j.Append(persistence.SessionRecord{
		ID: "s1", CreatedAt: now, UpdatedAt: later,
		Messages: []entity.Message{entity.NewUserMessage("a"), entity.NewAssistantMessage("b", nil)},
	}); err != nil {
		t.Fatal(err)
	}
	if err := j.Append(persistence.SessionRecord{ID: "s2", CreatedAt: now, UpdatedAt: now, Messages: []entity.Message{entity.NewUserMessage("x")}}); err != nil {
		t.Fatal(err)
	}

	if err := idx.Rebuild(j); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	s1, err := idx.ByID("s1")
	if err != nil || s1 == nil {
		t.Fatalf("expected s1 indexed, err=%v row=%+v", err, s1)
	}
	if s1.MessageCount != 2 {
		t.Fatalf("expected the later s1 snapshot (2 messages) to win, got %d", s1.MessageCount)
	}

	rows, err := idx.BySince(now.Add(30 * time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != "s1" {
		t.Fatalf("expected only s1 (updated later) in since-query, got %+v", rows)
	}
}
