package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coderunner/agentcore/internal/domain/entity"
)

// SessionRecord is one snapshot of a conversation. Its JSON shape is the
// journal's external wire contract: {"id","createdAt","updatedAt","messages"}.
type SessionRecord struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Messages  []entity.Message `json:"messages"`
}

// NewSessionID generates a fresh opaque session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Journal is an append-only, newline-delimited JSON log of SessionRecord
// snapshots — the source of truth for session persistence. Nothing ever
// rewrites or deletes an existing line; a later record with the same ID
// shadows an earlier one on lookup rather than replacing it in place.
type Journal struct {
	mu   sync.Mutex
	path string
}

// NewJournal returns a Journal backed by the file at path. The file is
// created lazily on the first Append; a missing file reads as empty.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Append writes record as a single JSON line. Safe for concurrent callers.
func (j *Journal) Append(record SessionRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// All reads every record in the journal, in file order. A missing file
// reads as an empty list rather than an error. The final line is
// skipped rather than erred if it fails to parse, since an append that
// was interrupted mid-write (e.g. a crash) leaves a truncated last line
// that a reader must tolerate; a malformed line anywhere else is a
// genuine corruption and is reported.
func (j *Journal) All() ([]SessionRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}

	records := make([]SessionRecord, 0, len(lines))
	for i, line := range lines {
		if line == "" {
			continue
		}
		var rec SessionRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			if i == len(lines)-1 {
				continue
			}
			return nil, fmt.Errorf("parse journal line %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Last returns the most recently appended record, or nil if the journal
// holds no records.
func (j *Journal) Last() (*SessionRecord, error) {
	records, err := j.All()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	last := records[len(records)-1]
	return &last, nil
}

// Get returns the most recent record whose ID matches id, or nil if none
// do. Later snapshots with the same ID shadow earlier ones.
func (j *Journal) Get(id string) (*SessionRecord, error) {
	records, err := j.All()
	if err != nil {
		return nil, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].ID == id {
			rec := records[i]
			return &rec, nil
		}
	}
	return nil, nil
}
