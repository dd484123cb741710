package service

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

// DefaultCheckpointCap is the hard cap on the checkpoint stack; past it
// the oldest snapshot is evicted to make room for the newest.
const DefaultCheckpointCap = 50

// fileSnapshot is one pre-mutation capture of a file's bytes. Content
// nil means the file did not exist when the snapshot was taken.
type fileSnapshot struct {
	path    string
	content []byte
	existed bool
}

// Checkpointer is a bounded LIFO stack of file snapshots, used to
// provide one-shot undo for mutating tool calls. It deliberately only
// ever looks at file bytes, never diffs or patches — rollback beyond a
// single-file snapshot is out of scope.
type Checkpointer struct {
	mu     sync.Mutex
	stack  []fileSnapshot
	cap    int
	logger *zap.Logger
}

// NewCheckpointer builds a Checkpointer with the given cap (<=0 uses
// DefaultCheckpointCap).
func NewCheckpointer(cap int, logger *zap.Logger) *Checkpointer {
	if cap <= 0 {
		cap = DefaultCheckpointCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checkpointer{cap: cap, logger: logger}
}

// Snapshot reads path's current bytes and pushes a checkpoint. A read
// failure (including file-not-found) still produces a checkpoint — with
// existed=false — so Undo later knows to delete rather than restore.
func (c *Checkpointer) Snapshot(path string) {
	content, err := os.ReadFile(path)
	existed := err == nil
	if err != nil && !os.IsNotExist(err) {
		c.logger.Warn("checkpoint read failed, recording as non-existent",
			zap.String("path", path), zap.Error(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stack = append(c.stack, fileSnapshot{path: path, content: content, existed: existed})
	if len(c.stack) > c.cap {
		c.stack = c.stack[1:]
	}
}

// Undo pops the most recent checkpoint and restores it: writes back the
// captured bytes, or deletes the file when the snapshot recorded
// non-existence. Deleting an already-missing file is not an error.
// Returns false if the stack is empty.
func (c *Checkpointer) Undo() (bool, error) {
	c.mu.Lock()
	if len(c.stack) == 0 {
		c.mu.Unlock()
		return false, nil
	}
	snap := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	c.mu.Unlock()

	if !snap.existed {
		if err := os.Remove(snap.path); err != nil && !os.IsNotExist(err) {
			return true, err
		}
		return true, nil
	}

	if err := os.WriteFile(snap.path, snap.content, 0644); err != nil {
		return true, err
	}
	return true, nil
}

// Depth returns the number of checkpoints currently held.
func (c *Checkpointer) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stack)
}
