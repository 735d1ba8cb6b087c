// Package audit appends memory activity to JSON Lines files and optionally
// mirrors each line to a Publisher.
package audit

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/MarcusD9722/Nova/logging"
	"github.com/MarcusD9722/Nova/memory"
)

var log = logging.For("audit")

// Stream file names inside the audit directory.
const (
	AuditFile    = "audit.jsonl"
	SnapshotFile = "snapshots.jsonl"
)

// DefaultPublishTimeout bounds each mirror publish.
const DefaultPublishTimeout = 2 * time.Second

// Log writes the audit and snapshot streams.
type Log struct {
	dir            string
	publisher      Publisher
	publishTimeout time.Duration

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Option configures a Log.
type Option func(*Log)

// WithPublishTimeout sets the deadline for mirroring one line.
func WithPublishTimeout(d time.Duration) Option {
	return func(l *Log) {
		if d > 0 {
			l.publishTimeout = d
		}
	}
}

var _ memory.AuditLog = (*Log)(nil)

// New creates dir if needed. A nil publisher disables mirroring.
func New(dir string, publisher Publisher, opts ...Option) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	l := &Log{
		dir:            dir,
		publisher:      publisher,
		publishTimeout: DefaultPublishTimeout,
		entropy:        ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// AppendAudit appends record to the audit stream.
func (l *Log) AppendAudit(ctx context.Context, record map[string]any) error {
	return l.append(ctx, AuditFile, record)
}

// AppendSnapshot appends record to the snapshot stream.
func (l *Log) AppendSnapshot(ctx context.Context, record map[string]any) error {
	return l.append(ctx, SnapshotFile, record)
}

// append adds "ts" when missing and a sortable "line_id", writes one line,
// then mirrors it outside the file lock under the publish timeout. The
// caller's map is not modified.
func (l *Log) append(ctx context.Context, name string, record map[string]any) error {
	lineID, b, err := l.write(name, record)
	if err != nil {
		return err
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.publishTimeout)
	defer cancel()
	if err := l.publisher.Publish(pctx, name, lineID, b); err != nil {
		log.WithError(err).WithField("stream", name).Warn("mirror audit line")
	}
	return nil
}

// write appends one line to the named file and returns its id and JSON.
func (l *Log) write(name string, record map[string]any) (string, []byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	line := make(map[string]any, len(record)+2)
	for k, v := range record {
		line[k] = v
	}
	if _, ok := line["ts"]; !ok {
		line["ts"] = now.Format(time.RFC3339Nano)
	}
	lineID := ulid.MustNew(ulid.Timestamp(now), l.entropy).String()
	line["line_id"] = lineID

	b, err := json.Marshal(line)
	if err != nil {
		return "", nil, fmt.Errorf("%w: marshal %s record: %w", memory.ErrAudit, name, err)
	}

	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("%w: open %s: %w", memory.ErrAudit, name, err)
	}
	_, werr := f.Write(append(b, '\n'))
	cerr := f.Close()
	if werr != nil {
		return "", nil, fmt.Errorf("%w: write %s: %w", memory.ErrAudit, name, werr)
	}
	if cerr != nil {
		return "", nil, fmt.Errorf("%w: close %s: %w", memory.ErrAudit, name, cerr)
	}
	return lineID, b, nil
}
