// Package replay records the message traffic of a room to a compressed
// JSONL file and plays recordings back into a fresh room.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/room"
)

// FileExt is the suffix of every recording.
const FileExt = ".jsonl.zst"

// Kind tags a recorded entry.
type Kind string

const (
	KindHeader   Kind = "header"
	KindJoin     Kind = "join"
	KindLeave    Kind = "leave"
	KindInbound  Kind = "in"
	KindOutbound Kind = "out"
)

// Header describes the room a recording was taken from. It is always the
// first entry.
type Header struct {
	Code          string    `json:"code"`
	MatchID       string    `json:"match_id"`
	Authoritative bool      `json:"authoritative"`
	Public        bool      `json:"public"`
	ClientID      int32     `json:"client_id"`
	Seed          [2]uint64 `json:"seed"`
	Settings      []byte    `json:"settings"`
	TickRateHz    int       `json:"tick_rate_hz"`

	ReadyTimeout      time.Duration `json:"ready_timeout"`
	MeetingCloseDelay time.Duration `json:"meeting_close_delay"`
}

// Entry is one line of a recording. Data holds encoded root messages.
type Entry struct {
	Time   time.Time `json:"t"`
	Kind   Kind      `json:"kind"`
	Client int32     `json:"client,omitempty"`
	Data   []byte    `json:"data,omitempty"`
	Header *Header   `json:"header,omitempty"`
}

// Recorder appends entries to a single recording file.
type Recorder struct {
	path string
	code int32
	now  func() time.Time

	mu     sync.Mutex
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
	closed bool
}

// FileName returns the recording name for a match.
func FileName(code, matchID string) string {
	return fmt.Sprintf("%s-%s%s", code, matchID, FileExt)
}

// NewRecorder creates the recording file for a match under dir and writes
// its header. Entries are stamped with now, or the wall clock when nil.
func NewRecorder(dir string, h Header, now func() time.Time) (*Recorder, error) {
	if now == nil {
		now = time.Now
	}
	code, err := protocol.CodeToInt(h.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to parse room code %s: %w", h.Code, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create replay directory: %w", err)
	}

	path := filepath.Join(dir, FileName(h.Code, h.MatchID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording %s: %w", path, err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	rec := &Recorder{
		path: path,
		code: code,
		now:  now,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 64*1024),
	}
	if err := rec.write(Entry{Time: rec.now(), Kind: KindHeader, Header: &h}); err != nil {
		rec.Close()
		return nil, err
	}
	return rec, nil
}

// Path returns the recording file path.
func (r *Recorder) Path() string { return r.path }

func (r *Recorder) write(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal replay entry: %w", err)
	}
	if _, err := r.w.Write(b); err != nil {
		return fmt.Errorf("failed to write replay entry: %w", err)
	}
	return r.w.WriteByte('\n')
}

// RecordJoin records a client joining.
func (r *Recorder) RecordJoin(clientID int32) error {
	return r.write(Entry{Time: r.now(), Kind: KindJoin, Client: clientID})
}

// RecordLeave records a client leaving.
func (r *Recorder) RecordLeave(clientID int32) error {
	return r.write(Entry{Time: r.now(), Kind: KindLeave, Client: clientID})
}

// RecordInbound records a packet received from a client.
func (r *Recorder) RecordInbound(sender int32, data []byte) error {
	return r.write(Entry{Time: r.now(), Kind: KindInbound, Client: sender, Data: data})
}

// Wrap returns a Broadcaster that records every flushed batch before
// handing it to next.
func (r *Recorder) Wrap(next room.Broadcaster) room.Broadcaster {
	return &recordingBroadcaster{rec: r, next: next}
}

type recordingBroadcaster struct {
	rec  *Recorder
	next room.Broadcaster
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, messages []protocol.GameDataMessage, reliable bool, recipient int32, payloads []protocol.RootMessage) error {
	data := protocol.EncodeBatch(b.rec.code, recipient, messages, payloads)
	if err := b.rec.write(Entry{Time: b.rec.now(), Kind: KindOutbound, Client: recipient, Data: data}); err != nil {
		return err
	}
	if b.next == nil {
		return nil
	}
	return b.next.Broadcast(ctx, messages, reliable, recipient, payloads)
}

// Flush pushes buffered entries through the compressor to disk.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush recording: %w", err)
	}
	return r.enc.Flush()
}

// Close finishes the zstd frame and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	if err := r.w.Flush(); err != nil {
		firstErr = err
	}
	if err := r.enc.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("failed to close recording %s: %w", r.path, firstErr)
	}
	return nil
}
