package replay

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/room"
)

const tick = 20 * time.Millisecond

type session struct {
	t    *testing.T
	clk  *manualClock
	next time.Time
	code int32
	rec  *Recorder
	room *room.Room
}

func newSession(t *testing.T, dir string) *session {
	t.Helper()
	start := time.Unix(1_700_000_000, 0)
	clk := &manualClock{now: start}

	settings := protocol.DefaultGameOptions()
	w := protocol.NewWriter()
	settings.Serialize(w)

	h := Header{
		Code:          "ABCDEF",
		MatchID:       "match-1",
		Authoritative: true,
		Seed:          [2]uint64{3, 4},
		Settings:      w.Copy(),
		TickRateHz:    50,
	}
	rec, err := NewRecorder(dir, h, clk.Now)
	require.NoError(t, err)

	code, err := protocol.CodeToInt(h.Code)
	require.NoError(t, err)

	r := room.New(room.Options{
		Code:          code,
		Authoritative: true,
		Settings:      settings,
		Broadcaster:   rec.Wrap(nil),
		Clock:         clk,
		Rand:          rand.New(rand.NewPCG(3, 4)),
	})
	return &session{t: t, clk: clk, next: start.Add(tick), code: code, rec: rec, room: r}
}

func (s *session) advance() { s.clk.now = s.clk.now.Add(5 * time.Millisecond) }

func (s *session) join(id int32) {
	require.NoError(s.t, s.rec.RecordJoin(id))
	s.room.HandleJoin(id)
}

func (s *session) leave(id int32) {
	require.NoError(s.t, s.rec.RecordLeave(id))
	s.room.HandleLeave(id)
}

func (s *session) send(id int32, msgs ...protocol.GameDataMessage) {
	data := protocol.EncodeRoot(&protocol.GameDataPayload{Code: s.code, Messages: msgs})
	require.NoError(s.t, s.rec.RecordInbound(id, data))
	decoded, err := protocol.DecodeRoot(data)
	require.NoError(s.t, err)
	for _, m := range decoded {
		require.NoError(s.t, s.room.HandleRoot(m, id))
	}
}

func (s *session) tick() {
	s.clk.now = s.next
	s.next = s.next.Add(tick)
	require.NoError(s.t, s.room.FixedUpdate(context.Background()))
}

func TestRecordAndPlay(t *testing.T) {
	dir := t.TempDir()
	s := newSession(t, dir)

	s.join(1)
	s.advance()
	s.send(1, &protocol.SceneChangeMessage{ClientID: 1, Scene: room.SceneOnlineGame})
	s.join(2)
	s.advance()
	s.send(2, &protocol.SceneChangeMessage{ClientID: 2, Scene: room.SceneOnlineGame})
	s.tick()
	s.tick()
	s.advance()
	s.leave(2)
	s.tick()
	require.NoError(t, s.rec.Close())

	path := filepath.Join(dir, FileName("ABCDEF", "match-1"))
	assert.Equal(t, path, s.rec.Path())

	res, err := PlayFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "match-1", res.Header.MatchID)
	assert.GreaterOrEqual(t, res.Compared, 2)
	assert.Zero(t, res.Mismatches)
	assert.Equal(t, 3, res.Ticks)
	assert.Len(t, res.Room.Players(), 1)
	assert.Equal(t, s.room.NetObjectCount(), res.Room.NetObjectCount())
}

func TestPlayDetectsDivergence(t *testing.T) {
	dir := t.TempDir()
	s := newSession(t, dir)
	s.join(1)
	s.advance()
	s.send(1, &protocol.SceneChangeMessage{ClientID: 1, Scene: room.SceneOnlineGame})
	s.tick()
	require.NoError(t, s.rec.Close())

	entries, err := ReadAll(s.rec.Path())
	require.NoError(t, err)

	for i := range entries {
		if entries[i].Kind == KindOutbound {
			entries[i].Data = append([]byte{}, entries[i].Data...)
			entries[i].Data[len(entries[i].Data)-1] ^= 0xFF
		}
	}
	res, err := Play(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Mismatches)
}

func TestRecorderClosedIgnoresWrites(t *testing.T) {
	s := newSession(t, t.TempDir())
	require.NoError(t, s.rec.Close())
	assert.NoError(t, s.rec.RecordJoin(4))
	assert.NoError(t, s.rec.Close())
}

func TestReadAllRequiresHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken"+FileExt)
	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	line, err := json.Marshal(Entry{Kind: KindJoin, Client: 1})
	require.NoError(t, err)
	_, err = enc.Write(append(line, '\n'))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	_, err = ReadAll(path)
	assert.ErrorIs(t, err, ErrNoHeader)

	_, err = Play(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestNewRecorderRejectsBadCode(t *testing.T) {
	_, err := NewRecorder(t.TempDir(), Header{Code: "12"}, nil)
	assert.Error(t, err)
}
