package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/room"
)

const defaultTickRate = 50

// Result summarizes a playback.
type Result struct {
	Header     Header
	Entries    int
	Ticks      int
	Compared   int
	Mismatches int

	// Room is the reconstructed room after the last entry.
	Room *room.Room
}

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

// capture keeps the batches the replayed room flushes, encoded the same way
// the recorder stores them.
type capture struct {
	code    int32
	batches [][]byte
}

func (c *capture) Broadcast(_ context.Context, messages []protocol.GameDataMessage, _ bool, recipient int32, payloads []protocol.RootMessage) error {
	c.batches = append(c.batches, protocol.EncodeBatch(c.code, recipient, messages, payloads))
	return nil
}

func (c *capture) pop() ([]byte, bool) {
	if len(c.batches) == 0 {
		return nil, false
	}
	b := c.batches[0]
	c.batches = c.batches[1:]
	return b, true
}

// Play rebuilds a room from a recording. Joins, leaves and inbound packets
// are applied in order while the room is ticked at the recorded rate, and
// every flushed batch is compared with the recorded output.
func Play(ctx context.Context, entries []Entry) (*Result, error) {
	if len(entries) == 0 || entries[0].Kind != KindHeader || entries[0].Header == nil {
		return nil, ErrNoHeader
	}
	h := *entries[0].Header

	code, err := protocol.CodeToInt(h.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to parse room code %s: %w", h.Code, err)
	}

	var settings protocol.GameOptions
	if len(h.Settings) > 0 {
		if err := settings.Deserialize(protocol.NewReader(h.Settings)); err != nil {
			return nil, fmt.Errorf("failed to decode recorded settings: %w", err)
		}
	}

	clock := &manualClock{now: entries[0].Time}
	out := &capture{code: code}
	r := room.New(room.Options{
		Code:              code,
		Authoritative:     h.Authoritative,
		ClientID:          h.ClientID,
		Settings:          settings,
		Broadcaster:       out,
		Clock:             clock,
		Rand:              rand.New(rand.NewPCG(h.Seed[0], h.Seed[1])),
		ReadyTimeout:      h.ReadyTimeout,
		MeetingCloseDelay: h.MeetingCloseDelay,
	})

	if h.Public {
		r.SetPrivacy(room.PrivacyPublic)
	}

	rate := h.TickRateHz
	if rate <= 0 {
		rate = defaultTickRate
	}
	interval := time.Second / time.Duration(rate)
	nextTick := entries[0].Time.Add(interval)

	res := &Result{Header: h, Room: r}
	logger := log.With().Str("component", "replay").Str("code", h.Code).Logger()

	for _, e := range entries[1:] {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Entries++

		for !nextTick.After(e.Time) {
			clock.now = nextTick
			nextTick = nextTick.Add(interval)
			if err := r.FixedUpdate(ctx); err != nil {
				if errors.Is(err, room.ErrRoomDestroyed) {
					return res, nil
				}
				return res, fmt.Errorf("failed to replay tick: %w", err)
			}
			res.Ticks++
		}
		clock.now = e.Time

		switch e.Kind {
		case KindJoin:
			r.HandleJoin(e.Client)
		case KindLeave:
			r.HandleLeave(e.Client)
		case KindInbound:
			messages, err := protocol.DecodeRoot(e.Data)
			if err != nil {
				logger.Warn().Err(err).Int32("client", e.Client).Msg("skipping undecodable packet")
				continue
			}
			for _, msg := range messages {
				if err := r.HandleRoot(msg, e.Client); err != nil {
					logger.Warn().Err(err).Int32("client", e.Client).Msg("recorded message failed")
				}
			}
		case KindOutbound:
			res.Compared++
			got, ok := out.pop()
			if !ok || !bytes.Equal(got, e.Data) {
				res.Mismatches++
				logger.Debug().Time("t", e.Time).Bool("missing", !ok).Msg("output differs from recording")
			}
		default:
			logger.Debug().Str("kind", string(e.Kind)).Msg("unknown entry kind")
		}
	}
	return res, nil
}

// PlayFile reads and plays one recording.
func PlayFile(ctx context.Context, path string) (*Result, error) {
	entries, err := ReadAll(path)
	if err != nil {
		return nil, err
	}
	return Play(ctx, entries)
}
