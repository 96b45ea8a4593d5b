package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeld-project/skeld/internal/config"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/server"
)

func newTestCLI(t *testing.T, input string) (*CLI, *bytes.Buffer, *server.Manager) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.SetPath(filepath.Join(dir, "config.json"))
	rc := cfg.GetRoom()
	rc.PresetsFile = filepath.Join(dir, "missing.yaml")
	cfg.SetRoom(rc)

	bus := events.NewEventBus()
	mgr, err := server.NewManager(cfg, bus)
	require.NoError(t, err)
	t.Cleanup(mgr.StopAll)

	out := &bytes.Buffer{}
	c := NewCLI(cfg, bus, mgr, nil)
	c.in = strings.NewReader(input)
	c.out = out
	return c, out, mgr
}

func TestCreateAndListRooms(t *testing.T) {
	c, out, mgr := newTestCLI(t, "create ABCDEF\nrooms\nroom abcdef\n")
	c.Start(context.Background())

	_, ok := mgr.Get("ABCDEF")
	assert.True(t, ok)
	text := out.String()
	assert.Contains(t, text, "Room ABCDEF created")
	assert.Contains(t, text, "ABCDEF")
	assert.Contains(t, text, "Session:")
}

func TestCommandErrors(t *testing.T) {
	c, out, _ := newTestCLI(t, "start\nend QWERTY\nkick QWERTY x\nmatches\nfoo\n")
	c.Start(context.Background())

	text := out.String()
	assert.Contains(t, text, "room code required")
	assert.Contains(t, text, "room not found")
	assert.Contains(t, text, "invalid client id")
	assert.Contains(t, text, "match storage is disabled")
	assert.Contains(t, text, "Unknown command: 'foo'")
}

func TestPrivacyAndClose(t *testing.T) {
	c, out, mgr := newTestCLI(t, "create ABCDEF\npublic abcdef\nclose ABCDEF\n")
	c.Start(context.Background())

	assert.Contains(t, out.String(), "Room ABCDEF public: true")
	_, ok := mgr.Get("ABCDEF")
	assert.False(t, ok)
}

func TestSetConfig(t *testing.T) {
	c, out, _ := newTestCLI(t, "setconfig max_rooms 8\nsetconfig tick_rate_hz 0\n")
	c.Start(context.Background())

	assert.Equal(t, 8, c.cfg.GetRoom().MaxRooms)
	assert.Equal(t, config.DefaultTickRate, c.cfg.GetRoom().TickRateHz)
	assert.Contains(t, out.String(), "Config updated: max_rooms = 8")
	assert.Contains(t, out.String(), "tick rate must be between")
}

func TestQuitEmitsShutdown(t *testing.T) {
	c, _, _ := newTestCLI(t, "quit\nrooms\n")
	got := make(chan struct{}, 1)
	c.eventBus.Subscribe(events.EventShutdown, "test", func(context.Context, events.Event) error {
		got <- struct{}{}
		return nil
	})

	c.Start(context.Background())

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown not emitted")
	}
}
