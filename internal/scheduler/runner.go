package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skeld-project/skeld/internal/room"
	"github.com/skeld-project/skeld/internal/util"
)

// ErrRunnerStopped is returned for commands sent to a runner that has exited.
var ErrRunnerStopped = errors.New("scheduler: runner stopped")

// Command is work that must run on the goroutine owning a room.
type Command func(r *room.Room) error

type request struct {
	cmd    Command
	result chan error
}

// Runner owns one room: it ticks the room at a fixed rate and executes
// queued commands between ticks, so the room is only ever touched from a
// single goroutine.
type Runner struct {
	room     *room.Room
	interval time.Duration
	inbox    chan request

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger zerolog.Logger
}

// NewRunner creates a runner ticking r every interval.
func NewRunner(r *room.Room, interval time.Duration) *Runner {
	return &Runner{
		room:     r,
		interval: interval,
		inbox:    make(chan request, 1024),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		logger:   util.ComponentLogger("runner").With().Str("code", r.CodeString()).Logger(),
	}
}

// Run drives the room until ctx is canceled, Stop is called or the room is
// destroyed. The room is destroyed on exit.
func (rn *Runner) Run(ctx context.Context) {
	defer close(rn.done)
	defer func() {
		if !rn.room.Destroyed() {
			rn.room.Destroy()
		}
		rn.logger.Debug().Msg("runner exited")
	}()

	ticker := time.NewTicker(rn.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rn.stopCh:
			return
		case req := <-rn.inbox:
			err := rn.exec(req.cmd)
			if req.result != nil {
				req.result <- err
			}
			if rn.room.Destroyed() {
				return
			}
		case <-ticker.C:
			if err := rn.room.FixedUpdate(ctx); err != nil {
				if errors.Is(err, room.ErrRoomDestroyed) {
					return
				}
				rn.logger.Warn().Err(err).Msg("tick failed")
			}
		}
	}
}

// exec runs cmd, turning a panic into an error so one bad command cannot
// take the room down.
func (rn *Runner) exec(cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			rn.logger.Error().Interface("panic", r).Msg("room command panicked")
			err = fmt.Errorf("room command panicked: %v", r)
		}
	}()
	return cmd(rn.room)
}

// Do runs cmd on the room goroutine and waits for its result.
func (rn *Runner) Do(ctx context.Context, cmd Command) error {
	req := request{cmd: cmd, result: make(chan error, 1)}
	select {
	case rn.inbox <- req:
	case <-rn.done:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-rn.done:
		// The command may have been the one that ended the runner.
		select {
		case err := <-req.result:
			return err
		default:
			return ErrRunnerStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues cmd without waiting. It reports false when the inbox is full
// or the runner has exited.
func (rn *Runner) Post(cmd Command) bool {
	select {
	case <-rn.done:
		return false
	default:
	}
	select {
	case rn.inbox <- request{cmd: cmd}:
		return true
	default:
		rn.logger.Warn().Msg("room inbox full, dropping command")
		return false
	}
}

// Stop ends the runner and waits for it to exit.
func (rn *Runner) Stop() {
	rn.stopOnce.Do(func() { close(rn.stopCh) })
	<-rn.done
}

// Done is closed once the runner has exited.
func (rn *Runner) Done() <-chan struct{} {
	return rn.done
}

// Room returns the room this runner drives. It must only be used from
// inside a Command.
func (rn *Runner) Room() *room.Room {
	return rn.room
}
