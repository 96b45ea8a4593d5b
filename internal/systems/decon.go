package systems

import (
	"math"
	"time"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

// DeconState is a set of decontamination flags.
type DeconState uint8

const (
	DeconIdle      DeconState = 0
	DeconEnter     DeconState = 1
	DeconClosed    DeconState = 2
	DeconExit      DeconState = 4
	DeconHeadingUp DeconState = 8
)

// DeconPhase is how long each decontamination phase lasts.
const DeconPhase = 3 * time.Second

// DeconSystem is a decontamination airlock.
// Format (spawn and delta): [timer:1][state:1]
type DeconSystem struct {
	base
	timer float32
	state DeconState
}

// NewDeconSystem creates an idle airlock registered as typ.
func NewDeconSystem(ship Ship, typ content.SystemType) *DeconSystem {
	return &DeconSystem{base: base{ship: ship, typ: typ}}
}

func (s *DeconSystem) Timer() float32    { return s.timer }
func (s *DeconSystem) State() DeconState { return s.state }

func (s *DeconSystem) Serialize(w *protocol.Writer, spawn bool) {
	w.WriteUint8(uint8(math.Ceil(float64(s.timer))))
	w.WriteUint8(uint8(s.state))
}

func (s *DeconSystem) Deserialize(r *protocol.Reader, spawn bool) {
	s.timer = float32(r.ReadUint8())
	s.state = DeconState(r.ReadUint8())
}

// HandleRepair starts a cycle from an idle airlock:
// 1 exits heading up, 2 enters heading up, 3 exits heading down, 4 enters
// heading down.
func (s *DeconSystem) HandleRepair(player uint8, amount uint8) {
	if s.state != DeconIdle || !s.beginRepair(player, amount) {
		return
	}
	var next DeconState
	switch amount {
	case 1:
		next = DeconHeadingUp | DeconExit
	case 2:
		next = DeconHeadingUp | DeconEnter
	case 3:
		next = DeconExit
	case 4:
		next = DeconEnter
	default:
		return
	}
	s.setState(next)
	s.timer = seconds(DeconPhase)
}

// Use starts a cycle, forwarding to the host when needed.
func (s *DeconSystem) Use(player uint8, headingUp, entering bool) {
	amount := uint8(3)
	if entering {
		amount = 4
	}
	if headingUp {
		amount -= 2
	}
	s.repair(s, player, amount)
}

func (s *DeconSystem) setState(next DeconState) {
	old := s.state
	s.state = next
	ev := events.Emit(s.ship.Emitter(), &DeconEvent{
		Mutation: events.NewMutation(old, next),
		System:   s.typ,
	})
	s.state = ev.Resolve()
	if s.state != old {
		s.markDirty()
	}
}

// FixedUpdate moves the airlock Enter -> Closed -> Exit -> Idle, one phase
// per DeconPhase.
func (s *DeconSystem) FixedUpdate(delta time.Duration) {
	if s.state == DeconIdle {
		return
	}
	before := s.timer
	s.timer -= seconds(delta)
	if math.Ceil(float64(before)) != math.Ceil(float64(s.timer)) {
		s.markDirty()
	}
	if s.timer > 0 {
		return
	}

	heading := s.state & DeconHeadingUp
	switch {
	case s.state&DeconEnter != 0:
		s.setState(heading | DeconClosed)
		s.timer = seconds(DeconPhase)
	case s.state&DeconClosed != 0:
		s.setState(heading | DeconExit)
		s.timer = seconds(DeconPhase)
	case s.state&DeconExit != 0:
		s.setState(DeconIdle)
		s.timer = 0
	}
}
