package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skeld-project/skeld/internal/events"
)

const (
	// LagWarningThreshold is the number of long ticks per hour before warning.
	LagWarningThreshold = 10
	// LagCriticalThreshold is the number of long ticks per hour before the
	// room is reported as critical.
	LagCriticalThreshold = 30

	maxLagHistory = 1000
)

// LagMonitor tracks rooms whose runner falls behind its tick rate.
type LagMonitor struct {
	mu       sync.RWMutex
	now      func() time.Time
	eventBus *events.EventBus

	rooms   map[string]*RoomLagData
	alerted map[string]string // last alert level per room

	warningThreshold  int
	criticalThreshold int
}

// RoomLagData holds long-tick data for a single room.
type RoomLagData struct {
	Code           string      `json:"code"`
	TotalEvents    int         `json:"total_events"`
	EventsThisHour int         `json:"events_this_hour"`
	LastEventTime  time.Time   `json:"last_event_time"`
	MaxDelta       int64       `json:"max_delta_ms"`
	AvgDelta       float64     `json:"avg_delta_ms"`
	History        []LagEvent  `json:"history"`
	HourlyBuckets  map[int]int `json:"hourly_buckets"`
}

// LagEvent is a single long tick.
type LagEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Delta     int64     `json:"delta_ms"`
}

// LagAlert is raised for a room over a threshold.
type LagAlert struct {
	Code    string `json:"code"`
	Level   string `json:"level"`
	Events  int    `json:"events"`
	Message string `json:"message"`
}

// NewLagMonitor creates a lag monitor fed by long-tick events on the bus.
func NewLagMonitor(eventBus *events.EventBus) *LagMonitor {
	lm := &LagMonitor{
		now:               time.Now,
		eventBus:          eventBus,
		rooms:             make(map[string]*RoomLagData),
		alerted:           make(map[string]string),
		warningThreshold:  LagWarningThreshold,
		criticalThreshold: LagCriticalThreshold,
	}
	if eventBus != nil {
		eventBus.Subscribe(events.EventLongTick, "lag_monitor", lm.handleLongTick)
		eventBus.Subscribe(events.EventRoomDestroyed, "lag_monitor.roomDestroyed", lm.handleRoomDestroyed)
	}
	return lm
}

func (lm *LagMonitor) handleLongTick(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.LongTickPayload)
	if !ok {
		return nil
	}
	lm.Observe(payload.Code, payload.Delta)
	return nil
}

func (lm *LagMonitor) handleRoomDestroyed(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RoomPayload)
	if !ok {
		return nil
	}
	lm.mu.Lock()
	delete(lm.rooms, payload.Code)
	delete(lm.alerted, payload.Code)
	lm.mu.Unlock()
	return nil
}

// Observe records one long tick for a room.
func (lm *LagMonitor) Observe(code string, delta time.Duration) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	data, ok := lm.rooms[code]
	if !ok {
		data = &RoomLagData{
			Code:          code,
			History:       make([]LagEvent, 0, 100),
			HourlyBuckets: make(map[int]int),
		}
		lm.rooms[code] = data
	}

	now := lm.now()
	ms := delta.Milliseconds()

	data.TotalEvents++
	data.LastEventTime = now
	data.History = append(data.History, LagEvent{Timestamp: now, Delta: ms})
	if len(data.History) > maxLagHistory {
		data.History = data.History[len(data.History)-maxLagHistory:]
	}
	if ms > data.MaxDelta {
		data.MaxDelta = ms
	}

	var total int64
	hourAgo := now.Add(-time.Hour)
	recent := 0
	for _, e := range data.History {
		total += e.Delta
		if e.Timestamp.After(hourAgo) {
			recent++
		}
	}
	data.AvgDelta = float64(total) / float64(len(data.History))
	data.EventsThisHour = recent
	data.HourlyBuckets[now.Hour()]++
}

// GetRoomData returns a copy of a room's lag data.
func (lm *LagMonitor) GetRoomData(code string) (*RoomLagData, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	data, ok := lm.rooms[code]
	if !ok {
		return nil, false
	}
	cp := *data
	return &cp, true
}

// GetAllRoomData returns copies of every room's lag data.
func (lm *LagMonitor) GetAllRoomData() map[string]*RoomLagData {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	result := make(map[string]*RoomLagData, len(lm.rooms))
	for k, v := range lm.rooms {
		cp := *v
		result[k] = &cp
	}
	return result
}

// CheckThresholds evaluates every room against the lag thresholds.
func (lm *LagMonitor) CheckThresholds() []LagAlert {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	var alerts []LagAlert
	for code, data := range lm.rooms {
		level := ""
		switch {
		case data.EventsThisHour >= lm.criticalThreshold:
			level = "critical"
		case data.EventsThisHour >= lm.warningThreshold:
			level = "warning"
		default:
			continue
		}
		alerts = append(alerts, LagAlert{
			Code:    code,
			Level:   level,
			Events:  data.EventsThisHour,
			Message: fmt.Sprintf("Room %s: %d long ticks in the last hour", code, data.EventsThisHour),
		})
	}
	return alerts
}

// Start checks thresholds periodically until ctx is done.
func (lm *LagMonitor) Start(ctx context.Context, checkInterval time.Duration) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lm.raiseAlerts(ctx)
		}
	}
}

// raiseAlerts logs every alert and publishes the ones that escalate a
// room's level.
func (lm *LagMonitor) raiseAlerts(ctx context.Context) {
	for _, alert := range lm.CheckThresholds() {
		ev := log.Warn()
		if alert.Level == "critical" {
			ev = log.Error()
		}
		ev.Str("code", alert.Code).
			Str("level", alert.Level).
			Int("events", alert.Events).
			Msg("lag threshold alert")

		lm.mu.Lock()
		prev := lm.alerted[alert.Code]
		escalated := prev == "" || (prev == "warning" && alert.Level == "critical")
		if escalated {
			lm.alerted[alert.Code] = alert.Level
		}
		lm.mu.Unlock()

		if escalated && lm.eventBus != nil {
			lm.eventBus.Emit(ctx, events.Event{
				Type:   events.EventLagAlert,
				Source: "lag_monitor",
				Payload: events.AlertPayload{
					Code:    alert.Code,
					Level:   alert.Level,
					Events:  alert.Events,
					Message: alert.Message,
				},
			})
		}
	}
}
