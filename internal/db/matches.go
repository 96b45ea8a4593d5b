package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skeld-project/skeld/internal/events"
)

// ErrMatchNotFound is returned for an unknown match id.
var ErrMatchNotFound = errors.New("db: match not found")

// MatchStore records finished and running games.
type MatchStore struct {
	db *Database
}

// Match is one game.
type Match struct {
	MatchID     string     `json:"match_id"`
	Code        string     `json:"code"`
	Map         string     `json:"map"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Winners     string     `json:"winners,omitempty"`
	PlayerCount int        `json:"player_count"`
}

// MatchPlayer is a player's record in a match.
type MatchPlayer struct {
	ClientID  int32  `json:"client_id"`
	PlayerID  uint8  `json:"player_id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Impostor  bool   `json:"impostor"`
	Dead      bool   `json:"dead"`
	Tasks     int    `json:"tasks"`
	TasksDone int    `json:"tasks_done"`
}

// Meeting is one meeting of a match.
type Meeting struct {
	Caller    uint8     `json:"caller"`
	Body      uint8     `json:"body"`
	Exiled    int       `json:"exiled"`
	Tie       bool      `json:"tie"`
	Duration  int64     `json:"duration_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Murder is one kill of a match.
type Murder struct {
	Killer    uint8     `json:"killer"`
	Victim    uint8     `json:"victim"`
	CreatedAt time.Time `json:"created_at"`
}

// MatchDetail is a match with everything recorded for it.
type MatchDetail struct {
	Match
	Players  []MatchPlayer `json:"players"`
	Meetings []Meeting     `json:"meetings"`
	Murders  []Murder      `json:"murders"`
}

// MatchStats aggregates finished matches.
type MatchStats struct {
	Total        int     `json:"total"`
	Finished     int     `json:"finished"`
	CrewmateWins int     `json:"crewmate_wins"`
	ImpostorWins int     `json:"impostor_wins"`
	AvgDuration  float64 `json:"avg_duration_sec"`
}

// schema holds the migration steps of the match database, oldest first.
var schema = []string{
	`CREATE TABLE matches (
		match_id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		map TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		reason TEXT NOT NULL DEFAULT '',
		winners TEXT NOT NULL DEFAULT '',
		player_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE match_players (
		match_id TEXT NOT NULL,
		client_id INTEGER NOT NULL,
		player_id INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		impostor INTEGER NOT NULL DEFAULT 0,
		dead INTEGER NOT NULL DEFAULT 0,
		tasks INTEGER NOT NULL DEFAULT 0,
		tasks_done INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (match_id, client_id),
		FOREIGN KEY (match_id) REFERENCES matches(match_id) ON DELETE CASCADE
	);
	CREATE INDEX idx_matches_code ON matches(code);
	CREATE INDEX idx_matches_started ON matches(started_at);`,

	`CREATE TABLE meetings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id TEXT NOT NULL,
		caller INTEGER NOT NULL,
		body INTEGER NOT NULL,
		exiled INTEGER NOT NULL,
		tie INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (match_id) REFERENCES matches(match_id) ON DELETE CASCADE
	);
	CREATE TABLE murders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id TEXT NOT NULL,
		killer INTEGER NOT NULL,
		victim INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (match_id) REFERENCES matches(match_id) ON DELETE CASCADE
	);
	CREATE INDEX idx_meetings_match ON meetings(match_id);
	CREATE INDEX idx_murders_match ON murders(match_id);`,

	`CREATE TABLE alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		acknowledged INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX idx_alerts_acknowledged ON alerts(acknowledged);`,
}

// NewMatchStore opens the database at dbPath and migrates it.
func NewMatchStore(dbPath string) (*MatchStore, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	s := &MatchStore{db: database}
	if err := database.Migrate(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate match database: %w", err)
	}
	return s, nil
}

// Subscribe records bus notifications as they arrive.
func (s *MatchStore) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventGameStarted, "db.gameStarted", s.onGameStarted)
	bus.Subscribe(events.EventGameEnded, "db.gameEnded", s.onGameEnded)
	bus.Subscribe(events.EventMeetingEnded, "db.meetingEnded", s.onMeetingEnded)
	bus.Subscribe(events.EventPlayerMurdered, "db.playerMurdered", s.onPlayerMurdered)
	bus.Subscribe(events.EventLagAlert, "db.lagAlert", s.onLagAlert)
}

func (s *MatchStore) onGameStarted(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.GameStartedPayload)
	if !ok {
		return nil
	}
	return s.RecordStart(payload)
}

func (s *MatchStore) onGameEnded(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.GameEndedPayload)
	if !ok {
		return nil
	}
	return s.RecordEnd(payload)
}

func (s *MatchStore) onMeetingEnded(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MeetingPayload)
	if !ok {
		return nil
	}
	return s.RecordMeeting(payload)
}

func (s *MatchStore) onPlayerMurdered(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MurderPayload)
	if !ok {
		return nil
	}
	return s.RecordMurder(payload)
}

func (s *MatchStore) onLagAlert(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AlertPayload)
	if !ok {
		return nil
	}
	return s.CreateAlert("lag", payload.Level, payload.Message)
}

// RecordStart inserts a match and its starting roster.
func (s *MatchStore) RecordStart(p events.GameStartedPayload) error {
	return s.db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO matches (match_id, code, map, started_at, player_count) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(match_id) DO UPDATE SET
				code = excluded.code, map = excluded.map,
				started_at = excluded.started_at, player_count = excluded.player_count`,
			p.MatchID, p.Code, p.Map, p.StartedAt.UTC(), len(p.Players))
		if err != nil {
			return fmt.Errorf("failed to insert match %s: %w", p.MatchID, err)
		}
		if err := upsertPlayers(tx, p.MatchID, p.Players); err != nil {
			return err
		}

		log.Info().Str("match_id", p.MatchID).Str("code", p.Code).Int("players", len(p.Players)).Msg("match recorded")
		return nil
	})
}

// RecordEnd closes a match and stores the final roster.
func (s *MatchStore) RecordEnd(p events.GameEndedPayload) error {
	if p.MatchID == "" {
		return nil
	}
	return s.db.Transaction(func(tx *sql.Tx) error {
		if err := ensureMatch(tx, p.MatchID, p.Code, p.EndedAt); err != nil {
			return err
		}
		_, err := tx.Exec(
			"UPDATE matches SET ended_at = ?, reason = ?, winners = ? WHERE match_id = ?",
			p.EndedAt.UTC(), p.Reason, p.Winners, p.MatchID)
		if err != nil {
			return fmt.Errorf("failed to close match %s: %w", p.MatchID, err)
		}
		return upsertPlayers(tx, p.MatchID, p.Players)
	})
}

// ensureMatch inserts a placeholder row for a match whose start has not been
// stored yet. Bus handlers run concurrently, so a game's later events can
// arrive before its start.
func ensureMatch(tx *sql.Tx, matchID, code string, at time.Time) error {
	_, err := tx.Exec(
		"INSERT OR IGNORE INTO matches (match_id, code, started_at) VALUES (?, ?, ?)",
		matchID, code, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert match %s: %w", matchID, err)
	}
	return nil
}

func upsertPlayers(tx *sql.Tx, matchID string, players []events.PlayerSummary) error {
	for _, pl := range players {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO match_players
				(match_id, client_id, player_id, name, color, impostor, dead, tasks, tasks_done)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			matchID, pl.ClientID, pl.PlayerID, pl.Name, pl.Color, pl.Impostor, pl.Dead, pl.Tasks, pl.Done)
		if err != nil {
			return fmt.Errorf("failed to store player %d: %w", pl.ClientID, err)
		}
	}
	return nil
}

// RecordMeeting stores a finished meeting.
func (s *MatchStore) RecordMeeting(p events.MeetingPayload) error {
	if p.MatchID == "" {
		return nil
	}
	return s.db.Transaction(func(tx *sql.Tx) error {
		if err := ensureMatch(tx, p.MatchID, p.Code, time.Now()); err != nil {
			return err
		}
		_, err := tx.Exec(
			"INSERT INTO meetings (match_id, caller, body, exiled, tie, duration_ms) VALUES (?, ?, ?, ?, ?, ?)",
			p.MatchID, p.Caller, p.Body, p.Exiled, p.Tie, p.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to store meeting: %w", err)
		}
		return nil
	})
}

// RecordMurder stores a kill.
func (s *MatchStore) RecordMurder(p events.MurderPayload) error {
	if p.MatchID == "" {
		return nil
	}
	return s.db.Transaction(func(tx *sql.Tx) error {
		if err := ensureMatch(tx, p.MatchID, p.Code, time.Now()); err != nil {
			return err
		}
		_, err := tx.Exec(
			"INSERT INTO murders (match_id, killer, victim) VALUES (?, ?, ?)",
			p.MatchID, p.Killer, p.Victim)
		if err != nil {
			return fmt.Errorf("failed to store murder: %w", err)
		}
		return nil
	})
}

// ListMatches returns matches newest first.
func (s *MatchStore) ListMatches(limit, offset int) ([]Match, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT match_id, code, map, started_at, ended_at, reason, winners, player_count
		FROM matches
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	matches := make([]Match, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(row scanner) (Match, error) {
	var m Match
	var ended sql.NullTime
	if err := row.Scan(&m.MatchID, &m.Code, &m.Map, &m.StartedAt, &ended, &m.Reason, &m.Winners, &m.PlayerCount); err != nil {
		return m, fmt.Errorf("failed to scan match: %w", err)
	}
	if ended.Valid {
		t := ended.Time
		m.EndedAt = &t
	}
	return m, nil
}

// GetMatch returns a match with its roster, meetings and murders.
func (s *MatchStore) GetMatch(matchID string) (*MatchDetail, error) {
	m, err := scanMatch(s.db.QueryRow(`
		SELECT match_id, code, map, started_at, ended_at, reason, winners, player_count
		FROM matches WHERE match_id = ?`, matchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
		}
		return nil, err
	}
	detail := &MatchDetail{Match: m}

	if detail.Players, err = s.matchPlayers(matchID); err != nil {
		return nil, err
	}
	if detail.Meetings, err = s.matchMeetings(matchID); err != nil {
		return nil, err
	}
	if detail.Murders, err = s.matchMurders(matchID); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *MatchStore) matchPlayers(matchID string) ([]MatchPlayer, error) {
	rows, err := s.db.Query(`
		SELECT client_id, player_id, name, color, impostor, dead, tasks, tasks_done
		FROM match_players WHERE match_id = ? ORDER BY client_id`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	players := make([]MatchPlayer, 0)
	for rows.Next() {
		var p MatchPlayer
		if err := rows.Scan(&p.ClientID, &p.PlayerID, &p.Name, &p.Color, &p.Impostor, &p.Dead, &p.Tasks, &p.TasksDone); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (s *MatchStore) matchMeetings(matchID string) ([]Meeting, error) {
	rows, err := s.db.Query(`
		SELECT caller, body, exiled, tie, duration_ms, created_at
		FROM meetings WHERE match_id = ? ORDER BY id`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query meetings: %w", err)
	}
	defer rows.Close()

	meetings := make([]Meeting, 0)
	for rows.Next() {
		var m Meeting
		if err := rows.Scan(&m.Caller, &m.Body, &m.Exiled, &m.Tie, &m.Duration, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

func (s *MatchStore) matchMurders(matchID string) ([]Murder, error) {
	rows, err := s.db.Query(`
		SELECT killer, victim, created_at
		FROM murders WHERE match_id = ? ORDER BY id`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query murders: %w", err)
	}
	defer rows.Close()

	murders := make([]Murder, 0)
	for rows.Next() {
		var m Murder
		if err := rows.Scan(&m.Killer, &m.Victim, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan murder: %w", err)
		}
		murders = append(murders, m)
	}
	return murders, rows.Err()
}

// Stats aggregates the stored matches.
func (s *MatchStore) Stats() (MatchStats, error) {
	var st MatchStats
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(ended_at),
			COALESCE(SUM(CASE WHEN winners = 'crewmates' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN winners = 'impostors' THEN 1 ELSE 0 END), 0)
		FROM matches`).Scan(&st.Total, &st.Finished, &st.CrewmateWins, &st.ImpostorWins)
	if err != nil {
		return st, fmt.Errorf("failed to compute match stats: %w", err)
	}

	rows, err := s.db.Query("SELECT started_at, ended_at FROM matches WHERE ended_at IS NOT NULL")
	if err != nil {
		return st, fmt.Errorf("failed to query match durations: %w", err)
	}
	defer rows.Close()

	var total time.Duration
	n := 0
	for rows.Next() {
		var started, ended time.Time
		if err := rows.Scan(&started, &ended); err != nil {
			return st, fmt.Errorf("failed to scan match duration: %w", err)
		}
		total += ended.Sub(started)
		n++
	}
	if n > 0 {
		st.AvgDuration = total.Seconds() / float64(n)
	}
	return st, rows.Err()
}

// Close closes the database.
func (s *MatchStore) Close() error {
	return s.db.Close()
}
