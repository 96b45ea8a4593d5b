package db

import (
	"fmt"
	"time"
)

// Alert is an operator alert.
type Alert struct {
	ID        int       `json:"id"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateAlert creates a new alert record.
func (s *MatchStore) CreateAlert(alertType, level, message string) error {
	_, err := s.db.Exec(
		"INSERT INTO alerts (type, level, message) VALUES (?, ?, ?)",
		alertType, level, message)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetUnacknowledgedAlerts returns all unacknowledged alerts, newest first.
func (s *MatchStore) GetUnacknowledgedAlerts() ([]Alert, error) {
	rows, err := s.db.Query(
		"SELECT id, type, level, message, created_at FROM alerts WHERE acknowledged = 0 ORDER BY id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.Type, &a.Level, &a.Message, &a.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AcknowledgeAlert marks an alert as acknowledged.
func (s *MatchStore) AcknowledgeAlert(alertID int) error {
	res, err := s.db.Exec("UPDATE alerts SET acknowledged = 1 WHERE id = ?", alertID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %d not found", alertID)
	}
	return nil
}

// CleanOldAlerts removes acknowledged alerts older than the given number of
// days.
func (s *MatchStore) CleanOldAlerts(days int) error {
	_, err := s.db.Exec(
		"DELETE FROM alerts WHERE acknowledged = 1 AND created_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", days))
	return err
}
