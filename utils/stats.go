package utils

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// GetStatusDistribution returns how many attempts succeeded and failed.
// Failed statuses carry per-row error text, so they are bucketed by prefix.
func GetStatusDistribution(db *sql.DB) (map[string]int, error) {
	statusCounts := map[string]int{"Sent": 0, "Failed": 0}
	rows, err := db.Query("SELECT status, COUNT(*) FROM email_logs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to get email status distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status distribution row: %w", err)
		}
		if strings.HasPrefix(status, "Failed") {
			statusCounts["Failed"] += count
		} else {
			statusCounts["Sent"] += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over status distribution rows: %w", err)
	}
	return statusCounts, nil
}

// GetDailySends returns the number of attempts per day for the last
// 'days' days, including zero-count days.
func GetDailySends(db *sql.DB, days int) (map[string]int, error) {
	dailySends := make(map[string]int)
	today := time.Now().UTC()
	for i := 0; i < days; i++ {
		dailySends[today.AddDate(0, 0, -i).Format("2006-01-02")] = 0
	}
	since := today.AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	// Timestamps are stored as RFC3339 text; the first 10 bytes are the date.
	rows, err := db.Query(
		"SELECT substr(timestamp, 1, 10) AS log_date, COUNT(*) FROM email_logs WHERE substr(timestamp, 1, 10) >= ? GROUP BY log_date",
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily sends: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var logDate string
		var count int
		if err := rows.Scan(&logDate, &count); err != nil {
			return nil, fmt.Errorf("failed to scan daily sends row: %w", err)
		}
		dailySends[logDate] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over daily sends rows: %w", err)
	}
	return dailySends, nil
}
