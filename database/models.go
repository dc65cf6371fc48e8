package database

import "time"

// EmailLog represents a row in the email_logs table, one per send attempt.
type EmailLog struct {
	ID             int       `json:"id"`
	RecipientEmail string    `json:"recipient_email"`
	Subject        string    `json:"subject"`
	Status         string    `json:"status"` // "Sent", or "Failed: <error>"
	Timestamp      time.Time `json:"timestamp"`
}
