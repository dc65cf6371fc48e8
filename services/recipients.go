package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recipient is one row parsed from an uploaded CSV file.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ParseRecipients reads a CSV file with a header row and returns its data
// rows in file order. The header must contain "email" and "name" columns.
func ParseRecipients(r io.Reader) ([]Recipient, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	emailIdx, nameIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "email":
			emailIdx = i
		case "name":
			nameIdx = i
		}
	}
	if emailIdx < 0 || nameIdx < 0 {
		return nil, fmt.Errorf("csv header must contain 'email' and 'name' columns")
	}

	recipients := make([]Recipient, 0)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		recipients = append(recipients, Recipient{
			Email: strings.TrimSpace(record[emailIdx]),
			Name:  strings.TrimSpace(record[nameIdx]),
		})
	}
	return recipients, nil
}

// Upload is one ingested recipient table. Uploads are immutable once stored;
// each upload gets its own id so a dispatch can name exactly the table it
// wants instead of racing on a shared slot.
type Upload struct {
	ID         string      `json:"id"`
	Recipients []Recipient `json:"recipients"`
	CreatedAt  time.Time   `json:"created_at"`
}

// UploadStore holds ingested tables in memory for the process lifetime.
type UploadStore struct {
	mu      sync.RWMutex
	uploads map[string]*Upload
	latest  string
}

// NewUploadStore creates an empty UploadStore.
func NewUploadStore() *UploadStore {
	return &UploadStore{uploads: make(map[string]*Upload)}
}

// Put stores a new upload and marks it as the most recent one.
func (s *UploadStore) Put(recipients []Recipient) *Upload {
	up := &Upload{
		ID:         uuid.NewString(),
		Recipients: recipients,
		CreatedAt:  time.Now(),
	}
	s.mu.Lock()
	s.uploads[up.ID] = up
	s.latest = up.ID
	s.mu.Unlock()
	return up
}

// Get returns the upload with the given id, or the most recent upload when
// id is empty. The second return value is false if nothing matches.
func (s *UploadStore) Get(id string) (*Upload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == "" {
		id = s.latest
	}
	up, ok := s.uploads[id]
	return up, ok
}
