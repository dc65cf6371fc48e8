package services

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrUnknownSchedule is returned when cancelling a schedule that does not
// exist or has already fired.
var ErrUnknownSchedule = errors.New("unknown or already fired schedule")

var scheduleLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseScheduleTime parses an ISO-formatted timestamp. Layouts without an
// offset are interpreted in the server's local time.
func ParseScheduleTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range scheduleLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Scheduler arms one-shot deferred dispatch runs. The recipient table and
// parameters are snapshotted at schedule time, so uploads that arrive after
// scheduling cannot change what an armed run will send.
type Scheduler struct {
	dispatcher *Dispatcher

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewScheduler creates a Scheduler that hands fired runs to the dispatcher.
func NewScheduler(d *Dispatcher) *Scheduler {
	return &Scheduler{
		dispatcher: d,
		timers:     make(map[string]*time.Timer),
	}
}

// Schedule arms a dispatch at the given time and returns a schedule id
// usable with Cancel. A past timestamp fires immediately.
func (s *Scheduler) Schedule(at time.Time, recipients []Recipient, params DispatchParams) string {
	id := uuid.NewString()
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	snapshot := make([]Recipient, len(recipients))
	copy(snapshot, recipients)

	s.mu.Lock()
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()

		jobID := s.dispatcher.StartJob(snapshot, params)
		logrus.WithFields(logrus.Fields{"schedule": id, "job": jobID}).Info("Scheduled dispatch fired")
	})
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"schedule": id, "delay": delay}).Info("Dispatch scheduled")
	return id
}

// Cancel disarms a schedule that has not fired yet.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return ErrUnknownSchedule
	}
	delete(s.timers, id)
	t.Stop()
	return nil
}
