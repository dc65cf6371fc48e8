package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// StatusSent marks a successful attempt in the log store.
	StatusSent = "Sent"
	// failurePrefix precedes the error text of a failed attempt.
	failurePrefix = "Failed: "
)

var (
	// ErrNoUpload is returned when dispatch is attempted before any upload.
	ErrNoUpload = errors.New("no CSV data found, please upload a CSV file first")
	// ErrMissingFields is returned when a dispatch request omits a template.
	ErrMissingFields = errors.New("fields 'subject', 'bodyTemplate' and 'prompt' are required")
)

// DispatchParams are the caller-supplied templates for one batch.
// The prompt may contain {name}; the body template {name} and {content}.
type DispatchParams struct {
	Subject      string `json:"subject"`
	BodyTemplate string `json:"bodyTemplate"`
	Prompt       string `json:"prompt"`
	UploadID     string `json:"upload_id,omitempty"`
}

// Validate rejects requests up front instead of failing row by row.
func (p DispatchParams) Validate() error {
	if p.Subject == "" || p.BodyTemplate == "" || p.Prompt == "" {
		return ErrMissingFields
	}
	return nil
}

// AttemptLog records one row per send attempt.
type AttemptLog interface {
	Insert(recipientEmail, subject, status string, at time.Time) error
}

// JobStatus is the progress of one dispatch job.
type JobStatus struct {
	ID         string     `json:"id"`
	Total      int        `json:"total"`
	Done       int        `json:"done"`
	Failed     int        `json:"failed"`
	Running    bool       `json:"running"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Dispatcher runs throttled bulk-send batches: one relay session per batch,
// one generation call and one log row per recipient, rows strictly in table
// order.
type Dispatcher struct {
	sender    Sender
	generator ContentGenerator
	logs      AttemptLog
	limit     rate.Limit

	statusMu sync.Mutex
	status   map[string]*JobStatus

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher throttled to maxPerMinute sends.
func NewDispatcher(sender Sender, generator ContentGenerator, logs AttemptLog, maxPerMinute int) *Dispatcher {
	if maxPerMinute <= 0 {
		maxPerMinute = 10
	}
	return &Dispatcher{
		sender:    sender,
		generator: generator,
		logs:      logs,
		limit:     rate.Limit(float64(maxPerMinute) / 60.0),
		status:    make(map[string]*JobStatus),
	}
}

// StartJob runs one batch in the background and returns its job id
// immediately, so the triggering request is not held open for the whole
// batch duration.
func (d *Dispatcher) StartJob(recipients []Recipient, params DispatchParams) string {
	id := uuid.NewString()
	d.statusMu.Lock()
	d.status[id] = &JobStatus{ID: id, Total: len(recipients)}
	d.statusMu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.Run(context.Background(), id, recipients, params); err != nil {
			logrus.WithError(err).WithField("job", id).Error("Dispatch job failed")
		}
	}()
	return id
}

// Status returns a copy of the job's progress.
func (d *Dispatcher) Status(id string) (JobStatus, bool) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	st, ok := d.status[id]
	if !ok {
		return JobStatus{}, false
	}
	return *st, true
}

// Wait blocks until every started job has finished. Used during shutdown
// and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Run executes one dispatch invocation synchronously. A session open or
// login failure is fatal to the whole batch and writes no log rows; any
// per-row failure is recorded as "Failed: <error>" and the loop continues
// with the next recipient.
func (d *Dispatcher) Run(ctx context.Context, id string, recipients []Recipient, params DispatchParams) error {
	start := time.Now()
	session, err := d.sender.OpenSession()
	if err != nil {
		err = fmt.Errorf("failed to open mail session: %w", err)
		d.finish(id, err)
		return err
	}
	defer session.Close()

	d.setRunning(id)
	logrus.WithFields(logrus.Fields{"job": id, "total": len(recipients)}).Info("Dispatch started")

	limiter := rate.NewLimiter(d.limit, 1)
	for _, rcpt := range recipients {
		if err := limiter.Wait(ctx); err != nil {
			d.finish(id, err)
			return err
		}

		status := StatusSent
		if err := d.sendOne(ctx, session, rcpt, params); err != nil {
			status = failurePrefix + err.Error()
			d.markFailed(id)
			logrus.WithError(err).WithFields(logrus.Fields{"job": id, "recipient": rcpt.Email}).Warn("Send failed")
		}
		if logErr := d.logs.Insert(rcpt.Email, params.Subject, status, time.Now()); logErr != nil {
			logrus.WithError(logErr).Error("CRITICAL: failed to log email attempt")
		}
		d.markDone(id)
	}

	d.finish(id, nil)
	logrus.WithFields(logrus.Fields{"job": id, "dur": time.Since(start)}).Info("Dispatch finished")
	return nil
}

func (d *Dispatcher) sendOne(ctx context.Context, session Session, rcpt Recipient, params DispatchParams) error {
	prompt := strings.ReplaceAll(params.Prompt, "{name}", rcpt.Name)
	content, err := d.generator.Generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("failed to generate content: %w", err)
	}

	body := strings.ReplaceAll(params.BodyTemplate, "{name}", rcpt.Name)
	body = strings.ReplaceAll(body, "{content}", content)
	return session.Send(rcpt.Email, params.Subject, body)
}

func (d *Dispatcher) setRunning(id string) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	if st := d.status[id]; st != nil {
		st.Running = true
		st.StartedAt = time.Now()
	}
}

func (d *Dispatcher) markDone(id string) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	if st := d.status[id]; st != nil {
		st.Done++
	}
}

func (d *Dispatcher) markFailed(id string) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	if st := d.status[id]; st != nil {
		st.Failed++
	}
}

func (d *Dispatcher) finish(id string, err error) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	if st := d.status[id]; st != nil {
		now := time.Now()
		st.Running = false
		st.FinishedAt = &now
		if err != nil {
			st.Error = err.Error()
		}
	}
}
