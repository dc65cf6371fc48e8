package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	to      string
	subject string
	body    string
}

type stubSession struct {
	mu     sync.Mutex
	sent   []sentMessage
	failTo map[string]error
	closed bool
}

func (s *stubSession) Send(to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failTo[to]; err != nil {
		return err
	}
	s.sent = append(s.sent, sentMessage{to: to, subject: subject, body: body})
	return nil
}

func (s *stubSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type stubSender struct {
	session *stubSession
	err     error
}

func (s *stubSender) OpenSession() (Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

type stubGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

type memEntry struct {
	recipient string
	subject   string
	status    string
}

type memLog struct {
	mu      sync.Mutex
	entries []memEntry
}

func (m *memLog) Insert(recipient, subject, status string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, memEntry{recipient: recipient, subject: subject, status: status})
	return nil
}

func (m *memLog) snapshot() []memEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]memEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

var testRecipients = []Recipient{
	{Email: "a@x.com", Name: "A"},
	{Email: "b@x.com", Name: "B"},
}

func testParams() DispatchParams {
	return DispatchParams{Subject: "S", BodyTemplate: "{name}: {content}", Prompt: "Hi {name}"}
}

// Rate high enough that throttling never matters for the test.
const unthrottled = 6_000_000

func TestDispatcherRun_LogsEveryRow(t *testing.T) {
	t.Parallel()

	session := &stubSession{}
	gen := &stubGenerator{reply: "hello"}
	logs := &memLog{}
	d := NewDispatcher(&stubSender{session: session}, gen, logs, unthrottled)

	err := d.Run(context.Background(), "", testRecipients, testParams())
	require.NoError(t, err)

	entries := logs.snapshot()
	require.Len(t, entries, 2)
	require.Equal(t, "a@x.com", entries[0].recipient)
	require.Equal(t, "b@x.com", entries[1].recipient)
	for _, e := range entries {
		require.Equal(t, "S", e.subject)
		require.Equal(t, StatusSent, e.status)
	}

	require.Equal(t, []string{"Hi A", "Hi B"}, gen.prompts)
	require.Len(t, session.sent, 2)
	require.Equal(t, "A: hello", session.sent[0].body)
	require.Equal(t, "B: hello", session.sent[1].body)
	require.True(t, session.closed)
}

func TestDispatcherRun_RowFailureContinues(t *testing.T) {
	t.Parallel()

	session := &stubSession{failTo: map[string]error{"a@x.com": errors.New("boom")}}
	logs := &memLog{}
	d := NewDispatcher(&stubSender{session: session}, &stubGenerator{reply: "hi"}, logs, unthrottled)

	err := d.Run(context.Background(), "", testRecipients, testParams())
	require.NoError(t, err)

	entries := logs.snapshot()
	require.Len(t, entries, 2)
	require.Equal(t, "Failed: boom", entries[0].status)
	require.Equal(t, StatusSent, entries[1].status)
	require.Len(t, session.sent, 1)
	require.Equal(t, "b@x.com", session.sent[0].to)
}

func TestDispatcherRun_GeneratorFailureIsRowScoped(t *testing.T) {
	t.Parallel()

	session := &stubSession{}
	logs := &memLog{}
	d := NewDispatcher(&stubSender{session: session}, &stubGenerator{err: errors.New("quota")}, logs, unthrottled)

	err := d.Run(context.Background(), "", testRecipients, testParams())
	require.NoError(t, err)

	entries := logs.snapshot()
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.True(t, strings.HasPrefix(e.status, "Failed: "))
		require.Contains(t, e.status, "quota")
	}
	require.Empty(t, session.sent)
}

func TestDispatcherRun_SessionOpenFailureIsFatal(t *testing.T) {
	t.Parallel()

	logs := &memLog{}
	d := NewDispatcher(&stubSender{err: errors.New("auth failed")}, &stubGenerator{reply: "x"}, logs, unthrottled)

	err := d.Run(context.Background(), "", testRecipients, testParams())
	require.Error(t, err)
	require.Contains(t, err.Error(), "auth failed")
	require.Empty(t, logs.snapshot())
}

func TestDispatcherRun_Throttles(t *testing.T) {
	t.Parallel()

	recipients := []Recipient{
		{Email: "a@x.com", Name: "A"},
		{Email: "b@x.com", Name: "B"},
		{Email: "c@x.com", Name: "C"},
	}
	logs := &memLog{}
	// 1200/min = 50ms between sends.
	d := NewDispatcher(&stubSender{session: &stubSession{}}, &stubGenerator{reply: "x"}, logs, 1200)

	start := time.Now()
	err := d.Run(context.Background(), "", recipients, testParams())
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	require.Len(t, logs.snapshot(), 3)
}

func TestDispatcherStartJob_ReportsStatus(t *testing.T) {
	t.Parallel()

	session := &stubSession{failTo: map[string]error{"b@x.com": errors.New("bad rcpt")}}
	logs := &memLog{}
	d := NewDispatcher(&stubSender{session: session}, &stubGenerator{reply: "x"}, logs, unthrottled)

	id := d.StartJob(testRecipients, testParams())
	require.NotEmpty(t, id)
	d.Wait()

	status, ok := d.Status(id)
	require.True(t, ok)
	require.Equal(t, 2, status.Total)
	require.Equal(t, 2, status.Done)
	require.Equal(t, 1, status.Failed)
	require.False(t, status.Running)
	require.NotNil(t, status.FinishedAt)

	_, ok = d.Status("nope")
	require.False(t, ok)
}

func TestDispatchParams_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, testParams().Validate())

	p := testParams()
	p.Prompt = ""
	require.ErrorIs(t, p.Validate(), ErrMissingFields)
}
