package restart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jkaninda/mlinzi/internal/transport"
)

// --- fakes ---

type fakeResponder struct {
	chatID  int64
	msgID   int64
	replies []string
}

func (f *fakeResponder) Respond(_ context.Context, text string) (transport.Message, error) {
	f.replies = append(f.replies, text)
	return transport.Message{ChatID: f.chatID, ID: f.msgID, Text: text}, nil
}

type fakeProcess struct {
	manual  bool
	stopped int
}

func (p *fakeProcess) MarkManualStop() { p.manual = true }
func (p *fakeProcess) RequestStop()    { p.stopped++ }

type fakeClient struct {
	mu       sync.Mutex
	fetchErr error
	editErr  error
	fetched  []int64
	edits    []transport.Message
}

func (c *fakeClient) SendMessage(_ context.Context, chatID int64, text string) (transport.Message, error) {
	return transport.Message{ChatID: chatID, ID: 1, Text: text}, nil
}

func (c *fakeClient) EditOrReplaceMessage(_ context.Context, chatID, messageID int64, text string) (transport.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editErr != nil {
		return transport.Message{}, c.editErr
	}
	m := transport.Message{ChatID: chatID, ID: messageID, Text: text}
	c.edits = append(c.edits, m)
	return m, nil
}

func (c *fakeClient) FetchMessage(_ context.Context, chatID, messageID int64) (transport.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchErr != nil {
		return transport.Message{}, c.fetchErr
	}
	c.fetched = append(c.fetched, messageID)
	return transport.Message{ChatID: chatID, ID: messageID}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(docs DocumentStore, client transport.Client, proc Process) *Coordinator {
	return NewCoordinator(NewStateStore(docs, 100), client, proc, nil, testLogger())
}

// --- Restart ---

func TestCoordinator_RestartPersistsRecord(t *testing.T) {
	ctx := context.Background()
	docs := NewMemoryStore()
	proc := &fakeProcess{}
	c := newTestCoordinator(docs, &fakeClient{}, proc)
	resp := &fakeResponder{chatID: 555, msgID: 12}

	before := time.Now().UnixMicro()
	if err := c.Restart(ctx, resp, Options{}); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	after := time.Now().UnixMicro()

	if len(resp.replies) != 1 || resp.replies[0] != "Restarting bot..." {
		t.Errorf("replies = %q", resp.replies)
	}
	if !c.Pending() {
		t.Error("Pending() = false after restart")
	}
	if !proc.manual || proc.stopped != 1 {
		t.Errorf("process manual=%v stopped=%d, want true/1", proc.manual, proc.stopped)
	}

	doc, _ := docs.FindOne(ctx, 100)
	if doc == nil || len(doc.Records) != 1 {
		t.Fatalf("stored document = %+v, want one record", doc)
	}
	rec := doc.Records[0]
	if rec.StatusChatID != 555 || rec.StatusMessageID != 12 || rec.Reason != ReasonManual {
		t.Errorf("record = %+v", rec)
	}
	if rec.ScheduledAtMicros < before || rec.ScheduledAtMicros > after {
		t.Errorf("ScheduledAtMicros = %d, want within [%d, %d]", rec.ScheduledAtMicros, before, after)
	}
}

func TestCoordinator_RestartUsesSuppliedTimeAndReason(t *testing.T) {
	ctx := context.Background()
	docs := NewMemoryStore()
	c := newTestCoordinator(docs, &fakeClient{}, &fakeProcess{})

	at := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)
	if err := c.Restart(ctx, &fakeResponder{chatID: 1, msgID: 2}, Options{At: at, Reason: ReasonUpdate}); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	doc, _ := docs.FindOne(ctx, 100)
	rec := doc.Records[0]
	if rec.ScheduledAtMicros != at.UnixMicro() {
		t.Errorf("ScheduledAtMicros = %d, want %d", rec.ScheduledAtMicros, at.UnixMicro())
	}
	if rec.Reason != ReasonUpdate {
		t.Errorf("Reason = %q, want update", rec.Reason)
	}
}

type brokenStore struct{ MemoryStore }

func (b *brokenStore) AppendToSet(context.Context, int64, Record) error {
	return errors.New("store unavailable")
}

func TestCoordinator_RestartStoreFailureDoesNotStop(t *testing.T) {
	proc := &fakeProcess{}
	c := newTestCoordinator(&brokenStore{}, &fakeClient{}, proc)

	err := c.Restart(context.Background(), &fakeResponder{chatID: 1, msgID: 1}, Options{})
	if err == nil {
		t.Fatal("expected error from broken store")
	}
	if c.Pending() || proc.stopped != 0 {
		t.Errorf("pending=%v stopped=%d after failed persist, want false/0", c.Pending(), proc.stopped)
	}
}

// --- Stop ---

func TestCoordinator_StopDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	docs := NewMemoryStore()
	proc := &fakeProcess{}
	c := newTestCoordinator(docs, &fakeClient{}, proc)
	resp := &fakeResponder{chatID: 1, msgID: 1}

	if err := c.Stop(ctx, resp); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if strings.Join(resp.replies, "|") != "Stopping bot...|Stopped" {
		t.Errorf("replies = %q", resp.replies)
	}
	if c.Pending() {
		t.Error("Pending() = true after stop")
	}
	if !proc.manual || proc.stopped != 1 {
		t.Errorf("process manual=%v stopped=%d", proc.manual, proc.stopped)
	}
	if doc, _ := docs.FindOne(ctx, 100); doc != nil {
		t.Errorf("stop persisted %+v", doc)
	}
}

// --- Resume ---

func TestCoordinator_ResumeReportsElapsed(t *testing.T) {
	ctx := context.Background()
	docs := NewMemoryStore()
	client := &fakeClient{}
	c := newTestCoordinator(docs, client, &fakeProcess{})

	scheduled := time.Now().Add(-90 * time.Second)
	_ = docs.AppendToSet(ctx, 100, Record{StatusChatID: 7, StatusMessageID: 8, ScheduledAtMicros: scheduled.UnixMicro(), Reason: ReasonManual})

	resumeAt := time.Now()
	c.now = func() time.Time { return resumeAt }

	got, err := c.Resume(ctx)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got == nil {
		t.Fatal("Resume returned nil, want report")
	}
	want := resumeAt.Sub(time.UnixMicro(scheduled.UnixMicro()))
	if diff := got.Elapsed - want; diff < -time.Microsecond || diff > time.Microsecond {
		t.Errorf("Elapsed = %v, want %v", got.Elapsed, want)
	}
	if got.Text != "Bot restarted in 1m 30s." {
		t.Errorf("Text = %q", got.Text)
	}
	if len(client.edits) != 1 || client.edits[0].ChatID != 7 || client.edits[0].ID != 8 {
		t.Fatalf("edits = %+v", client.edits)
	}
	if doc, _ := docs.FindOne(ctx, 100); doc != nil {
		t.Error("restart state not cleared")
	}
}

func TestCoordinator_ResumeUpdateQualifier(t *testing.T) {
	ctx := context.Background()
	docs := NewMemoryStore()
	c := newTestCoordinator(docs, &fakeClient{}, &fakeProcess{})

	now := time.Now()
	c.now = func() time.Time { return now }
	_ = docs.AppendToSet(ctx, 100, Record{StatusChatID: 1, StatusMessageID: 2, ScheduledAtMicros: now.Add(-5 * time.Second).UnixMicro(), Reason: ReasonUpdate})

	got, err := c.Resume(ctx)
	if err != nil || got == nil {
		t.Fatalf("Resume = (%v, %v)", got, err)
	}
	if got.Text != "Bot updated and restarted in 5 sec." {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestCoordinator_ResumeNothingPending(t *testing.T) {
	client := &fakeClient{}
	c := newTestCoordinator(NewMemoryStore(), client, &fakeProcess{})

	got, err := c.Resume(context.Background())
	if err != nil || got != nil {
		t.Fatalf("Resume = (%v, %v), want (nil, nil)", got, err)
	}
	if len(client.fetched) != 0 || len(client.edits) != 0 {
		t.Error("transport used with nothing pending")
	}
}

func TestCoordinator_ResumeMissingReferenceClearsState(t *testing.T) {
	ctx := context.Background()
	docs := NewMemoryStore()
	client := &fakeClient{}
	c := newTestCoordinator(docs, client, &fakeProcess{})
	_ = docs.AppendToSet(ctx, 100, Record{ScheduledAtMicros: 1, Reason: ReasonManual})

	got, err := c.Resume(ctx)
	if err != nil || got != nil {
		t.Fatalf("Resume = (%v, %v), want (nil, nil)", got, err)
	}
	if len(client.fetched) != 0 {
		t.Error("fetched a message for a record without reference")
	}
	if doc, _ := docs.FindOne(ctx, 100); doc != nil {
		t.Error("restart state not cleared")
	}
}

func TestCoordinator_ResumeTransportFailureIsNotRetried(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"fetch fails", &fakeClient{fetchErr: errors.New("message not found")}},
		{"edit fails", &fakeClient{editErr: errors.New("forbidden")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			docs := NewMemoryStore()
			c := newTestCoordinator(docs, tt.client, &fakeProcess{})
			_ = docs.AppendToSet(ctx, 100, Record{StatusChatID: 1, StatusMessageID: 2, ScheduledAtMicros: time.Now().UnixMicro(), Reason: ReasonManual})

			got, err := c.Resume(ctx)
			if err != nil {
				t.Fatalf("Resume: %v", err)
			}
			if got == nil {
				t.Fatal("Resume returned nil, want report")
			}
			if doc, _ := docs.FindOne(ctx, 100); doc != nil {
				t.Error("state must be cleared before the transport is touched")
			}

			again, err := c.Resume(ctx)
			if err != nil || again != nil {
				t.Errorf("second Resume = (%v, %v), want (nil, nil)", again, err)
			}
		})
	}
}

func TestCoordinator_RestartThenResumeAcrossInstances(t *testing.T) {
	ctx := context.Background()
	docs := NewMemoryStore()
	client := &fakeClient{}

	first := newTestCoordinator(docs, client, &fakeProcess{})
	if err := first.Restart(ctx, &fakeResponder{chatID: 31, msgID: 41}, Options{}); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	second := newTestCoordinator(docs, client, &fakeProcess{})
	if second.Pending() {
		t.Error("pending flag leaked into new instance")
	}
	got, err := second.Resume(ctx)
	if err != nil || got == nil {
		t.Fatalf("Resume = (%v, %v)", got, err)
	}
	if got.Record.StatusChatID != 31 || got.Record.StatusMessageID != 41 {
		t.Errorf("resumed record = %+v", got.Record)
	}
}
