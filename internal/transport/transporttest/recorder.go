// Package transporttest provides an in-memory transport.Client for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/jkaninda/mlinzi/internal/transport"
)

// Event is one call observed by a Recorder.
type Event struct {
	Op      string // "send" or "edit"
	Message transport.Message
}

// Recorder is a transport.Client that keeps every message in memory.
// Message ids are assigned sequentially starting at 1.
type Recorder struct {
	mu       sync.Mutex
	nextID   int64
	messages map[[2]int64]transport.Message
	events   []Event

	// SendErr and EditErr, when set, are returned by the matching calls.
	SendErr error
	EditErr error
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{messages: make(map[[2]int64]transport.Message)}
}

func (r *Recorder) SendMessage(_ context.Context, chatID int64, text string) (transport.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SendErr != nil {
		return transport.Message{}, r.SendErr
	}
	r.nextID++
	msg := transport.Message{ChatID: chatID, ID: r.nextID, Text: text}
	r.messages[[2]int64{chatID, msg.ID}] = msg
	r.events = append(r.events, Event{Op: "send", Message: msg})
	return msg, nil
}

func (r *Recorder) EditOrReplaceMessage(ctx context.Context, chatID, messageID int64, text string) (transport.Message, error) {
	r.mu.Lock()
	if r.EditErr != nil {
		defer r.mu.Unlock()
		return transport.Message{}, r.EditErr
	}
	key := [2]int64{chatID, messageID}
	if _, ok := r.messages[key]; !ok {
		r.mu.Unlock()
		return r.SendMessage(ctx, chatID, text)
	}
	defer r.mu.Unlock()
	msg := transport.Message{ChatID: chatID, ID: messageID, Text: text}
	r.messages[key] = msg
	r.events = append(r.events, Event{Op: "edit", Message: msg})
	return msg, nil
}

func (r *Recorder) FetchMessage(_ context.Context, chatID, messageID int64) (transport.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[[2]int64{chatID, messageID}]
	if !ok {
		return transport.Message{}, fmt.Errorf("message %d not found in chat %d", messageID, chatID)
	}
	return msg, nil
}

// Seed stores a message as if it had been sent earlier, e.g. by a previous
// process.
func (r *Recorder) Seed(msg transport.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[[2]int64{msg.ChatID, msg.ID}] = msg
	if msg.ID > r.nextID {
		r.nextID = msg.ID
	}
}

// Events returns a copy of all observed sends and edits.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Texts returns the text of every send and edit, in order.
func (r *Recorder) Texts() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Message.Text
	}
	return out
}

// Last returns the text of the most recent send or edit.
func (r *Recorder) Last() string {
	events := r.Events()
	if len(events) == 0 {
		return ""
	}
	return events[len(events)-1].Message.Text
}

// Message returns the current state of a message.
func (r *Recorder) Message(chatID, messageID int64) (transport.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[[2]int64{chatID, messageID}]
	return msg, ok
}

var _ transport.Client = (*Recorder)(nil)
