package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mymmrac/telego"

	"github.com/jkaninda/mlinzi/internal/command"
	"github.com/jkaninda/mlinzi/internal/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBot struct {
	nextID  int
	sent    []*telego.SendMessageParams
	edits   []*telego.EditMessageTextParams
	sendErr []error // consumed in order
	editErr []error
	chatErr error
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (b *fakeBot) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	b.sent = append(b.sent, p)
	if err := pop(&b.sendErr); err != nil {
		return nil, err
	}
	b.nextID++
	return &telego.Message{MessageID: b.nextID, Chat: telego.Chat{ID: p.ChatID.ID}, Text: p.Text}, nil
}

func (b *fakeBot) EditMessageText(_ context.Context, p *telego.EditMessageTextParams) (*telego.Message, error) {
	b.edits = append(b.edits, p)
	if err := pop(&b.editErr); err != nil {
		return nil, err
	}
	return &telego.Message{MessageID: p.MessageID, Text: p.Text}, nil
}

func (b *fakeBot) GetChat(_ context.Context, p *telego.GetChatParams) (*telego.ChatFullInfo, error) {
	if b.chatErr != nil {
		return nil, b.chatErr
	}
	return &telego.ChatFullInfo{ID: p.ChatID.ID}, nil
}

func TestClient_SendUsesHTML(t *testing.T) {
	bot := &fakeBot{}
	c := &Client{bot: bot, logger: testLogger()}

	msg, err := c.SendMessage(context.Background(), 10, "**bold**")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ChatID != 10 || msg.ID != 1 || msg.Text != "**bold**" {
		t.Errorf("msg = %+v", msg)
	}
	if bot.sent[0].ParseMode != telego.ModeHTML || bot.sent[0].Text != "<b>bold</b>" {
		t.Errorf("params = %+v", bot.sent[0])
	}
}

func TestClient_SendFallsBackToPlain(t *testing.T) {
	bot := &fakeBot{sendErr: []error{errors.New("Bad Request: can't parse entities")}}
	c := &Client{bot: bot, logger: testLogger()}

	if _, err := c.SendMessage(context.Background(), 1, "**x**"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(bot.sent) != 2 || bot.sent[1].ParseMode != "" || bot.sent[1].Text != "**x**" {
		t.Errorf("sent = %+v", bot.sent)
	}
}

func TestClient_EditNotModifiedIsSuccess(t *testing.T) {
	bot := &fakeBot{editErr: []error{errors.New("Bad Request: message is not modified")}}
	c := &Client{bot: bot, logger: testLogger()}

	msg, err := c.EditOrReplaceMessage(context.Background(), 1, 7, "same")
	if err != nil {
		t.Fatalf("EditOrReplaceMessage: %v", err)
	}
	if msg.ID != 7 || len(bot.edits) != 1 || len(bot.sent) != 0 {
		t.Errorf("msg=%+v edits=%d sent=%d", msg, len(bot.edits), len(bot.sent))
	}
}

func TestClient_EditFailureSendsNew(t *testing.T) {
	bot := &fakeBot{editErr: []error{
		errors.New("Bad Request: message to edit not found"),
		errors.New("Bad Request: message to edit not found"),
	}}
	c := &Client{bot: bot, logger: testLogger()}

	msg, err := c.EditOrReplaceMessage(context.Background(), 1, 7, "Bot restarted in 3 sec.")
	if err != nil {
		t.Fatalf("EditOrReplaceMessage: %v", err)
	}
	if msg.ID != 1 || len(bot.sent) != 1 {
		t.Errorf("msg=%+v sent=%d, want a new message", msg, len(bot.sent))
	}
}

func TestClient_FetchMessage(t *testing.T) {
	c := &Client{bot: &fakeBot{}, logger: testLogger()}
	msg, err := c.FetchMessage(context.Background(), 3, 4)
	if err != nil || msg.ChatID != 3 || msg.ID != 4 {
		t.Fatalf("FetchMessage = %+v, %v", msg, err)
	}

	c = &Client{bot: &fakeBot{chatErr: errors.New("chat not found")}, logger: testLogger()}
	if _, err := c.FetchMessage(context.Background(), 3, 4); err == nil {
		t.Fatal("expected error")
	}
}

type recordingHandler struct {
	got []command.Incoming
}

func (h *recordingHandler) Dispatch(_ context.Context, in command.Incoming) command.Result {
	h.got = append(h.got, in)
	return command.Result{Matched: true}
}

func TestGateway_AllowlistIsSilent(t *testing.T) {
	bot := &fakeBot{}
	h := &recordingHandler{}
	g := &Gateway{
		client:  &Client{bot: bot, logger: testLogger()},
		handler: h,
		logger:  testLogger(),
		allowed: map[int64]bool{42: true},
	}

	g.handleMessage(context.Background(), telego.Message{
		MessageID: 1, Chat: telego.Chat{ID: 5}, From: &telego.User{ID: 99}, Text: "/restart",
	})
	if len(h.got) != 0 || len(bot.sent) != 0 {
		t.Fatalf("stranger was served: handler=%d sent=%d", len(h.got), len(bot.sent))
	}

	g.handleMessage(context.Background(), telego.Message{
		MessageID: 2, Chat: telego.Chat{ID: 5}, From: &telego.User{ID: 42}, Text: "/restart",
	})
	if len(h.got) != 1 || h.got[0] != (command.Incoming{ChatID: 5, MessageID: 2, SenderID: 42, Text: "/restart"}) {
		t.Fatalf("handler got %+v", h.got)
	}
}

func TestGateway_RateLimited(t *testing.T) {
	bot := &fakeBot{}
	h := &recordingHandler{}
	g := &Gateway{
		client:  &Client{bot: bot, logger: testLogger()},
		handler: h,
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 1}),
		logger:  testLogger(),
		allowed: map[int64]bool{42: true},
	}
	msg := telego.Message{Chat: telego.Chat{ID: 5}, From: &telego.User{ID: 42}, Text: "/sysinfo"}

	g.handleMessage(context.Background(), msg)
	g.handleMessage(context.Background(), msg)

	if len(h.got) != 1 {
		t.Errorf("handled %d messages, want 1", len(h.got))
	}
	if len(bot.sent) != 1 {
		t.Errorf("sent %d notices, want 1", len(bot.sent))
	}
}

func TestTelegoLogger_RedactsToken(t *testing.T) {
	l := telegoLogger{logger: testLogger(), token: "123:secret"}
	if got := l.redact("POST https://api.telegram.org/bot%s/getMe", []any{"123:secret"}); got != "POST https://api.telegram.org/botBOT_TOKEN/getMe" {
		t.Errorf("redact = %q", got)
	}
}
