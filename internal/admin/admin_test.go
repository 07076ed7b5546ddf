package admin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/mlinzi/internal/command"
	"github.com/jkaninda/mlinzi/internal/restart"
	"github.com/jkaninda/mlinzi/internal/runner"
	"github.com/jkaninda/mlinzi/internal/sandbox"
	"github.com/jkaninda/mlinzi/internal/speedtest"
	"github.com/jkaninda/mlinzi/internal/transport/transporttest"
	"github.com/jkaninda/mlinzi/internal/update"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	res *runner.Result
	err error
	got []runner.Request
}

func (f *fakeRunner) Run(_ context.Context, req runner.Request) (*runner.Result, error) {
	f.got = append(f.got, req)
	return f.res, f.err
}

type fakeLifecycle struct {
	stops    int
	restarts []restart.Options
}

func (f *fakeLifecycle) Stop(ctx context.Context, r restart.Responder) error {
	f.stops++
	_, err := r.Respond(ctx, "Stopped")
	return err
}

func (f *fakeLifecycle) Restart(ctx context.Context, r restart.Responder, opts restart.Options) error {
	f.restarts = append(f.restarts, opts)
	_, err := r.Respond(ctx, "Restarting bot...")
	return err
}

type fakeUpdater struct {
	text   string
	err    error
	remote string
}

func (f *fakeUpdater) Update(_ context.Context, _ restart.Responder, remote string) (string, error) {
	f.remote = remote
	return f.text, f.err
}

type fakeTester struct{}

func (fakeTester) BestServer(context.Context) (speedtest.Server, error) {
	return speedtest.Server{Sponsor: "ISP", Name: "City", Latency: 10 * time.Millisecond}, nil
}
func (fakeTester) Download(context.Context) (float64, error) { return 1e6, nil }
func (fakeTester) Upload(context.Context) (float64, error)   { return 2e6, nil }

type harness struct {
	client    *transporttest.Recorder
	dispatch  *command.Dispatcher
	runner    *fakeRunner
	lifecycle *fakeLifecycle
	updater   *fakeUpdater
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		client:    transporttest.NewRecorder(),
		runner:    &fakeRunner{res: &runner.Result{}},
		lifecycle: &fakeLifecycle{},
		updater:   &fakeUpdater{},
	}
	a := New(Deps{
		Sandbox:        sandbox.New(h.runner, sandbox.Config{}, testLogger()),
		Runner:         h.runner,
		Lifecycle:      h.lifecycle,
		Updater:        h.updater,
		NewSpeedTester: func() speedtest.Tester { return fakeTester{} },
		Logger:         testLogger(),
	})
	reg := command.NewRegistry()
	if err := a.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	h.dispatch = command.NewDispatcher(reg, h.client, nil, testLogger())
	return h
}

func (h *harness) run(t *testing.T, text string) command.Result {
	t.Helper()
	res := h.dispatch.Dispatch(context.Background(), command.Incoming{ChatID: 5, MessageID: 9, SenderID: 1, Text: text})
	if !res.Matched {
		t.Fatalf("%q did not match a command", text)
	}
	return res
}

func TestSysinfo_DropsBanner(t *testing.T) {
	h := newHarness(t)
	h.runner.res = &runner.Result{Stdout: "me@host\n-------\nOS: Linux\nCPU: x\n"}

	h.run(t, "/si")

	if got := h.client.Texts(); got[0] != "Collecting system information..." {
		t.Errorf("first reply = %q", got[0])
	}
	if got := h.client.Last(); got != "```OS: Linux\nCPU: x\n```" {
		t.Errorf("reply = %q", got)
	}
	req := h.runner.got[0]
	if req.Program != "neofetch" || req.Args[0] != "--stdout" || req.Timeout != time.Minute {
		t.Errorf("request = %+v", req)
	}
}

func TestSysinfo_Failures(t *testing.T) {
	tests := []struct {
		name string
		res  *runner.Result
		err  error
		want string
	}{
		{"timeout", nil, runner.ErrTimeout, "🕑 `neofetch` failed to finish within 1 minute."},
		{"missing", nil, fmt.Errorf("%w: neofetch", runner.ErrNotFound), "❌ [neofetch](https://github.com/dylanaraps/neofetch) must be installed on the host system."},
		{"non-zero", &runner.Result{Stdout: "a\nb\nc", ExitCode: 1}, nil, "```a\nb\nc```⚠️ Return code: 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.runner.res, h.runner.err = tt.res, tt.err
			h.run(t, "/sysinfo")
			if got := h.client.Last(); got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShell_EditsProgressMessage(t *testing.T) {
	h := newHarness(t)
	h.runner.res = &runner.Result{Stdout: "file\n"}

	h.run(t, `/sh ls "my dir"`)

	events := h.client.Events()
	if len(events) != 2 || events[0].Message.Text != "Running snippet..." || events[1].Op != "edit" {
		t.Fatalf("events = %+v", events)
	}
	if !strings.HasPrefix(events[1].Message.Text, "**In:**\n```ls my dir```\n\n**Out:**\n```file\n```\nTime: ") {
		t.Errorf("report = %q", events[1].Message.Text)
	}
	if args := h.runner.got[0].Args; len(args) != 1 || args[0] != "my dir" {
		t.Errorf("args = %q", args)
	}
}

func TestShell_EmptyInput(t *testing.T) {
	for _, text := range []string{"/shell", `/sh ""`, `/sh '' -l`} {
		t.Run(text, func(t *testing.T) {
			h := newHarness(t)
			h.run(t, text)
			if got := h.client.Last(); got != "Give me code to run" {
				t.Errorf("reply = %q", got)
			}
			if len(h.runner.got) != 0 {
				t.Errorf("runner called with %+v", h.runner.got)
			}
		})
	}
}

func TestEval(t *testing.T) {
	h := newHarness(t)
	h.run(t, "/ev 6 * 7")
	if got := h.client.Last(); !strings.HasPrefix(got, "**In:**\n```6 * 7```\n\n**Out:**\n```42```") {
		t.Errorf("reply = %q", got)
	}

	h.run(t, "/eval")
	if got := h.client.Last(); got != "Give me code to evaluate." {
		t.Errorf("reply = %q", got)
	}
}

func TestSpeedtest(t *testing.T) {
	h := newHarness(t)
	h.run(t, "/st")
	if got := h.client.Last(); !strings.HasPrefix(got, "Selecting server... ISP (City)\nPing: 10.00 ms\nPerforming download test... 1.00 Mbps\nPerforming upload test... 2.00 Mbps\n") {
		t.Errorf("reply = %q", got)
	}
}

func TestStopAndRestart(t *testing.T) {
	h := newHarness(t)
	h.run(t, "/stop")
	h.run(t, "/rst")
	if h.lifecycle.stops != 1 || len(h.lifecycle.restarts) != 1 {
		t.Errorf("stops=%d restarts=%d", h.lifecycle.stops, len(h.lifecycle.restarts))
	}
	if h.lifecycle.restarts[0].Reason != "" {
		t.Errorf("restart opts = %+v", h.lifecycle.restarts[0])
	}
}

func TestUpdate_OperatorErrorIsPlainReply(t *testing.T) {
	h := newHarness(t)
	h.updater.err = &update.Error{Kind: update.ErrRemoteNotFound, Text: "__Remote__ `fork` __not found.__"}

	res := h.run(t, "/upd fork")
	if res.Err != nil {
		t.Errorf("err = %v", res.Err)
	}
	if h.updater.remote != "fork" {
		t.Errorf("remote = %q", h.updater.remote)
	}
	if got := h.client.Last(); got != "__Remote__ `fork` __not found.__" {
		t.Errorf("reply = %q", got)
	}
}

func TestHelp_ListsCommands(t *testing.T) {
	h := newHarness(t)
	h.run(t, "/help")
	got := h.client.Last()
	for _, want := range []string{"/eval [code snippet]: Evaluate Go code (aliases: ev, exec)", "/restart: Restart this bot (aliases: re, rst)", "/stop: Stop this bot"} {
		if !strings.Contains(got, want) {
			t.Errorf("help missing %q:\n%s", want, got)
		}
	}
}
