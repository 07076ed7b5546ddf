package speedtest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/mlinzi/internal/transport"
)

type fakeTester struct {
	downErr error
}

func (fakeTester) BestServer(context.Context) (Server, error) {
	return Server{Sponsor: "Example ISP", Name: "Kinshasa", Latency: 12340 * time.Microsecond}, nil
}

func (f fakeTester) Download(context.Context) (float64, error) {
	return 94_500_000, f.downErr
}

func (fakeTester) Upload(context.Context) (float64, error) {
	return 20_250_000, nil
}

type progress struct {
	texts []string
}

func (p *progress) Respond(_ context.Context, text string) (transport.Message, error) {
	p.texts = append(p.texts, text)
	return transport.Message{}, nil
}

func TestRun_Status(t *testing.T) {
	p := &progress{}
	got, err := Run(context.Background(), fakeTester{}, p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := "Selecting server... Example ISP (Kinshasa)\n" +
		"Ping: 12.34 ms\n" +
		"Performing download test... 94.50 Mbps\n" +
		"Performing upload test... 20.25 Mbps\n" +
		"\nTime elapsed: "
	if !strings.HasPrefix(got, want) {
		t.Errorf("status = %q, want prefix %q", got, want)
	}
	if len(p.texts) != 3 {
		t.Fatalf("progress updates = %q", p.texts)
	}
	if p.texts[0] != "Selecting server..." || !strings.HasSuffix(p.texts[2], "Performing upload test...") {
		t.Errorf("progress = %q", p.texts)
	}
}

func TestRun_PhaseError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := Run(context.Background(), fakeTester{downErr: boom}, &progress{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
