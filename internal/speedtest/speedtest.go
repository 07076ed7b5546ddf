// Package speedtest measures the host's network throughput against the
// nearest speedtest.net server and reports progress as it goes.
package speedtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/showwin/speedtest-go/speedtest"

	"github.com/jkaninda/mlinzi/internal/timeutil"
	"github.com/jkaninda/mlinzi/internal/transport"
)

// Server is the selected test server.
type Server struct {
	Sponsor string
	Name    string
	Latency time.Duration
}

// Tester performs the three phases of a speed test. Download and Upload
// report bits per second and run against the server chosen by BestServer.
type Tester interface {
	BestServer(ctx context.Context) (Server, error)
	Download(ctx context.Context) (float64, error)
	Upload(ctx context.Context) (float64, error)
}

// Progress receives the growing status text.
type Progress interface {
	Respond(ctx context.Context, text string) (transport.Message, error)
}

// Run executes a full test, publishing the status after each phase, and
// returns the final status.
func Run(ctx context.Context, t Tester, p Progress) (string, error) {
	start := time.Now()
	var status strings.Builder

	status.WriteString("Selecting server...")
	if _, err := p.Respond(ctx, status.String()); err != nil {
		return "", err
	}
	server, err := t.BestServer(ctx)
	if err != nil {
		return "", fmt.Errorf("selecting speedtest server: %w", err)
	}
	fmt.Fprintf(&status, " %s (%s)\n", server.Sponsor, server.Name)
	fmt.Fprintf(&status, "Ping: %.2f ms\n", float64(server.Latency)/float64(time.Millisecond))

	status.WriteString("Performing download test...")
	if _, err := p.Respond(ctx, status.String()); err != nil {
		return "", err
	}
	down, err := t.Download(ctx)
	if err != nil {
		return "", fmt.Errorf("download test: %w", err)
	}
	fmt.Fprintf(&status, " %.2f Mbps\n", down/1000/1000)

	status.WriteString("Performing upload test...")
	if _, err := p.Respond(ctx, status.String()); err != nil {
		return "", err
	}
	up, err := t.Upload(ctx)
	if err != nil {
		return "", fmt.Errorf("upload test: %w", err)
	}
	fmt.Fprintf(&status, " %.2f Mbps\n", up/1000/1000)

	fmt.Fprintf(&status, "\nTime elapsed: %s", timeutil.FormatDuration(time.Since(start)))
	return status.String(), nil
}

// Client runs tests through speedtest.net.
type Client struct {
	st     *speedtest.Speedtest
	server *speedtest.Server
}

// NewClient creates a Client. Each Run needs a fresh Client.
func NewClient() *Client {
	return &Client{st: speedtest.New()}
}

func (c *Client) BestServer(ctx context.Context) (Server, error) {
	servers, err := c.st.FetchServerListContext(ctx)
	if err != nil {
		return Server{}, fmt.Errorf("fetching server list: %w", err)
	}
	targets, err := servers.FindServer(nil)
	if err != nil {
		return Server{}, fmt.Errorf("finding server: %w", err)
	}
	if len(targets) == 0 {
		return Server{}, errors.New("no speedtest server available")
	}
	s := targets[0]
	if err := s.PingTestContext(ctx, func(time.Duration) {}); err != nil {
		return Server{}, fmt.Errorf("ping test: %w", err)
	}
	c.server = s
	return Server{Sponsor: s.Sponsor, Name: s.Name, Latency: s.Latency}, nil
}

func (c *Client) Download(ctx context.Context) (float64, error) {
	if c.server == nil {
		return 0, errors.New("no server selected")
	}
	if err := c.server.DownloadTestContext(ctx); err != nil {
		return 0, err
	}
	return float64(c.server.DLSpeed) * 8, nil
}

func (c *Client) Upload(ctx context.Context) (float64, error) {
	if c.server == nil {
		return 0, errors.New("no server selected")
	}
	if err := c.server.UploadTestContext(ctx); err != nil {
		return 0, err
	}
	return float64(c.server.ULSpeed) * 8, nil
}
