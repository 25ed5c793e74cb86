// Package reportsink publishes runner reports to a socket.io endpoint, so
// that a dashboard can follow runs as they finish.
package reportsink

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/npurunner/internal/ctxlog"
)

const (
	DefaultEvent       = "report"
	DefaultDialTimeout = 15 * time.Second
)

// Sink receives serialized reports.
type Sink interface {
	Publish(ctx context.Context, report string) error
	Close() error
}

// Config describes the socket.io endpoint.
type Config struct {
	URL                string
	Namespace          string
	Event              string
	InsecureSkipVerify bool
	DialTimeout        time.Duration
}

// SocketIO is a Sink emitting every report as one socket.io event.
type SocketIO struct {
	io     *socket.Socket
	event  string
	logger *slog.Logger
}

// Dial connects to the endpoint and waits for the connection to be
// established.
func Dial(ctx context.Context, cfg Config) (*SocketIO, error) {
	if cfg.Event == "" {
		cfg.Event = DefaultEvent
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	logger := ctxlog.FromContext(ctx).With("sink", "socketio", "url", cfg.URL)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("report URL %q needs a scheme and a host", cfg.URL)
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected report sink.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		logger.Debug("Report sink connection failed.", "error", err)
		connectChan <- err
	})

	logger.Debug("Connecting report sink...")
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketIO{io: io, event: cfg.Event, logger: logger}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(cfg.DialTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for socket.io connection", cfg.DialTimeout)
	}
}

// payload decodes a JSON report so that it is emitted as a structured
// object rather than a string.
func payload(report string) (any, error) {
	var data any
	if err := json.Unmarshal([]byte(report), &data); err != nil {
		return nil, fmt.Errorf("report is not valid JSON: %w", err)
	}
	return data, nil
}

func (s *SocketIO) Publish(ctx context.Context, report string) error {
	if !s.io.Connected() {
		return fmt.Errorf("report sink is not connected")
	}
	data, err := payload(report)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Debug("Publishing report.", "event", s.event, "bytes", len(report))
	s.io.Emit(s.event, data)
	return nil
}

func (s *SocketIO) Close() error {
	s.logger.Debug("Closing report sink.", "sid", s.io.Id())
	s.io.Disconnect()
	return nil
}
