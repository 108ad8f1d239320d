package events

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/redogrid/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// SocketIOEvent is the Socket.IO event name every dispatch event is emitted under.
const SocketIOEvent = "redogrid:event"

const connectTimeout = 15 * time.Second

// SocketIOOptions configures the Socket.IO publisher.
type SocketIOOptions struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
}

// SocketIO publishes events to a Socket.IO server.
type SocketIO struct {
	client *socket.Socket
}

// DialSocketIO connects to the server and waits for the connection to be
// acknowledged.
func DialSocketIO(ctx context.Context, opts SocketIOOptions) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("publisher", "socketio", "url", opts.URL)
	logger.Debug("Connecting event publisher...")

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("events URL %q must include scheme and host", opts.URL)
	}

	sopts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		sopts.SetPath(parsedURL.Path)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sopts)
	io := manager.Socket(opts.Namespace, sopts)

	io.Once(types.EventName("connect"), func(...any) {
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if err, ok := errs[0].(error); ok {
				connectChan <- err
				return
			}
		}
		connectChan <- fmt.Errorf("connect_error")
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		logger.Info("📡 Event publisher connected", "sid", io.Id())
		return &SocketIO{client: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(connectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}
}

// Publish implements Publisher.
func (s *SocketIO) Publish(ctx context.Context, ev Event) {
	logger := ctxlog.FromContext(ctx)
	if !s.client.Connected() {
		logger.Warn("Event publisher disconnected, dropping event.", "kind", ev.Kind)
		return
	}
	payload, err := toPayload(ev)
	if err != nil {
		logger.Warn("Failed to encode event.", "kind", ev.Kind, "error", err)
		return
	}
	s.client.Emit(SocketIOEvent, payload)
}

// Close disconnects from the server.
func (s *SocketIO) Close() error {
	s.client.Disconnect()
	return nil
}

// toPayload turns ev into the plain map form Socket.IO serializes.
func toPayload(ev Event) (map[string]any, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
