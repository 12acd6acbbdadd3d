// Package dryrun is a log-only SendCapability for rehearsing a campaign
// without touching WhatsApp. Runs through it should be flagged as test
// campaigns so recovery never resumes them against the real transport.
package dryrun

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"whatsapp-broadcast/internal/ports"

	"github.com/google/uuid"
)

// Client implements ports.SendCapability by logging each send.
type Client struct {
	sessionName string
	log         *slog.Logger

	mu       sync.Mutex
	handlers []ports.ConnectionHandler
	sent     []string
}

func New(sessionName string, log *slog.Logger) *Client {
	return &Client{sessionName: sessionName, log: log}
}

func (c *Client) SendText(ctx context.Context, recipient, message string) (ports.DeliveryReceipt, error) {
	if err := ctx.Err(); err != nil {
		return ports.DeliveryReceipt{}, err
	}

	c.mu.Lock()
	c.sent = append(c.sent, recipient)
	c.mu.Unlock()

	c.log.Info("dry-run send", "session", c.sessionName, "to", recipient, "len", len(message))
	return ports.DeliveryReceipt{
		MessageID: uuid.NewString(),
		Timestamp: time.Now().Unix(),
	}, nil
}

func (c *Client) SessionName() string { return c.sessionName }

func (c *Client) Connected() bool { return true }

func (c *Client) OnConnectionStateChange(handler ports.ConnectionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// Sent returns the recipients delivered so far, oldest first.
func (c *Client) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

var _ ports.SendCapability = (*Client)(nil)
