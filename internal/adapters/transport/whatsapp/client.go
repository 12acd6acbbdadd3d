// Package whatsapp adapts a whatsmeow session to ports.SendCapability. Only
// the interface boundary lives here: text delivery and connection state. The
// conversational machinery of the upstream library is not wrapped.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"whatsapp-broadcast/internal/ports"

	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// Client implements ports.SendCapability over one whatsmeow session.
type Client struct {
	sessionName string
	qrDir       string
	log         *slog.Logger

	client    *whatsmeow.Client
	container *sqlstore.Container

	mu       sync.RWMutex
	handlers []ports.ConnectionHandler
}

// New opens (or creates) the session's device store and builds the client.
// It does not connect; call Connect once handlers are registered.
func New(ctx context.Context, sessionName, sessionDir, qrDir string, log *slog.Logger) (*Client, error) {
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	dbPath := filepath.Join(sessionDir, sessionName+".db")
	dbURI := fmt.Sprintf("file:%s?_foreign_keys=on", dbPath)

	container, err := sqlstore.New(ctx, "sqlite3", dbURI, waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("get device: %w", err)
	}
	if device == nil {
		device = container.NewDevice()
		if err := container.PutDevice(ctx, device); err != nil {
			container.Close()
			return nil, fmt.Errorf("store device: %w", err)
		}
	}

	c := &Client{
		sessionName: sessionName,
		qrDir:       qrDir,
		log:         log,
		client:      whatsmeow.NewClient(device, waLog.Noop),
		container:   container,
	}
	c.client.AddEventHandler(c.handleEvent)
	return c, nil
}

// Connect brings the session online. When no device session exists yet, a
// login QR code image is written to the QR directory and Connect blocks until
// the operator scans it or ctx expires.
func (c *Client) Connect(ctx context.Context) error {
	if c.client.Store.ID != nil {
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("connect session %s: %w", c.sessionName, err)
		}
		return nil
	}

	qrChan, err := c.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get qr channel: %w", err)
	}
	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect for login: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("qr channel closed before login")
			}
			switch evt.Event {
			case "code":
				if err := c.writeQRImage(evt.Code); err != nil {
					c.log.Error("write login qr", "session", c.sessionName, "err", err)
				}
			case "success":
				c.log.Info("session logged in", "session", c.sessionName)
				return nil
			case "timeout":
				return fmt.Errorf("qr login timed out")
			}
		}
	}
}

// SendText delivers one text message to a canonical phone number.
func (c *Client) SendText(ctx context.Context, recipient, message string) (ports.DeliveryReceipt, error) {
	if recipient == "" {
		return ports.DeliveryReceipt{}, fmt.Errorf("empty recipient")
	}

	jid := types.NewJID(recipient, types.DefaultUserServer)
	msg := &waE2E.Message{Conversation: proto.String(message)}

	resp, err := c.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return ports.DeliveryReceipt{}, fmt.Errorf("send to %s: %w", recipient, err)
	}

	return ports.DeliveryReceipt{
		MessageID: string(resp.ID),
		Timestamp: resp.Timestamp.Unix(),
	}, nil
}

func (c *Client) SessionName() string { return c.sessionName }

func (c *Client) Connected() bool {
	return c.client.IsConnected() && c.client.IsLoggedIn()
}

func (c *Client) OnConnectionStateChange(handler ports.ConnectionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// Close disconnects and releases the session store.
func (c *Client) Close() {
	c.client.Disconnect()
	c.container.Close()
}

func (c *Client) handleEvent(evt interface{}) {
	switch evt.(type) {
	case *events.Connected:
		c.log.Info("transport connected", "session", c.sessionName)
		c.notify(true)
	case *events.Disconnected:
		c.log.Warn("transport disconnected", "session", c.sessionName)
		c.notify(false)
	case *events.LoggedOut:
		c.log.Warn("transport logged out", "session", c.sessionName)
		c.notify(false)
	case *events.TemporaryBan:
		c.log.Error("transport temporarily banned", "session", c.sessionName)
		c.notify(false)
	}
}

func (c *Client) notify(connected bool) {
	c.mu.RLock()
	handlers := make([]ports.ConnectionHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.RUnlock()

	for _, h := range handlers {
		h(c.sessionName, connected)
	}
}

func (c *Client) writeQRImage(code string) error {
	if err := os.MkdirAll(c.qrDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(c.qrDir, fmt.Sprintf("qr-%s.png", c.sessionName))
	if err := qrcode.WriteFile(code, qrcode.Medium, 512, path); err != nil {
		return err
	}
	c.log.Info("scan login qr", "session", c.sessionName, "path", path)
	return nil
}

var _ ports.SendCapability = (*Client)(nil)
