// Package whatsapp is the chat transport: a whatsmeow multi-device session
// stored in SQLite, with inbound message fan-out and outbound text and
// NativeFlow interactive sends.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite" // Session store driver

	"github.com/garyellow/whatsapp-commerce-bot/internal/config"
	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
)

// SessionFile is the whatsmeow device store inside DATA_DIR.
const SessionFile = "whatsapp.db"

// staleAfter drops offline backlog older than this at connect time.
const staleAfter = 2 * time.Minute

// ErrNotConnected is returned by sends while the session is down.
var ErrNotConnected = fmt.Errorf("whatsapp: %w", domerrors.ErrNotConnected)

// MessageHandler receives every accepted inbound message.
type MessageHandler func(message.Inbound)

// Client wraps a whatsmeow client.
type Client struct {
	wa        *whatsmeow.Client
	container *sqlstore.Container
	footer    string
	logger    *logger.Logger
	metrics   *metrics.Metrics
	qrOut     io.Writer

	connected  atomic.Bool
	loggedOut  atomic.Bool
	startedAt  time.Time
	handlersMu sync.RWMutex
	handlers   []MessageHandler
}

// New opens (or creates) the session store under dataDir. Pairing happens
// in Connect. m may be nil.
func New(ctx context.Context, cfg config.WhatsAppConfig, dataDir, footer string, log *logger.Logger, m *metrics.Metrics) (*Client, error) {
	log = log.WithModule("whatsapp")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := "file:" + filepath.Join(dataDir, SessionFile) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)"
	container, err := sqlstore.New(ctx, "sqlite", dsn, newWALogger(log, cfg.LogLevel, "store"))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	c := &Client{
		wa:        whatsmeow.NewClient(device, newWALogger(log, cfg.LogLevel, "client")),
		container: container,
		footer:    footer,
		logger:    log,
		metrics:   m,
		qrOut:     os.Stdout,
	}
	c.wa.EnableAutoReconnect = true
	c.wa.AddEventHandler(c.handleEvent)
	return c, nil
}

// OnMessage registers a handler. Handlers run on whatsmeow's event
// goroutine and must hand work off quickly.
func (c *Client) OnMessage(h MessageHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Connect opens the session. An unpaired device prints QR codes to the
// terminal until a phone links it or ctx ends.
func (c *Client) Connect(ctx context.Context) error {
	c.startedAt = time.Now()
	if c.wa.Store.ID != nil {
		if err := c.wa.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		return nil
	}

	qrChan, err := c.wa.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("qr channel: %w", err)
	}
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("connect for pairing: %w", err)
	}
	go c.printQRCodes(qrChan)
	return nil
}

func (c *Client) printQRCodes(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case whatsmeow.QRChannelEventCode:
			c.logger.Infof("Scan the QR code below with WhatsApp > Linked Devices")
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, c.qrOut)
		case whatsmeow.QRChannelSuccess.Event:
			c.logger.Infof("Device paired")
		case whatsmeow.QRChannelTimeout.Event:
			c.logger.Warnf("QR pairing timed out; restart to try again")
		default:
			if evt.Error != nil {
				c.logger.WithError(evt.Error).Warnf("QR pairing event %s", evt.Event)
			}
		}
	}
}

// Close disconnects and closes the session store.
func (c *Client) Close() error {
	c.wa.Disconnect()
	c.setConnected(false)
	return c.container.Close()
}

// Connected reports whether the socket is up and logged in.
func (c *Client) Connected() bool {
	return c.connected.Load() && c.wa.IsLoggedIn()
}

// Status describes the session for health reports.
func (c *Client) Status() (healthy bool, detail string) {
	switch {
	case c.loggedOut.Load():
		return false, "logged out, re-pair required"
	case c.wa.Store.ID == nil:
		return false, "waiting for pairing"
	case !c.Connected():
		return false, "disconnected"
	}
	return true, c.wa.Store.ID.User
}

// SendText implements delivery.Transport.
func (c *Client) SendText(ctx context.Context, target, text string) error {
	return c.send(ctx, target, &waE2E.Message{Conversation: proto.String(text)})
}

// SendInteractive implements delivery.Transport.
func (c *Client) SendInteractive(ctx context.Context, req message.Request) error {
	msg, err := buildInteractive(req, c.footer)
	if err != nil {
		return err
	}
	return c.send(ctx, req.Target, msg)
}

func (c *Client) send(ctx context.Context, target string, msg *waE2E.Message) error {
	jid, err := ParseTarget(target)
	if err != nil {
		return fmt.Errorf("%w: %w", domerrors.ErrTransportRejected, err)
	}
	if !c.Connected() {
		return ErrNotConnected
	}
	if _, err := c.wa.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("%w: %w", domerrors.ErrTransportRejected, err)
	}
	return nil
}

// GroupInfo reports the metadata of the group chatID.
func (c *Client) GroupInfo(ctx context.Context, chatID string) (message.GroupInfo, error) {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return message.GroupInfo{}, fmt.Errorf("parse group jid: %w", err)
	}
	if !IsGroup(jid) {
		return message.GroupInfo{}, fmt.Errorf("not a group: %s", chatID)
	}
	info, err := c.wa.GetGroupInfo(ctx, jid)
	if err != nil {
		return message.GroupInfo{}, fmt.Errorf("get group info: %w", err)
	}

	out := message.GroupInfo{
		Name:    info.Name,
		Topic:   info.Topic,
		Created: info.GroupCreated,
		OwnerID: c.phoneOf(ctx, info.OwnerJID, types.EmptyJID),
		Members: len(info.Participants),
		Locked:  info.IsLocked,
	}
	for _, p := range info.Participants {
		if p.IsAdmin || p.IsSuperAdmin {
			out.Admins++
		}
	}
	return out, nil
}

func (c *Client) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		c.handleMessage(v)
	case *events.Connected:
		c.loggedOut.Store(false)
		c.setConnected(true)
		c.recordEvent("connected")
		c.logger.Infof("Connected to WhatsApp")
	case *events.Disconnected:
		c.setConnected(false)
		c.recordEvent("disconnected")
		c.logger.Warnf("Disconnected from WhatsApp")
	case *events.LoggedOut:
		c.loggedOut.Store(true)
		c.setConnected(false)
		c.recordEvent("logged_out")
		c.logger.Errorf("Logged out by WhatsApp (reason %s); the device must be paired again", v.Reason.String())
	case *events.PairSuccess:
		c.recordEvent("paired")
		c.logger.WithField("jid", v.ID.String()).Infof("Paired as %s", v.BusinessName)
	case *events.StreamReplaced:
		c.setConnected(false)
		c.recordEvent("stream_replaced")
		c.logger.Warnf("Session opened elsewhere; this connection was replaced")
	case *events.KeepAliveTimeout:
		c.recordEvent("keepalive_timeout")
		c.logger.Warnf("Keepalive timed out (%d errors)", v.ErrorCount)
	case *events.KeepAliveRestored:
		c.recordEvent("keepalive_restored")
	}
}

func (c *Client) handleMessage(v *events.Message) {
	if v.Info.IsFromMe || v.Info.Chat == types.StatusBroadcastJID {
		return
	}
	if !c.startedAt.IsZero() && v.Info.Timestamp.Before(c.startedAt.Add(-staleAfter)) {
		return
	}
	text := extractText(v.Message)
	if text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	in := message.Inbound{
		MessageID: v.Info.ID,
		ChatID:    v.Info.Chat.ToNonAD().String(),
		SenderID:  c.phoneOf(ctx, v.Info.Sender, v.Info.SenderAlt),
		PushName:  v.Info.PushName,
		Text:      text,
		IsGroup:   v.Info.IsGroup,
		Mentioned: v.Info.IsGroup && c.mentionsMe(v.Message),
		Timestamp: v.Info.Timestamp,
	}
	if in.Mentioned {
		in.Text = stripMentions(in.Text)
	}

	c.handlersMu.RLock()
	handlers := c.handlers
	c.handlersMu.RUnlock()
	for _, h := range handlers {
		h(in)
	}
}

func (c *Client) mentionsMe(msg *waE2E.Message) bool {
	me := c.wa.Store.ID
	if me == nil {
		return false
	}
	lid := c.wa.Store.LID
	for _, raw := range msg.GetExtendedTextMessage().GetContextInfo().GetMentionedJID() {
		jid, err := types.ParseJID(raw)
		if err != nil {
			continue
		}
		if jid.User == me.User || (!lid.IsEmpty() && jid.User == lid.User) {
			return true
		}
	}
	return false
}

// phoneOf resolves a sender to its phone number. Hidden-user (LID)
// senders use the alternate JID or the session's LID map.
func (c *Client) phoneOf(ctx context.Context, jid, alt types.JID) string {
	if jid.IsEmpty() {
		return ""
	}
	if jid.Server != types.HiddenUserServer {
		return jid.User
	}
	if !alt.IsEmpty() && alt.Server == types.DefaultUserServer {
		return alt.User
	}
	if c.wa.Store.LIDs != nil {
		if pn, err := c.wa.Store.LIDs.GetPNForLID(ctx, jid); err == nil && !pn.IsEmpty() {
			return pn.User
		}
	}
	return jid.User
}

func (c *Client) setConnected(up bool) {
	c.connected.Store(up)
	if c.metrics != nil {
		c.metrics.SetWhatsAppConnected(up)
	}
}

func (c *Client) recordEvent(name string) {
	if c.metrics != nil {
		c.metrics.RecordWhatsAppEvent(name)
	}
}
