package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// SubjectPrefix namespaces room frames on the NATS bus.
	SubjectPrefix = "teamup.rooms."

	// EvictionPrefix namespaces room evictions. The payload is the evicted
	// user id, or the nil uuid for the whole room.
	EvictionPrefix = "teamup.evictions."

	// subjectRoot covers both namespaces with one subscription so that an
	// eviction is never handled before the frames published ahead of it.
	subjectRoot = "teamup."
)

// natsConn is the subset of *nats.Conn used by the bridge.
type natsConn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// NATSBridge relays room frames and evictions across hub instances. Every
// frame is published on SubjectPrefix+room and every eviction on
// EvictionPrefix+room; the bridge subscribes to both and applies incoming
// messages to the local hub.
type NATSBridge struct {
	conn natsConn
	hub  *Hub
	sub  *nats.Subscription
}

// ConnectNATS dials the NATS server with reconnects enabled.
func ConnectNATS(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("teamup"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}

// NewNATSBridge subscribes to every room and eviction subject and installs
// itself as the hub's relay.
func NewNATSBridge(conn natsConn, hub *Hub) (*NATSBridge, error) {
	b := &NATSBridge{conn: conn, hub: hub}

	sub, err := conn.Subscribe(subjectRoot+">", b.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe to room subjects: %w", err)
	}
	b.sub = sub
	hub.SetRelay(b)
	return b, nil
}

// Publish sends frame to every instance serving room.
func (b *NATSBridge) Publish(room string, frame []byte) error {
	if err := b.conn.Publish(SubjectPrefix+room, frame); err != nil {
		return fmt.Errorf("publish to %s: %w", room, err)
	}
	return nil
}

// PublishEviction tells every instance to drop userID's clients from room.
func (b *NATSBridge) PublishEviction(room string, userID uuid.UUID) error {
	if err := b.conn.Publish(EvictionPrefix+room, []byte(userID.String())); err != nil {
		return fmt.Errorf("publish eviction for %s: %w", room, err)
	}
	return nil
}

func (b *NATSBridge) handle(msg *nats.Msg) {
	if room, ok := strings.CutPrefix(msg.Subject, SubjectPrefix); ok {
		if room != "" {
			b.hub.Deliver(room, msg.Data)
		}
		return
	}
	if room, ok := strings.CutPrefix(msg.Subject, EvictionPrefix); ok && room != "" {
		userID, err := uuid.ParseBytes(msg.Data)
		if err != nil {
			slog.Warn("malformed eviction", "subject", msg.Subject, "error", err)
			return
		}
		b.hub.Expel(room, userID)
	}
}

// Close detaches the bridge from the hub and stops the subscription.
func (b *NATSBridge) Close() error {
	b.hub.SetRelay(nil)
	if err := b.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}
