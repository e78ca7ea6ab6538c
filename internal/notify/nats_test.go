package notify

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackConn echoes every publish to the subscribed handler, the way a
// NATS server delivers a subject back to its own subscriber.
type loopbackConn struct {
	mu        sync.Mutex
	subject   string
	handler   nats.MsgHandler
	published []string
	failPub   error
	failSub   error
}

func (c *loopbackConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	c.published = append(c.published, subject)
	h := c.handler
	c.mu.Unlock()

	if c.failPub != nil {
		return c.failPub
	}
	h(&nats.Msg{Subject: subject, Data: data})
	return nil
}

func (c *loopbackConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	if c.failSub != nil {
		return nil, c.failSub
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subject = subject
	c.handler = cb
	return &nats.Subscription{Subject: subject}, nil
}

func TestNATSBridge_SubscribesToAllRooms(t *testing.T) {
	conn := &loopbackConn{}
	hub := NewHub(nil)

	_, err := NewNATSBridge(conn, hub)
	require.NoError(t, err)

	assert.Equal(t, "teamup.>", conn.subject)
	assert.NotNil(t, hub.relay)
}

func TestNATSBridge_PublishDeliversThroughSubscription(t *testing.T) {
	conn := &loopbackConn{}
	hub := NewHub(nil)
	_, err := NewNATSBridge(conn, hub)
	require.NoError(t, err)

	userID := uuid.New()
	c := &Client{hub: hub, send: make(chan []byte, 1), userID: userID, rooms: map[string]struct{}{}}
	hub.mu.Lock()
	hub.join(c, UserRoom(userID))
	hub.mu.Unlock()

	hub.Broadcast(UserRoom(userID), []byte(`{"type":"message"}`))

	assert.Equal(t, []string{"teamup.rooms.user:" + userID.String()}, conn.published)
	select {
	case frame := <-c.send:
		assert.JSONEq(t, `{"type":"message"}`, string(frame))
	default:
		t.Fatal("expected frame delivered via subscription")
	}
}

func TestNATSBridge_IgnoresForeignSubjects(t *testing.T) {
	hub := NewHub(nil)
	b := &NATSBridge{hub: hub}

	assert.NotPanics(t, func() {
		b.handle(&nats.Msg{Subject: "other.subject", Data: []byte("x")})
		b.handle(&nats.Msg{Subject: SubjectPrefix, Data: []byte("x")})
		b.handle(&nats.Msg{Subject: EvictionPrefix + "team:x", Data: []byte("not-a-uuid")})
	})
}

func TestNATSBridge_SubscribeError(t *testing.T) {
	hub := NewHub(nil)
	_, err := NewNATSBridge(&loopbackConn{failSub: errors.New("no permission")}, hub)

	require.Error(t, err)
	assert.Nil(t, hub.relay)
}

func TestNATSBridge_PublishError(t *testing.T) {
	conn := &loopbackConn{}
	hub := NewHub(nil)
	b, err := NewNATSBridge(conn, hub)
	require.NoError(t, err)

	conn.failPub = errors.New("disconnected")
	err = b.Publish("team:x", []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "team:x")
}

func TestNATSBridge_EvictionReachesLocalHub(t *testing.T) {
	conn := &loopbackConn{}
	hub := NewHub(nil)
	_, err := NewNATSBridge(conn, hub)
	require.NoError(t, err)

	room := TeamRoom(uuid.New())
	removed := &Client{hub: hub, send: make(chan []byte, 1), userID: uuid.New(), rooms: map[string]struct{}{}}
	staying := &Client{hub: hub, send: make(chan []byte, 1), userID: uuid.New(), rooms: map[string]struct{}{}}
	hub.mu.Lock()
	hub.join(removed, room)
	hub.join(staying, room)
	hub.mu.Unlock()

	hub.Evict(room, removed.userID)

	assert.Equal(t, []string{"teamup.evictions." + room}, conn.published)
	assert.Equal(t, 1, hub.RoomSize(room))
	assert.NotContains(t, removed.rooms, room)
	assert.Contains(t, staying.rooms, room)
	select {
	case frame := <-removed.send:
		assert.Contains(t, string(frame), `"type":"left"`)
	default:
		t.Fatal("expected left frame for the evicted client")
	}

	hub.Evict(room, uuid.Nil)
	assert.Equal(t, 0, hub.RoomSize(room))
}
