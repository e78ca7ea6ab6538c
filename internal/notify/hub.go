package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teamup/teamup/internal/metrics"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size.
	maxMessageSize = 4096

	// Outbound frames buffered per client before it is dropped as slow.
	sendBuffer = 64

	// Upper bound on a membership lookup for a join request.
	joinTimeout = 5 * time.Second
)

// Client frame types.
const (
	FrameJoin          = "join"
	FrameLeave         = "leave"
	FrameTeamMessage   = "team_message"
	FrameDirectMessage = "direct_message"
)

// Server frame types.
const (
	FrameEvent   = "event"
	FrameMessage = "message"
	FrameJoined  = "joined"
	FrameLeft    = "left"
	FrameError   = "error"
)

// UserRoom names the personal room every client joins on connect.
func UserRoom(id uuid.UUID) string { return "user:" + id.String() }

// TeamRoom names the room shared by connected members of a team.
func TeamRoom(id uuid.UUID) string { return "team:" + id.String() }

// MembershipChecker gates team room joins.
type MembershipChecker interface {
	IsMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error)
}

// Relay carries room frames and evictions to every hub instance, this one
// included.
type Relay interface {
	Publish(room string, frame []byte) error
	PublishEviction(room string, userID uuid.UUID) error
}

// ClientFrame is a frame sent by a connected client.
type ClientFrame struct {
	Type    string `json:"type"`
	TeamID  string `json:"teamId,omitempty"`
	UserID  string `json:"userId,omitempty"`
	Content string `json:"content,omitempty"`
}

// ServerFrame is a frame pushed to connected clients.
type ServerFrame struct {
	Type    string    `json:"type"`
	Room    string    `json:"room,omitempty"`
	From    string    `json:"from,omitempty"`
	Content string    `json:"content,omitempty"`
	Event   *Event    `json:"event,omitempty"`
	Error   string    `json:"error,omitempty"`
	SentAt  time.Time `json:"sentAt"`
}

// Hub tracks connected clients by room and fans frames out to them. It
// implements Notifier.
type Hub struct {
	members MembershipChecker

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	relay Relay
}

// NewHub creates a Hub that consults members before admitting a client to a
// team room.
func NewHub(members MembershipChecker) *Hub {
	return &Hub{
		members: members,
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// SetRelay routes outbound frames through r instead of delivering locally.
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay = r
}

// Notify pushes ev to the team room and to each addressed user room. Removed
// members are then evicted from the team room, and an archived team's room is
// emptied.
func (h *Hub) Notify(_ context.Context, ev Event) {
	frame, err := json.Marshal(ServerFrame{Type: FrameEvent, Event: &ev, SentAt: ev.OccurredAt})
	if err != nil {
		slog.Error("failed to encode event frame", "type", string(ev.Type), "error", err)
		return
	}

	room := TeamRoom(ev.TeamID)
	h.Broadcast(room, frame)
	for _, id := range ev.UserIDs {
		h.Broadcast(UserRoom(id), frame)
	}

	switch ev.Type {
	case EventMemberRemoved:
		for _, id := range ev.UserIDs {
			h.Evict(room, id)
		}
	case EventTeamArchived:
		h.Evict(room, uuid.Nil)
	}
}

// Evict removes userID's clients from room on every instance, through the
// relay when one is set. uuid.Nil evicts every client in the room.
func (h *Hub) Evict(room string, userID uuid.UUID) {
	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()

	if relay != nil {
		err := relay.PublishEviction(room, userID)
		if err == nil {
			return
		}
		slog.Warn("relay eviction failed, evicting locally", "room", room, "error", err)
	}
	h.Expel(room, userID)
}

// Expel removes the local clients of userID (all clients for uuid.Nil) from
// room and sends each a left frame.
func (h *Hub) Expel(room string, userID uuid.UUID) {
	var expelled []*Client

	h.mu.Lock()
	for c := range h.rooms[room] {
		if userID == uuid.Nil || c.userID == userID {
			expelled = append(expelled, c)
		}
	}
	for _, c := range expelled {
		h.leave(c, room)
	}
	h.mu.Unlock()

	for _, c := range expelled {
		slog.Debug("websocket client evicted", "userId", c.userID, "room", room)
		c.reply(ServerFrame{Type: FrameLeft, Room: room})
	}
}

// Broadcast sends frame to room, through the relay when one is set.
func (h *Hub) Broadcast(room string, frame []byte) {
	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()

	if relay != nil {
		err := relay.Publish(room, frame)
		if err == nil {
			return
		}
		slog.Warn("relay publish failed, delivering locally", "room", room, "error", err)
	}
	h.Deliver(room, frame)
}

// Deliver writes frame to every local client in room. Clients whose send
// buffer is full are disconnected.
func (h *Hub) Deliver(room string, frame []byte) {
	var slow []*Client

	h.mu.RLock()
	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("dropping slow websocket client", "userId", c.userID, "room", room)
		h.unregister(c)
	}
}

// RoomSize reports how many local clients are in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Attach registers conn for userID, joins its user room and starts the
// read and write pumps. The hub owns conn from here on.
func (h *Hub) Attach(conn *websocket.Conn, userID uuid.UUID) *Client {
	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
		rooms:  make(map[string]struct{}),
	}

	h.mu.Lock()
	h.join(c, UserRoom(userID))
	h.mu.Unlock()
	metrics.WSConnected(1)
	slog.Debug("websocket client connected", "userId", userID)

	go c.writePump()
	go c.readPump()
	return c
}

// join must be called with h.mu held.
func (h *Hub) join(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// leave must be called with h.mu held.
func (h *Hub) leave(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	for room := range c.rooms {
		h.leave(c, room)
	}
	c.closed = true
	close(c.send)
	metrics.WSConnected(-1)
	slog.Debug("websocket client disconnected", "userId", c.userID)
}

func (h *Hub) inRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// Client is one websocket connection. Room membership and closed are guarded
// by the hub mutex.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
	rooms  map[string]struct{}
	closed bool
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read failed", "userId", c.userID, "error", err)
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.reply(ServerFrame{Type: FrameError, Error: "malformed frame"})
			continue
		}
		c.handle(frame)
	}
}

func (c *Client) handle(frame ClientFrame) {
	switch frame.Type {
	case FrameJoin:
		teamID, err := uuid.Parse(frame.TeamID)
		if err != nil {
			c.reply(ServerFrame{Type: FrameError, Error: "invalid teamId"})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		ok, err := c.hub.members.IsMember(ctx, teamID, c.userID)
		cancel()
		if err != nil {
			slog.Error("membership check failed", "teamId", teamID, "userId", c.userID, "error", err)
			c.reply(ServerFrame{Type: FrameError, Error: "membership check failed"})
			return
		}
		if !ok {
			c.reply(ServerFrame{Type: FrameError, Error: "not a member of this team"})
			return
		}
		room := TeamRoom(teamID)
		c.hub.mu.Lock()
		if !c.closed {
			c.hub.join(c, room)
		}
		c.hub.mu.Unlock()
		c.reply(ServerFrame{Type: FrameJoined, Room: room})

	case FrameLeave:
		teamID, err := uuid.Parse(frame.TeamID)
		if err != nil {
			c.reply(ServerFrame{Type: FrameError, Error: "invalid teamId"})
			return
		}
		room := TeamRoom(teamID)
		c.hub.mu.Lock()
		c.hub.leave(c, room)
		c.hub.mu.Unlock()
		c.reply(ServerFrame{Type: FrameLeft, Room: room})

	case FrameTeamMessage:
		teamID, err := uuid.Parse(frame.TeamID)
		if err != nil {
			c.reply(ServerFrame{Type: FrameError, Error: "invalid teamId"})
			return
		}
		room := TeamRoom(teamID)
		if !c.hub.inRoom(c, room) {
			c.reply(ServerFrame{Type: FrameError, Error: "join the team room first"})
			return
		}
		c.broadcast(room, frame.Content)

	case FrameDirectMessage:
		target, err := uuid.Parse(frame.UserID)
		if err != nil {
			c.reply(ServerFrame{Type: FrameError, Error: "invalid userId"})
			return
		}
		c.broadcast(UserRoom(target), frame.Content)

	default:
		c.reply(ServerFrame{Type: FrameError, Error: "unknown frame type"})
	}
}

func (c *Client) broadcast(room, content string) {
	data, err := json.Marshal(ServerFrame{
		Type:    FrameMessage,
		Room:    room,
		From:    c.userID.String(),
		Content: content,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		slog.Error("failed to encode message frame", "error", err)
		return
	}
	c.hub.Broadcast(room, data)
}

// reply queues a frame for this client only.
func (c *Client) reply(frame ServerFrame) {
	if frame.SentAt.IsZero() {
		frame.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
