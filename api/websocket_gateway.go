package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/peerprep/collab/internal/slogging"
)

var (
	errSendBufferFull   = errors.New("send buffer full")
	errConnectionClosed = errors.New("connection closed")
)

// GatewayOptions tune the websocket transport.
type GatewayOptions struct {
	ReadLimitBytes int64
	SendBufferSize int
	PongWait       time.Duration
	WriteWait      time.Duration
}

// DefaultGatewayOptions returns sensible transport defaults.
func DefaultGatewayOptions() GatewayOptions {
	return GatewayOptions{
		ReadLimitBytes: 65536,
		SendBufferSize: 256,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
	}
}

// Upgrader upgrades HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; restrict in production
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Gateway terminates client websocket connections, parses inbound
// protocol messages and dispatches them to the session engine. It never
// closes a connection over a bad message; every failure is answered with
// an advisory ERROR reply.
type Gateway struct {
	manager     *SessionManager
	broadcaster *Broadcaster
	opts        GatewayOptions
}

// NewGateway creates the websocket boundary.
func NewGateway(manager *SessionManager, broadcaster *Broadcaster, opts GatewayOptions) *Gateway {
	return &Gateway{
		manager:     manager,
		broadcaster: broadcaster,
		opts:        opts,
	}
}

// HandleWS upgrades the request and runs the connection pumps.
func (g *Gateway) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slogging.Get().Warn("failed to upgrade connection: %v", err)
		return
	}

	client := &wsClient{
		gateway: g,
		conn:    conn,
		send:    make(chan []byte, g.opts.SendBufferSize),
	}

	go client.writePump()
	go client.readPump()
}

// wsClient is one connected socket. It implements Connection so it can be
// attached to a Participant: Send is a non-blocking push into the send
// buffer drained by writePump, so a slow client never stalls a fan-out.
type wsClient struct {
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte

	mu        sync.Mutex
	closed    bool
	sessionID string
	userID    string
}

// Send queues an outbound frame. A full buffer or closed connection is an
// error the broadcaster swallows.
func (c *wsClient) Send(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnectionClosed
	}

	select {
	case c.send <- message:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close shuts the send channel. Idempotent. writePump drains whatever is
// still queued, writes the close frame and closes the socket, so frames
// broadcast just before teardown still reach the client.
func (c *wsClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

// context returns the authenticated session/user pair, if any.
func (c *wsClient) context() (sessionID, userID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID, c.userID, c.sessionID != ""
}

func (c *wsClient) setContext(sessionID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
	c.userID = userID
}

// readPump pumps messages from the socket into the engine.
func (c *wsClient) readPump() {
	defer func() {
		if sessionID, userID, ok := c.context(); ok {
			c.gateway.manager.HandleDisconnect(sessionID, userID)
		}
		_ = c.Close()
	}()

	c.conn.SetReadLimit(c.gateway.opts.ReadLimitBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.gateway.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.gateway.opts.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slogging.Get().Debug("websocket read error: %v", err)
			}
			return
		}

		c.gateway.dispatch(c, message)
	}
}

// writePump pumps queued frames to the socket and keeps the connection
// alive with pings.
func (c *wsClient) writePump() {
	pingPeriod := c.gateway.opts.PongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.gateway.opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.gateway.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply serializes an envelope straight to this connection.
func (c *wsClient) reply(msg Envelope) {
	data, err := json.Marshal(msg)
	if err != nil {
		slogging.Get().Error("failed to marshal %s reply: %v", msg.Type, err)
		return
	}
	if err := c.Send(data); err != nil {
		slogging.Get().Debug("failed to queue %s reply: %v", msg.Type, err)
	}
}

func (c *wsClient) replyError(message string) {
	c.reply(Envelope{Type: MessageTypeError, Payload: ErrorPayload{Message: message}})
}

// dispatch routes one inbound frame. The message set is closed; anything
// unknown or malformed gets an ERROR reply and the connection stays open.
func (g *Gateway) dispatch(c *wsClient, raw []byte) {
	msg, err := ParseClientMessage(raw)
	if err != nil {
		c.replyError(err.Error())
		return
	}

	switch m := msg.(type) {
	case *AuthenticateRequest:
		g.handleAuthenticate(c, m)
	case *OperationRequest:
		g.handleOperation(c, m)
	case *CursorUpdateRequest:
		g.handleCursorUpdate(c, m)
	case *QuestionProposalRequest:
		g.handleQuestionProposal(c, m)
	case *QuestionResponseRequest:
		g.handleQuestionResponse(c, m)
	case *EndSessionRequest:
		g.handleEndSessionRequest(c)
	case *EndSessionCancelRequest:
		g.handleEndSessionCancel(c)
	case *HeartbeatRequest:
		c.reply(Envelope{Type: MessageTypeHeartbeatAck})
	}
}

// handleAuthenticate joins the user to the session, or reattaches a
// returning participant inside the grace window.
func (g *Gateway) handleAuthenticate(c *wsClient, m *AuthenticateRequest) {
	session := g.manager.GetSession(m.SessionID)
	if session == nil {
		c.replyError(ErrSessionNotFound.Error())
		return
	}

	rejoining := session.HasParticipant(m.UserID)
	if rejoining {
		if err := g.manager.HandleReconnect(m.SessionID, m.UserID, c); err != nil {
			c.replyError(err.Error())
			return
		}
	} else {
		if _, _, err := g.manager.RegisterParticipant(m.SessionID, m.UserID, m.Username, c); err != nil {
			c.replyError(err.Error())
			return
		}
	}

	c.setContext(m.SessionID, m.UserID)

	c.reply(Envelope{Type: MessageTypeAuthenticated, Payload: session.Summary()})

	if !rejoining {
		g.broadcaster.BroadcastToOthers(session, m.UserID, Envelope{
			Type:    MessageTypePartnerJoined,
			Payload: PartnerPayload{UserID: m.UserID, Username: m.Username},
		})
	}
}

func (g *Gateway) handleOperation(c *wsClient, m *OperationRequest) {
	session, userID, ok := g.authenticatedSession(c)
	if !ok {
		return
	}

	if _, err := session.ApplyOperation(userID, m.Operation.ToOperation()); err != nil {
		c.replyError(err.Error())
	}
}

func (g *Gateway) handleCursorUpdate(c *wsClient, m *CursorUpdateRequest) {
	session, userID, ok := g.authenticatedSession(c)
	if !ok {
		return
	}

	g.broadcaster.BroadcastToOthers(session, userID, Envelope{
		Type: MessageTypeCursorUpdated,
		Payload: CursorUpdatedPayload{
			UserID:    userID,
			Cursor:    m.Cursor,
			Selection: m.Selection,
		},
	})
}

func (g *Gateway) handleQuestionProposal(c *wsClient, m *QuestionProposalRequest) {
	session, userID, ok := g.authenticatedSession(c)
	if !ok {
		return
	}

	result, err := session.RequestQuestionChange(userID, m.Question)
	if err != nil {
		c.replyError(err.Error())
		return
	}
	c.reply(Envelope{Type: MessageTypeQuestionChangeStatus, Payload: result})
}

func (g *Gateway) handleQuestionResponse(c *wsClient, m *QuestionResponseRequest) {
	session, userID, ok := g.authenticatedSession(c)
	if !ok {
		return
	}

	if m.Accepted {
		result, err := session.RequestQuestionChange(userID, m.Question)
		if err != nil {
			c.replyError(err.Error())
			return
		}
		c.reply(Envelope{Type: MessageTypeQuestionChangeStatus, Payload: result})
		return
	}

	result := session.RejectQuestionChange(userID)
	c.reply(Envelope{Type: MessageTypeQuestionChangeStatus, Payload: result})
}

func (g *Gateway) handleEndSessionRequest(c *wsClient) {
	session, userID, ok := g.authenticatedSession(c)
	if !ok {
		return
	}

	result := session.RequestSessionEnd(userID)
	c.reply(Envelope{Type: MessageTypeSessionEndStatus, Payload: result})

	if result.Status == StatusEnded {
		g.manager.CloseSession(session.ID())
	}
}

func (g *Gateway) handleEndSessionCancel(c *wsClient) {
	session, userID, ok := g.authenticatedSession(c)
	if !ok {
		return
	}

	session.CancelSessionEndRequest(userID)
	c.reply(Envelope{Type: MessageTypeSessionEndStatus, Payload: SessionEndStatus{Status: StatusCancelled}})
}

// authenticatedSession resolves the client's session, answering ERROR for
// unauthenticated clients and sessions that are already gone.
func (g *Gateway) authenticatedSession(c *wsClient) (*CollaborationSession, string, bool) {
	sessionID, userID, ok := c.context()
	if !ok {
		c.replyError("unauthenticated")
		return nil, "", false
	}

	session := g.manager.GetSession(sessionID)
	if session == nil {
		c.replyError(ErrSessionNotFound.Error())
		return nil, "", false
	}

	return session, userID, true
}
