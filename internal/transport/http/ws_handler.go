package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"live-session-service/internal/app"
	"live-session-service/internal/domain"
)

const (
	maxMessageSize = 16 * 1024
	leaveTimeout   = 5 * time.Second
)

type WSOptions struct {
	OutboxSize     int
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
	Logger         *zap.Logger
}

type WSHandler struct {
	service  *app.SessionService
	upgrader websocket.Upgrader
	opts     WSOptions
	logger   *zap.Logger
	newID    func() string
}

func NewWSHandler(service *app.SessionService, opts WSOptions) *WSHandler {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 256
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &WSHandler{
		service: service,
		opts:    opts,
		logger:  opts.Logger,
		newID:   uuid.NewString,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

type inboundMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type createPayload struct {
	PresentationID string          `json:"presentationId"`
	Settings       domain.Settings `json:"settings"`
	Teams          []domain.Team   `json:"teams"`
}

type resumeHostPayload struct {
	Code    string `json:"code"`
	HostKey string `json:"hostKey"`
}

type joinPayload struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Team          string `json:"team"`
	ParticipantID string `json:"participantId"`
}

type submitPayload struct {
	SessionCode string          `json:"sessionCode"`
	SlideID     string          `json:"slideId"`
	Answer      json.RawMessage `json:"answer"`
	TimeSpent   int64           `json:"timeSpent"`
}

type reactionPayload struct {
	SessionCode string `json:"sessionCode"`
	Emoji       string `json:"emoji"`
}

type endPayload struct {
	SessionCode string `json:"sessionCode"`
}

type nextPayload struct {
	SlideIndex *int `json:"slideIndex"`
}

var hostCommands = map[string]app.CommandKind{
	"session:start":   app.CmdStart,
	"session:pause":   app.CmdPause,
	"session:resume":  app.CmdResume,
	"question:show":   app.CmdShow,
	"question:lock":   app.CmdLock,
	"question:reveal": app.CmdReveal,
	"question:next":   app.CmdNext,
	"scores:reset":    app.CmdResetScores,
}

// wsConn is the read loop's view of one socket. Only the read loop touches code and host.
type wsConn struct {
	id         string
	code       string
	host       bool
	attach     chan app.Outbox
	direct     chan domain.Event
	stop       chan struct{}
	writerDone chan struct{}
}

func (c *wsConn) bound() bool { return c.code != "" }

func (c *wsConn) bind(code string, host bool, outbox app.Outbox) {
	c.code = code
	c.host = host
	c.attach <- outbox
}

func (c *wsConn) send(ev domain.Event) {
	select {
	case c.direct <- ev:
	case <-c.writerDone:
	}
}

// ServeWS upgrades the request and pumps events between the socket and the session it binds to.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c := &wsConn{
		id:         h.newID(),
		attach:     make(chan app.Outbox, 1),
		direct:     make(chan domain.Event, 16),
		stop:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	logger := h.logger.With(zap.String("conn_id", c.id))
	logger.Debug("ws connected", zap.String("remote_addr", r.RemoteAddr))

	go h.writeLoop(conn, c, logger)

	conn.SetReadLimit(maxMessageSize)
	readWait := h.opts.PingInterval + h.opts.PongTimeout
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	left := false
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("ws read failed", zap.Error(err))
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		err := h.dispatch(r.Context(), c, msg)
		if err != nil {
			logger.Debug("ws event rejected", zap.String("event", msg.Event), zap.String("session_code", c.code), zap.Error(err))
			c.send(domain.Event{Name: "error", Payload: toErrorPayload(err)})
			continue
		}
		if msg.Event == "leave-session" {
			left = true
		}
	}

	close(c.stop)
	<-c.writerDone

	if c.bound() && !left {
		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		_ = h.service.Leave(ctx, c.code, c.id, app.DetachLost)
	}
	logger.Debug("ws disconnected", zap.String("session_code", c.code))
}

func (h *WSHandler) writeLoop(conn *websocket.Conn, c *wsConn, logger *zap.Logger) {
	defer close(c.writerDone)
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	// nil until the connection binds to a session
	var outbox app.Outbox
	for {
		select {
		case ob := <-c.attach:
			outbox = ob
		case ev, ok := <-outbox:
			if !ok {
				// The session dropped us: left, too slow, or ended.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(h.opts.WriteTimeout))
				return
			}
			if err := h.write(conn, ev); err != nil {
				logger.Debug("ws write failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		case ev := <-c.direct:
			if err := h.write(conn, ev); err != nil {
				logger.Debug("ws write failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				_ = conn.Close()
				return
			}
		case <-c.stop:
			return
		}
	}
}

func (h *WSHandler) write(conn *websocket.Conn, ev domain.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
	return conn.WriteJSON(ev)
}

func (h *WSHandler) dispatch(ctx context.Context, c *wsConn, msg inboundMessage) error {
	switch msg.Event {
	case "ping":
		c.send(domain.Event{Name: "pong", Payload: msg.Payload})
		return nil

	case "create-session":
		if c.bound() {
			return errAlreadyBound
		}
		var p createPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		outbox := make(app.Outbox, h.opts.OutboxSize)
		created, err := h.service.CreateSession(ctx, app.CreateRequest{
			PresentationID: p.PresentationID,
			Settings:       p.Settings,
			Teams:          p.Teams,
			ConnID:         c.id,
			Outbox:         outbox,
		})
		if err != nil {
			return err
		}
		c.bind(created.Code, true, outbox)
		return nil

	case "resume-host":
		if c.bound() {
			return errAlreadyBound
		}
		var p resumeHostPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		outbox := make(app.Outbox, h.opts.OutboxSize)
		if _, err := h.service.ResumeHost(ctx, p.Code, p.HostKey, c.id, outbox); err != nil {
			return err
		}
		c.bind(p.Code, true, outbox)
		return nil

	case "join-session":
		if c.bound() {
			return errAlreadyBound
		}
		var p joinPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		outbox := make(app.Outbox, h.opts.OutboxSize)
		_, err := h.service.JoinSession(ctx, strings.TrimSpace(p.Code), app.JoinRequest{
			Name:          p.Name,
			TeamID:        p.Team,
			ParticipantID: p.ParticipantID,
			ConnID:        c.id,
			Outbox:        outbox,
		})
		if err != nil {
			return err
		}
		c.bind(strings.TrimSpace(p.Code), false, outbox)
		return nil

	case "submit-answer":
		var p submitPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		if err := c.checkCode(p.SessionCode); err != nil {
			return err
		}
		answer, err := decodeAnswer(p.Answer)
		if err != nil {
			return err
		}
		_, err = h.service.SubmitAnswer(ctx, c.code, c.id, app.Submission{
			SlideID:     p.SlideID,
			Payload:     answer,
			TimeSpentMs: p.TimeSpent,
		})
		return err

	case "send-reaction":
		var p reactionPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		if err := c.checkCode(p.SessionCode); err != nil {
			return err
		}
		return h.service.SendReaction(ctx, c.code, c.id, p.Emoji)

	case "leave-session":
		if !c.bound() {
			return errNotBound
		}
		return h.service.Leave(ctx, c.code, c.id, app.DetachLeft)

	case "end-session":
		var p endPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		if err := c.checkCode(p.SessionCode); err != nil {
			return err
		}
		return h.service.EndSession(ctx, c.code, c.id)
	}

	kind, ok := hostCommands[msg.Event]
	if !ok {
		return fmt.Errorf("%w: unsupported event %q", domain.ErrInvalidRequest, msg.Event)
	}
	if !c.bound() {
		return errNotBound
	}
	cmd := app.Command{Kind: kind}
	if kind == app.CmdNext {
		var p nextPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		cmd.SlideIndex = p.SlideIndex
	}
	_, err := h.service.HostCommand(ctx, c.code, c.id, cmd)
	return err
}

var (
	errAlreadyBound = fmt.Errorf("%w: connection already bound to a session", domain.ErrInvalidRequest)
	errNotBound     = fmt.Errorf("%w: join a session first", domain.ErrInvalidRequest)
)

func (c *wsConn) checkCode(code string) error {
	if !c.bound() {
		return errNotBound
	}
	if code != "" && code != c.code {
		return fmt.Errorf("%w: connection is bound to another session", domain.ErrInvalidRequest)
	}
	return nil
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

// decodeAnswer accepts the full payload object or a bare option id.
func decodeAnswer(raw json.RawMessage) (domain.AnswerPayload, error) {
	var optionID string
	if err := json.Unmarshal(raw, &optionID); err == nil {
		return domain.AnswerPayload{OptionIDs: []string{optionID}}, nil
	}
	var answer domain.AnswerPayload
	if err := json.Unmarshal(raw, &answer); err != nil {
		return domain.AnswerPayload{}, fmt.Errorf("%w: %v", domain.ErrInvalidAnswer, err)
	}
	return answer, nil
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
