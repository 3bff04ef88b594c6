package app

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"live-session-service/internal/domain"
)

const (
	inboxSize      = 64
	effectsSize    = 256
	effectTimeout  = 5 * time.Second
	hostReactorTag = "Host"
)

// Outbox receives the events addressed to one connection. The session closes it
// once it stops delivering: on leave, when the connection falls behind, or when the session ends.
type Outbox chan domain.Event

// DetachReason tells the session why a connection went away.
type DetachReason int

const (
	// DetachLost means the transport dropped; the participant is expected back.
	DetachLost DetachReason = iota
	// DetachLeft means the participant left on purpose.
	DetachLeft
)

// EventPublisher mirrors room broadcasts to observers outside this process.
type EventPublisher interface {
	Publish(ctx context.Context, code string, event domain.Event) error
}

// LeaderboardMirror keeps an external copy of the full ranking.
type LeaderboardMirror interface {
	StoreLeaderboard(ctx context.Context, code string, entries []domain.LeaderboardEntry) error
}

// HistoryRecorder persists the summary of an ended session.
type HistoryRecorder interface {
	RecordSession(ctx context.Context, summary domain.SessionSummary) error
}

// Hooks are side effects the session runs off its loop, in the order they were triggered.
type Hooks struct {
	Publisher    EventPublisher
	Leaderboards LeaderboardMirror
	Recorders    []HistoryRecorder
}

type JoinRequest struct {
	Name          string
	TeamID        string
	ParticipantID string
	ConnID        string
	Outbox        Outbox
}

type JoinResult struct {
	Participant domain.Participant
	Snapshot    domain.Snapshot
	Resumed     bool
}

type Submission struct {
	SlideID     string
	Payload     domain.AnswerPayload
	TimeSpentMs int64
}

type AnswerReceipt struct {
	SlideID      string `json:"slideId"`
	IsCorrect    bool   `json:"isCorrect"`
	PointsEarned int    `json:"pointsEarned"`
	Score        int    `json:"score"`
	Rank         int    `json:"rank"`
}

type sessionConfig struct {
	code          string
	hostKey       string
	presentation  domain.Presentation
	settings      domain.Settings
	teams         []domain.Team
	serverURL     string
	idleTimeout   time.Duration
	reactionRate  rate.Limit
	reactionBurst int
	hooks         Hooks
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string
	onRelease     func(code string)
}

type result[T any] struct {
	val T
	err error
}

type sessionMsg interface{ isSessionMsg() }

type attachHostMsg struct {
	connID  string
	hostKey string
	outbox  Outbox
	created bool
	reply   chan<- result[domain.Snapshot]
}

type joinMsg struct {
	req   JoinRequest
	reply chan<- result[JoinResult]
}

type submitMsg struct {
	connID string
	sub    Submission
	reply  chan<- result[AnswerReceipt]
}

type commandMsg struct {
	connID string
	cmd    Command
	reply  chan<- result[Cursor]
}

type reactionMsg struct {
	connID string
	emoji  string
	reply  chan<- result[struct{}]
}

type detachMsg struct {
	connID string
	reason DetachReason
	reply  chan<- result[struct{}]
}

type viewMsg struct {
	reply chan<- result[domain.Snapshot]
}

type leaderboardMsg struct {
	reply chan<- result[[]domain.LeaderboardEntry]
}

type shutdownMsg struct {
	reply chan<- result[struct{}]
}

func (attachHostMsg) isSessionMsg()  {}
func (joinMsg) isSessionMsg()        {}
func (submitMsg) isSessionMsg()      {}
func (commandMsg) isSessionMsg()     {}
func (reactionMsg) isSessionMsg()    {}
func (detachMsg) isSessionMsg()      {}
func (viewMsg) isSessionMsg()        {}
func (leaderboardMsg) isSessionMsg() {}
func (shutdownMsg) isSessionMsg()    {}

type effect struct {
	name string
	run  func(ctx context.Context) error
}

// Session is the single owner of one room's state. Every mutation happens on
// its loop goroutine, in the order messages reach the inbox.
type Session struct {
	code    string
	hostKey string
	cfg     sessionConfig
	logger  *zap.Logger
	nav     NavigationPolicy
	created time.Time

	inbox   chan sessionMsg
	done    chan struct{}
	effects chan effect

	cursor       Cursor
	participants map[string]*domain.Participant
	answers      map[string]map[string]domain.Answer
	board        []domain.LeaderboardEntry
	presence     *presence
	conns        map[string]Outbox
	limiters     map[string]*rate.Limiter
	dropped      []string
	idle         *time.Timer
	released     bool
}

func newSession(cfg sessionConfig) *Session {
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	nav := SequentialNavigation
	if cfg.settings.AllowRandomNavigation {
		nav = RandomNavigation
	}

	s := &Session{
		code:         cfg.code,
		hostKey:      cfg.hostKey,
		cfg:          cfg,
		logger:       cfg.logger.With(zap.String("session_code", cfg.code)),
		nav:          nav,
		created:      cfg.now(),
		inbox:        make(chan sessionMsg, inboxSize),
		done:         make(chan struct{}),
		effects:      make(chan effect, effectsSize),
		cursor:       Cursor{Status: domain.StatusWaiting},
		participants: make(map[string]*domain.Participant),
		answers:      make(map[string]map[string]domain.Answer),
		presence:     newPresence(),
		conns:        make(map[string]Outbox),
		limiters:     make(map[string]*rate.Limiter),
	}

	go s.runEffects()
	go s.loop()
	return s
}

// Code returns the session's join code.
func (s *Session) Code() string { return s.code }

// Done is closed once the session has released its code.
func (s *Session) Done() <-chan struct{} { return s.done }

// Shutdown closes every connection and releases the session without ending it.
func (s *Session) Shutdown(ctx context.Context) error {
	_, err := ask(ctx, s, func(reply chan<- result[struct{}]) sessionMsg {
		return shutdownMsg{reply: reply}
	})
	return err
}

func (s *Session) attachHost(ctx context.Context, connID, hostKey string, outbox Outbox, created bool) (domain.Snapshot, error) {
	return ask(ctx, s, func(reply chan<- result[domain.Snapshot]) sessionMsg {
		return attachHostMsg{connID: connID, hostKey: hostKey, outbox: outbox, created: created, reply: reply}
	})
}

func (s *Session) join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	return ask(ctx, s, func(reply chan<- result[JoinResult]) sessionMsg {
		return joinMsg{req: req, reply: reply}
	})
}

func (s *Session) submit(ctx context.Context, connID string, sub Submission) (AnswerReceipt, error) {
	return ask(ctx, s, func(reply chan<- result[AnswerReceipt]) sessionMsg {
		return submitMsg{connID: connID, sub: sub, reply: reply}
	})
}

func (s *Session) command(ctx context.Context, connID string, cmd Command) (Cursor, error) {
	return ask(ctx, s, func(reply chan<- result[Cursor]) sessionMsg {
		return commandMsg{connID: connID, cmd: cmd, reply: reply}
	})
}

func (s *Session) react(ctx context.Context, connID, emoji string) error {
	_, err := ask(ctx, s, func(reply chan<- result[struct{}]) sessionMsg {
		return reactionMsg{connID: connID, emoji: emoji, reply: reply}
	})
	return err
}

func (s *Session) detach(ctx context.Context, connID string, reason DetachReason) error {
	_, err := ask(ctx, s, func(reply chan<- result[struct{}]) sessionMsg {
		return detachMsg{connID: connID, reason: reason, reply: reply}
	})
	return err
}

func (s *Session) view(ctx context.Context) (domain.Snapshot, error) {
	return ask(ctx, s, func(reply chan<- result[domain.Snapshot]) sessionMsg {
		return viewMsg{reply: reply}
	})
}

func (s *Session) leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	return ask(ctx, s, func(reply chan<- result[[]domain.LeaderboardEntry]) sessionMsg {
		return leaderboardMsg{reply: reply}
	})
}

// ask sends a message to the session loop and waits for its reply.
func ask[T any](ctx context.Context, s *Session, build func(chan<- result[T]) sessionMsg) (T, error) {
	var zero T
	reply := make(chan result[T], 1)
	select {
	case s.inbox <- build(reply):
	case <-s.done:
		return zero, domain.ErrSessionEnded
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.val, r.err
	case <-s.done:
		select {
		case r := <-reply:
			return r.val, r.err
		default:
			return zero, domain.ErrSessionEnded
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *Session) loop() {
	defer s.stopIdle()
	for {
		select {
		case m := <-s.inbox:
			s.handle(m)
		case <-s.idleC():
			s.idle = nil
			if s.presence.size() == 0 && s.cursor.Status != domain.StatusEnded {
				s.logger.Info("session idle, ending")
				s.cursor.Status = domain.StatusEnded
				s.finish()
			}
		}
		s.flushDrops()
		if s.cursor.Status == domain.StatusEnded && s.presence.size() == 0 {
			s.release()
		}
		if s.released {
			return
		}
	}
}

func (s *Session) handle(m sessionMsg) {
	switch msg := m.(type) {
	case attachHostMsg:
		snap, err := s.handleAttachHost(msg)
		msg.reply <- result[domain.Snapshot]{val: snap, err: err}
	case joinMsg:
		res, err := s.handleJoin(msg.req)
		msg.reply <- result[JoinResult]{val: res, err: err}
	case submitMsg:
		receipt, err := s.handleSubmit(msg.connID, msg.sub)
		msg.reply <- result[AnswerReceipt]{val: receipt, err: err}
	case commandMsg:
		cursor, err := s.handleCommand(msg.connID, msg.cmd)
		msg.reply <- result[Cursor]{val: cursor, err: err}
	case reactionMsg:
		err := s.handleReaction(msg.connID, msg.emoji)
		msg.reply <- result[struct{}]{err: err}
	case detachMsg:
		s.handleDetach(msg.connID, msg.reason)
		msg.reply <- result[struct{}]{}
	case viewMsg:
		msg.reply <- result[domain.Snapshot]{val: s.snapshot(false, "")}
	case leaderboardMsg:
		entries := append([]domain.LeaderboardEntry(nil), s.board...)
		msg.reply <- result[[]domain.LeaderboardEntry]{val: entries}
	case shutdownMsg:
		for id, out := range s.conns {
			close(out)
			delete(s.conns, id)
		}
		s.presence = newPresence()
		s.release()
		msg.reply <- result[struct{}]{}
	}
}

// release frees the code and stops the loop. Participants are purged here.
func (s *Session) release() {
	if s.released {
		return
	}
	s.released = true
	close(s.effects)
	s.participants = make(map[string]*domain.Participant)
	s.answers = make(map[string]map[string]domain.Answer)
	s.board = nil
	if s.cfg.onRelease != nil {
		s.cfg.onRelease(s.code)
	}
	close(s.done)
	s.logger.Info("session released")
}

func (s *Session) runEffects() {
	for e := range s.effects {
		ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
		if err := e.run(ctx); err != nil {
			s.logger.Warn("session side effect failed", zap.String("effect", e.name), zap.Error(err))
		}
		cancel()
	}
}

func (s *Session) effect(name string, run func(ctx context.Context) error) {
	if s.released {
		return
	}
	select {
	case s.effects <- effect{name: name, run: run}:
	default:
		s.logger.Warn("side effect queue full, dropping", zap.String("effect", name))
	}
}

func (s *Session) idleC() <-chan time.Time {
	if s.idle == nil {
		return nil
	}
	return s.idle.C
}

func (s *Session) armIdle() {
	if s.cfg.idleTimeout <= 0 {
		return
	}
	s.stopIdle()
	s.idle = time.NewTimer(s.cfg.idleTimeout)
}

func (s *Session) stopIdle() {
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
}
