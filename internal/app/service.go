package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"live-session-service/internal/domain"
)

const (
	codeDigits             = 6
	defaultMaxCodeAttempts = 20
	defaultReactionRate    = 2
	defaultReactionBurst   = 5
)

// SessionRepository is the registry of live sessions keyed by join code.
// Reserve claims a code and returns domain.ErrCodeTaken if someone else holds it.
type SessionRepository interface {
	Reserve(ctx context.Context, code string) error
	Put(code string, session *Session)
	Get(code string) (*Session, bool)
	Release(ctx context.Context, code string)
	List() []*Session
}

// PresentationRepository loads presentations (from cache/backing store).
type PresentationRepository interface {
	GetPresentation(ctx context.Context, id string) (domain.Presentation, error)
}

// Options tune sessions created by the service. Zero values fall back to defaults.
type Options struct {
	ServerURL       string
	LeaderboardSize int
	IdleTimeout     time.Duration
	MaxCodeAttempts int
	ReactionRate    float64
	ReactionBurst   int
	Hooks           Hooks
	Logger          *zap.Logger

	// Now, NewID and NewCode are replaced in tests for deterministic output.
	Now     func() time.Time
	NewID   func() string
	NewCode func() (string, error)
}

// SessionService contains the live session use cases.
type SessionService struct {
	sessions      SessionRepository
	presentations PresentationRepository
	opts          Options
	logger        *zap.Logger
}

func NewSessionService(store SessionRepository, presentations PresentationRepository, opts Options) *SessionService {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.NewCode == nil {
		opts.NewCode = GenerateCode
	}
	if opts.MaxCodeAttempts <= 0 {
		opts.MaxCodeAttempts = defaultMaxCodeAttempts
	}
	if opts.LeaderboardSize <= 0 {
		opts.LeaderboardSize = domain.DefaultLeaderboardSize
	}
	if opts.ReactionRate <= 0 {
		opts.ReactionRate = defaultReactionRate
	}
	if opts.ReactionBurst <= 0 {
		opts.ReactionBurst = defaultReactionBurst
	}
	return &SessionService{
		sessions:      store,
		presentations: presentations,
		opts:          opts,
		logger:        opts.Logger,
	}
}

// GenerateCode returns a random 6-digit join code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

type CreateRequest struct {
	PresentationID string
	Settings       domain.Settings
	Teams          []domain.Team
	ConnID         string
	Outbox         Outbox
}

type Created struct {
	Code     string
	HostKey  string
	Snapshot domain.Snapshot
}

// CreateSession allocates a code, starts the session and attaches the caller as host.
func (s *SessionService) CreateSession(ctx context.Context, req CreateRequest) (Created, error) {
	presentation, err := s.presentations.GetPresentation(ctx, req.PresentationID)
	if err != nil {
		return Created{}, err
	}

	settings := req.Settings
	if settings.LeaderboardSize <= 0 {
		settings.LeaderboardSize = s.opts.LeaderboardSize
	}
	if settings.DisplayMode == "" {
		settings.DisplayMode = domain.DisplayIndividual
	}
	if settings.DisplayMode == domain.DisplayTeam && len(req.Teams) == 0 {
		return Created{}, fmt.Errorf("%w: team mode needs teams", domain.ErrInvalidRequest)
	}

	code, err := s.allocateCode(ctx)
	if err != nil {
		return Created{}, err
	}

	hostKey := s.opts.NewID()
	session := newSession(sessionConfig{
		code:          code,
		hostKey:       hostKey,
		presentation:  presentation,
		settings:      settings,
		teams:         append([]domain.Team(nil), req.Teams...),
		serverURL:     s.opts.ServerURL,
		idleTimeout:   s.opts.IdleTimeout,
		reactionRate:  rate.Limit(s.opts.ReactionRate),
		reactionBurst: s.opts.ReactionBurst,
		hooks:         s.opts.Hooks,
		logger:        s.logger,
		now:           s.opts.Now,
		newID:         s.opts.NewID,
		onRelease: func(code string) {
			ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
			defer cancel()
			s.sessions.Release(ctx, code)
		},
	})
	s.sessions.Put(code, session)

	snap, err := session.attachHost(ctx, req.ConnID, hostKey, req.Outbox, true)
	if err != nil {
		_ = session.Shutdown(context.Background())
		return Created{}, err
	}
	s.logger.Info("session created",
		zap.String("session_code", code),
		zap.String("presentation_id", presentation.ID),
		zap.Int("slides", len(presentation.Slides)),
	)
	return Created{Code: code, HostKey: hostKey, Snapshot: snap}, nil
}

func (s *SessionService) allocateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < s.opts.MaxCodeAttempts; attempt++ {
		code, err := s.opts.NewCode()
		if err != nil {
			return "", err
		}
		err = s.sessions.Reserve(ctx, code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, domain.ErrCodeTaken) {
			return "", err
		}
		s.logger.Debug("session code collision, regenerating", zap.String("session_code", code))
	}
	return "", domain.ErrCodeSpaceExhausted
}

// ResumeHost reattaches a host connection using the key issued at creation.
func (s *SessionService) ResumeHost(ctx context.Context, code, hostKey, connID string, outbox Outbox) (domain.Snapshot, error) {
	session, err := s.session(code)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return session.attachHost(ctx, connID, hostKey, outbox, false)
}

// JoinSession adds a participant, or resumes one when req.ParticipantID is known.
func (s *SessionService) JoinSession(ctx context.Context, code string, req JoinRequest) (JoinResult, error) {
	session, err := s.session(code)
	if err != nil {
		return JoinResult{}, err
	}
	return session.join(ctx, req)
}

// SubmitAnswer records the answer of the participant behind connID.
func (s *SessionService) SubmitAnswer(ctx context.Context, code, connID string, sub Submission) (AnswerReceipt, error) {
	session, err := s.session(code)
	if err != nil {
		return AnswerReceipt{}, err
	}
	return session.submit(ctx, connID, sub)
}

// HostCommand applies a host command to the session's slide state.
func (s *SessionService) HostCommand(ctx context.Context, code, connID string, cmd Command) (Cursor, error) {
	session, err := s.session(code)
	if err != nil {
		return Cursor{}, err
	}
	return session.command(ctx, connID, cmd)
}

// EndSession ends the session on behalf of its host.
func (s *SessionService) EndSession(ctx context.Context, code, connID string) error {
	_, err := s.HostCommand(ctx, code, connID, Command{Kind: CmdEnd})
	return err
}

func (s *SessionService) SendReaction(ctx context.Context, code, connID, emoji string) error {
	session, err := s.session(code)
	if err != nil {
		return err
	}
	return session.react(ctx, connID, emoji)
}

// Leave detaches a connection. The participant keeps its score and rank.
func (s *SessionService) Leave(ctx context.Context, code, connID string, reason DetachReason) error {
	session, err := s.session(code)
	if err != nil {
		return err
	}
	return session.detach(ctx, connID, reason)
}

// View returns the room as an anonymous participant would see it.
func (s *SessionService) View(ctx context.Context, code string) (domain.Snapshot, error) {
	session, err := s.session(code)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return session.view(ctx)
}

// Leaderboard returns the full ranking, not only the broadcast top entries.
func (s *SessionService) Leaderboard(ctx context.Context, code string) ([]domain.LeaderboardEntry, error) {
	session, err := s.session(code)
	if err != nil {
		return nil, err
	}
	return session.leaderboard(ctx)
}

// Shutdown stops every live session.
func (s *SessionService) Shutdown(ctx context.Context) {
	for _, session := range s.sessions.List() {
		if err := session.Shutdown(ctx); err != nil && !errors.Is(err, domain.ErrSessionEnded) {
			s.logger.Warn("session shutdown failed", zap.String("session_code", session.Code()), zap.Error(err))
		}
	}
}

func (s *SessionService) session(code string) (*Session, error) {
	session, ok := s.sessions.Get(code)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}
