package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"live-session-service/internal/domain"
)

const maxEmojiRunes = 8

type audience int

const (
	toAll audience = iota
	toHosts
	toParticipants
)

func (s *Session) handleAttachHost(m attachHostMsg) (domain.Snapshot, error) {
	if s.cursor.Status == domain.StatusEnded {
		return domain.Snapshot{}, domain.ErrSessionEnded
	}
	if m.hostKey != s.hostKey {
		return domain.Snapshot{}, domain.ErrNotHost
	}
	if m.outbox == nil {
		return domain.Snapshot{}, fmt.Errorf("%w: missing outbox", domain.ErrInvalidRequest)
	}

	s.conns[m.connID] = m.outbox
	s.presence.attachHost(m.connID)
	s.stopIdle()

	snap := s.snapshot(true, "")
	if m.created {
		s.deliver(m.connID, domain.Event{Name: EventSessionCreated, Payload: SessionCreatedPayload{
			Session:   snap,
			ServerURL: s.cfg.serverURL,
			HostKey:   s.hostKey,
		}})
	} else {
		s.deliver(m.connID, domain.Event{Name: EventHostResumed, Payload: HostResumedPayload{Session: snap}})
	}
	s.broadcast(toAll, EventAudience, s.presencePayload(nil))
	return snap, nil
}

func (s *Session) handleJoin(req JoinRequest) (JoinResult, error) {
	if s.cursor.Status == domain.StatusEnded {
		return JoinResult{}, domain.ErrSessionEnded
	}
	if req.Outbox == nil {
		return JoinResult{}, fmt.Errorf("%w: missing outbox", domain.ErrInvalidRequest)
	}

	now := s.cfg.now()
	participant, resumed := s.participants[req.ParticipantID]
	if !resumed {
		if s.cfg.settings.LockLateJoining && s.cursor.Status != domain.StatusWaiting {
			return JoinResult{}, domain.ErrSessionLocked
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return JoinResult{}, fmt.Errorf("%w: name is required", domain.ErrInvalidRequest)
		}
		if req.TeamID != "" && len(s.cfg.teams) > 0 && !s.hasTeam(req.TeamID) {
			return JoinResult{}, fmt.Errorf("%w: unknown team %q", domain.ErrInvalidRequest, req.TeamID)
		}
		participant = &domain.Participant{
			ID:       s.cfg.newID(),
			Name:     name,
			TeamID:   req.TeamID,
			JoinedAt: now,
		}
		s.participants[participant.ID] = participant
	}
	participant.ConnectionStatus = domain.Connected
	participant.LastActiveAt = now

	s.conns[req.ConnID] = req.Outbox
	first := s.presence.attach(req.ConnID, participant.ID)
	s.stopIdle()
	if !resumed {
		s.rerank()
	}

	snap := s.snapshot(false, participant.ID)
	s.deliver(req.ConnID, domain.Event{Name: EventJoinedSession, Payload: JoinedPayload{
		Participant:  *participant,
		CurrentSlide: snap.CurrentSlide,
		Presentation: PresentationInfo{
			ID:         s.cfg.presentation.ID,
			Title:      s.cfg.presentation.Title,
			SlideCount: len(s.cfg.presentation.Slides),
		},
		Snapshot: snap,
	}})
	if first {
		s.broadcast(toAll, EventParticipantJoined, s.presencePayload(participant))
		s.broadcast(toAll, EventAudience, s.presencePayload(nil))
	}
	if !resumed {
		s.broadcast(toAll, EventLeaderboard, s.leaderboardPayload())
	}

	s.logger.Info("participant joined",
		zap.String("participant_id", participant.ID),
		zap.String("conn_id", req.ConnID),
		zap.Bool("resumed", resumed),
	)
	return JoinResult{Participant: *participant, Snapshot: snap, Resumed: resumed}, nil
}

func (s *Session) handleSubmit(connID string, sub Submission) (AnswerReceipt, error) {
	switch s.cursor.Status {
	case domain.StatusActive:
	case domain.StatusEnded:
		return AnswerReceipt{}, domain.ErrSessionEnded
	default:
		return AnswerReceipt{}, domain.ErrAnswersClosed
	}
	participantID, ok := s.presence.participantOf(connID)
	if !ok {
		return AnswerReceipt{}, domain.ErrParticipantNotFound
	}
	participant := s.participants[participantID]

	slide, ok := s.currentSlide()
	if !ok || s.cursor.SlideState != domain.SlideShow || sub.SlideID != slide.ID {
		return AnswerReceipt{}, domain.ErrAnswersClosed
	}
	payload, err := NormalizePayload(slide, sub.Payload)
	if err != nil {
		return AnswerReceipt{}, err
	}
	spent := sub.TimeSpentMs
	if spent < 0 {
		spent = 0
	}
	correct, points := ScoreAnswer(slide, payload, spent)

	byParticipant := s.answers[slide.ID]
	if byParticipant == nil {
		byParticipant = make(map[string]domain.Answer)
		s.answers[slide.ID] = byParticipant
	}
	prev, had := byParticipant[participantID]
	now := s.cfg.now()
	byParticipant[participantID] = domain.Answer{
		ParticipantID: participantID,
		SlideID:       slide.ID,
		Payload:       payload,
		TimeSpentMs:   spent,
		SubmittedAt:   now,
		IsCorrect:     correct,
		PointsEarned:  points,
	}

	// A resubmission replaces the earlier answer, so its points are swapped, not added.
	delta := points
	if had {
		delta -= prev.PointsEarned
	}
	participant.Score += delta
	participant.LastActiveAt = now
	if delta != 0 {
		s.rerank()
	}

	tally := Tally(slide, byParticipant)
	s.deliver(connID, domain.Event{Name: EventAnswerConfirmed, Payload: AnswerConfirmedPayload{
		SlideID:      slide.ID,
		IsCorrect:    correct,
		PointsEarned: points,
		Score:        participant.Score,
	}})
	update := ResultsUpdatePayload{SlideID: slide.ID, Total: tally.RespondentCount}
	if slide.LiveResults {
		live := tally
		update.Tally = &live
	}
	s.broadcast(toParticipants, EventResultsUpdate, update)
	s.broadcast(toHosts, EventAnswerReceived, AnswerReceivedPayload{
		SlideID:       slide.ID,
		ParticipantID: participantID,
		Name:          participant.Name,
		IsCorrect:     correct,
		PointsEarned:  points,
		Total:         tally.RespondentCount,
		Tally:         tally,
	})
	if delta != 0 {
		s.broadcast(toAll, EventLeaderboard, s.leaderboardPayload())
	}

	receipt := AnswerReceipt{
		SlideID:      slide.ID,
		IsCorrect:    correct,
		PointsEarned: points,
		Score:        participant.Score,
	}
	if entry, ok := RankOf(s.board, participantID); ok {
		receipt.Rank = entry.Rank
	}
	return receipt, nil
}

func (s *Session) handleCommand(connID string, cmd Command) (Cursor, error) {
	if !s.presence.isHost(connID) {
		return s.cursor, domain.ErrNotHost
	}
	out, err := Transition(s.cursor, cmd, s.cfg.presentation.Slides, s.nav)
	if err != nil {
		s.logger.Debug("host command rejected", zap.String("command", string(cmd.Kind)), zap.Error(err))
		return s.cursor, err
	}
	if !out.Changed {
		return s.cursor, nil
	}

	prev := s.cursor
	s.cursor = out.Cursor
	s.logger.Info("host command applied",
		zap.String("command", string(cmd.Kind)),
		zap.String("status", string(s.cursor.Status)),
		zap.Int("slide_index", s.cursor.SlideIndex),
		zap.String("slide_state", string(s.cursor.SlideState)),
	)

	if out.SlideChanged {
		slide := s.cfg.presentation.Slides[s.cursor.SlideIndex]
		if s.clearAnswers(slide.ID) {
			s.rerank()
			s.broadcast(toAll, EventLeaderboard, s.leaderboardPayload())
		}
		s.broadcast(toParticipants, EventSlideChanged, SlideChangedPayload{Slide: slide.Public(), SlideIndex: s.cursor.SlideIndex})
		s.broadcast(toHosts, EventSlideChanged, SlideChangedPayload{Slide: slide, SlideIndex: s.cursor.SlideIndex})
	}
	if out.ResetScores {
		for _, p := range s.participants {
			p.Score = 0
		}
		// Stored answers keep their tallies but no longer carry points.
		for slideID, byParticipant := range s.answers {
			for id, a := range byParticipant {
				a.PointsEarned = 0
				s.answers[slideID][id] = a
			}
		}
		s.rerank()
		s.broadcast(toAll, EventLeaderboard, s.leaderboardPayload())
	}
	if out.StatusChanged {
		s.broadcast(toAll, EventSessionStatus, StatusPayload{Status: s.cursor.Status})
	}
	if s.cursor.Status != domain.StatusEnded &&
		(s.cursor.SlideState != prev.SlideState || s.cursor.SlideIndex != prev.SlideIndex) {
		s.broadcast(toAll, EventSlideState, SlideStatePayload{SlideIndex: s.cursor.SlideIndex, State: s.cursor.SlideState})
	}
	if s.cursor.SlideState == domain.SlideReveal && prev.SlideState != domain.SlideReveal {
		slide := s.cfg.presentation.Slides[s.cursor.SlideIndex]
		s.broadcast(toAll, EventResultsReveal, ResultsRevealPayload{
			SlideID:         slide.ID,
			CorrectOptionID: slide.CorrectOptionID,
			Tally:           Tally(slide, s.answers[slide.ID]),
		})
		if slide.Scored() {
			s.broadcast(toAll, EventLeaderboard, s.leaderboardPayload())
		}
	}
	if out.Ended() {
		s.finish()
	}
	return s.cursor, nil
}

// clearAnswers drops the stored answers for a slide being shown again and takes
// their points back, so every score stays the sum of its stored answers.
// It reports whether any score changed.
func (s *Session) clearAnswers(slideID string) bool {
	changed := false
	for participantID, a := range s.answers[slideID] {
		if a.PointsEarned == 0 {
			continue
		}
		if p, ok := s.participants[participantID]; ok {
			p.Score -= a.PointsEarned
			changed = true
		}
	}
	delete(s.answers, slideID)
	return changed
}

func (s *Session) handleReaction(connID, emoji string) error {
	if s.cursor.Status == domain.StatusEnded {
		return domain.ErrSessionEnded
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiRunes {
		return fmt.Errorf("%w: invalid emoji", domain.ErrInvalidRequest)
	}

	name := hostReactorTag
	if !s.presence.isHost(connID) {
		participantID, ok := s.presence.participantOf(connID)
		if !ok {
			return domain.ErrParticipantNotFound
		}
		participant := s.participants[participantID]
		participant.LastActiveAt = s.cfg.now()
		name = participant.Name
	}

	limiter, ok := s.limiters[connID]
	if !ok {
		limiter = rate.NewLimiter(s.cfg.reactionRate, s.cfg.reactionBurst)
		s.limiters[connID] = limiter
	}
	if !limiter.AllowN(s.cfg.now(), 1) {
		return domain.ErrRateLimited
	}

	s.broadcast(toAll, EventReaction, ReactionPayload{Emoji: emoji, ParticipantName: name})
	return nil
}

func (s *Session) handleDetach(connID string, reason DetachReason) {
	if out, ok := s.conns[connID]; ok {
		delete(s.conns, connID)
		close(out)
	}
	s.forget(connID, reason)
}

// forget updates presence for a connection that is already gone from conns.
func (s *Session) forget(connID string, reason DetachReason) {
	delete(s.limiters, connID)
	participantID, host, last := s.presence.detach(connID)
	switch {
	case host:
		s.broadcast(toAll, EventAudience, s.presencePayload(nil))
	case participantID != "" && last:
		participant := s.participants[participantID]
		participant.ConnectionStatus = domain.Reconnecting
		if reason == DetachLeft {
			participant.ConnectionStatus = domain.Disconnected
		}
		participant.LastActiveAt = s.cfg.now()
		s.broadcast(toAll, EventParticipantLeft, s.presencePayload(participant))
		s.broadcast(toAll, EventAudience, s.presencePayload(nil))
		s.logger.Info("participant left",
			zap.String("participant_id", participantID),
			zap.String("connection_status", string(participant.ConnectionStatus)),
		)
	}
	if s.presence.size() == 0 && s.cursor.Status != domain.StatusEnded {
		s.armIdle()
	}
}

// finish tells the room the session is over, queues the history write and closes every connection.
func (s *Session) finish() {
	s.broadcast(toAll, EventSessionEnded, SessionEndedPayload{Code: s.code})

	summary := s.summary()
	for _, recorder := range s.cfg.hooks.Recorders {
		recorder := recorder
		s.effect("record_session", func(ctx context.Context) error {
			return recorder.RecordSession(ctx, summary)
		})
	}

	for id, out := range s.conns {
		close(out)
		delete(s.conns, id)
	}
	s.presence = newPresence()
	s.limiters = make(map[string]*rate.Limiter)
	s.dropped = nil
	s.logger.Info("session ended", zap.Int("participants", len(s.participants)))
}

func (s *Session) deliver(connID string, evt domain.Event) {
	out, ok := s.conns[connID]
	if !ok {
		return
	}
	select {
	case out <- evt:
	default:
		s.logger.Warn("dropping slow connection", zap.String("conn_id", connID), zap.String("event", evt.Name))
		delete(s.conns, connID)
		close(out)
		s.dropped = append(s.dropped, connID)
	}
}

func (s *Session) broadcast(to audience, name string, payload any) {
	evt := domain.Event{Name: name, Payload: payload}
	for connID := range s.conns {
		host := s.presence.isHost(connID)
		if (to == toHosts && !host) || (to == toParticipants && host) {
			continue
		}
		s.deliver(connID, evt)
	}
	if to == toAll && s.cfg.hooks.Publisher != nil {
		publisher := s.cfg.hooks.Publisher
		s.effect("publish_event", func(ctx context.Context) error {
			return publisher.Publish(ctx, s.code, evt)
		})
	}
}

// flushDrops runs presence bookkeeping for connections dropped during delivery.
// Bookkeeping broadcasts may drop further connections, so it loops until none are left.
func (s *Session) flushDrops() {
	for len(s.dropped) > 0 {
		connID := s.dropped[0]
		s.dropped = s.dropped[1:]
		s.forget(connID, DetachLost)
	}
}

func (s *Session) rerank() {
	participants := s.participantList()
	if s.cfg.settings.DisplayMode == domain.DisplayTeam {
		s.board = RankTeams(participants, s.cfg.teams)
	} else {
		s.board = RankParticipants(participants)
	}
	if mirror := s.cfg.hooks.Leaderboards; mirror != nil {
		entries := append([]domain.LeaderboardEntry(nil), s.board...)
		s.effect("store_leaderboard", func(ctx context.Context) error {
			return mirror.StoreLeaderboard(ctx, s.code, entries)
		})
	}
}

func (s *Session) leaderboardPayload() LeaderboardPayload {
	return LeaderboardPayload{Entries: Top(s.board, s.cfg.settings.LeaderboardSize), Total: len(s.board)}
}

func (s *Session) presencePayload(participant *domain.Participant) PresencePayload {
	counts := s.presence.counts(len(s.participants))
	payload := PresencePayload{
		TotalParticipants:  counts.TotalParticipants,
		ActiveParticipants: counts.ActiveParticipants,
		HostConnected:      counts.HostConnected,
	}
	if participant != nil {
		cp := *participant
		payload.Participant = &cp
	}
	return payload
}

func (s *Session) currentSlide() (domain.Slide, bool) {
	if s.cursor.SlideState == domain.SlideNone {
		return domain.Slide{}, false
	}
	slides := s.cfg.presentation.Slides
	if s.cursor.SlideIndex < 0 || s.cursor.SlideIndex >= len(slides) {
		return domain.Slide{}, false
	}
	return slides[s.cursor.SlideIndex], true
}

// snapshot renders the room for one viewer. Participants only see a tally once
// results are revealed, or while answers are open on a live-results slide.
func (s *Session) snapshot(forHost bool, participantID string) domain.Snapshot {
	snap := domain.Snapshot{
		Code:        s.code,
		Status:      s.cursor.Status,
		SlideIndex:  s.cursor.SlideIndex,
		SlideState:  s.cursor.SlideState,
		SlideCount:  len(s.cfg.presentation.Slides),
		Leaderboard: Top(s.board, s.cfg.settings.LeaderboardSize),
		Presence:    s.presence.counts(len(s.participants)),
	}

	slide, hasSlide := s.currentSlide()
	if hasSlide {
		shown := slide
		if !forHost && s.cursor.SlideState != domain.SlideReveal {
			shown = slide.Public()
		}
		snap.CurrentSlide = &shown
		if forHost || s.cursor.SlideState == domain.SlideReveal || slide.LiveResults {
			tally := Tally(slide, s.answers[slide.ID])
			snap.Tally = &tally
		}
	}

	if participant, ok := s.participants[participantID]; ok {
		cp := *participant
		snap.Participant = &cp
		if hasSlide {
			if answer, ok := s.answers[slide.ID][participantID]; ok {
				snap.OwnAnswer = &answer
			}
		}
	}
	return snap
}

func (s *Session) summary() domain.SessionSummary {
	summary := domain.SessionSummary{
		Code:           s.code,
		PresentationID: s.cfg.presentation.ID,
		CreatedAt:      s.created,
		EndedAt:        s.cfg.now(),
		Participants:   make([]domain.Participant, 0, len(s.participants)),
		Leaderboard:    append([]domain.LeaderboardEntry(nil), s.board...),
		Answers:        make(map[string]map[string]domain.Answer, len(s.answers)),
	}
	for _, p := range s.participants {
		summary.Participants = append(summary.Participants, *p)
	}
	for _, slide := range s.cfg.presentation.Slides {
		answers, ok := s.answers[slide.ID]
		if !ok {
			continue
		}
		copied := make(map[string]domain.Answer, len(answers))
		for id, a := range answers {
			copied[id] = a
		}
		summary.Answers[slide.ID] = copied
		summary.Tallies = append(summary.Tallies, Tally(slide, copied))
	}
	return summary
}

func (s *Session) participantList() []domain.Participant {
	list := make([]domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		list = append(list, *p)
	}
	return list
}

func (s *Session) hasTeam(id string) bool {
	for _, team := range s.cfg.teams {
		if team.ID == id {
			return true
		}
	}
	return false
}
