package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"live-session-service/internal/app"
	"live-session-service/internal/domain"
	"live-session-service/internal/infra/memory"
)

func TestTallyAfterLock(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	host := make(app.Outbox, 256)

	created, err := service.CreateSession(ctx, app.CreateRequest{PresentationID: "deck-1", ConnID: "host", Outbox: host})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Code != "482913" {
		t.Fatalf("expected code 482913, got %s", created.Code)
	}
	waitFor(t, host, app.EventSessionCreated)

	conns := joinAll(t, service, created.Code, "Ann", "Ben", "Cid")
	hostCommand(t, service, created.Code, app.CmdStart)
	hostCommand(t, service, created.Code, app.CmdShow)

	for i, option := range []string{"A", "B", "A"} {
		if _, err := service.SubmitAnswer(ctx, created.Code, conns[i], choice("s1", option, 2000)); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
	hostCommand(t, service, created.Code, app.CmdLock)
	hostCommand(t, service, created.Code, app.CmdReveal)

	reveal := waitFor(t, host, app.EventResultsReveal).Payload.(app.ResultsRevealPayload)
	want := map[string]int{"A": 2, "B": 1, "C": 0}
	for option, count := range want {
		if reveal.Tally.Counts[option] != count {
			t.Fatalf("expected %s=%d, got %+v", option, count, reveal.Tally.Counts)
		}
	}
	if len(reveal.Tally.Counts) != 3 || reveal.Tally.RespondentCount != 3 {
		t.Fatalf("unexpected tally %+v", reveal.Tally)
	}
	if reveal.Tally.CorrectCount != 2 || reveal.Tally.IncorrectCount != 1 {
		t.Fatalf("expected 2 correct and 1 incorrect, got %+v", reveal.Tally)
	}
}

func TestLateJoinSnapshotHidesTallyWhileShowing(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	code := createSession(t, service)

	conns := joinAll(t, service, code, "p1", "p2", "p3", "p4", "p5")
	hostCommand(t, service, code, app.CmdStart)
	hostCommand(t, service, code, app.CmdShow)
	for _, conn := range conns[:2] {
		if _, err := service.SubmitAnswer(ctx, code, conn, choice("s1", "A", 1000)); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	late, err := service.JoinSession(ctx, code, app.JoinRequest{Name: "Late", ConnID: "late", Outbox: make(app.Outbox, 64)})
	if err != nil {
		t.Fatalf("late join failed: %v", err)
	}
	snap := late.Snapshot
	if snap.SlideState != domain.SlideShow || snap.SlideIndex != 0 {
		t.Fatalf("expected show on slide 0, got %s/%d", snap.SlideState, snap.SlideIndex)
	}
	if snap.Tally != nil {
		t.Fatalf("expected no tally while showing, got %+v", snap.Tally)
	}
	if snap.CurrentSlide == nil || snap.CurrentSlide.CorrectOptionID != "" {
		t.Fatalf("expected public slide without answer, got %+v", snap.CurrentSlide)
	}
	if snap.Presence.TotalParticipants != 6 {
		t.Fatalf("expected 6 participants, got %d", snap.Presence.TotalParticipants)
	}
}

func TestReconnectRestoresScoreAndAnswer(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	code := createSession(t, service)

	joined, err := service.JoinSession(ctx, code, app.JoinRequest{Name: "Ann", ConnID: "c1", Outbox: make(app.Outbox, 64)})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	joinAll(t, service, code, "Ben")
	hostCommand(t, service, code, app.CmdStart)
	hostCommand(t, service, code, app.CmdShow)

	receipt, err := service.SubmitAnswer(ctx, code, "c1", choice("s1", "A", 0))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if receipt.PointsEarned != 1500 || receipt.Rank != 1 {
		t.Fatalf("expected 1500 points at rank 1, got %+v", receipt)
	}

	if err := service.Leave(ctx, code, "c1", app.DetachLost); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	back, err := service.JoinSession(ctx, code, app.JoinRequest{ParticipantID: joined.Participant.ID, ConnID: "c1-again", Outbox: make(app.Outbox, 64)})
	if err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if !back.Resumed || back.Participant.ID != joined.Participant.ID {
		t.Fatalf("expected resumed participant, got %+v", back)
	}
	if back.Participant.Score != 1500 || back.Participant.ConnectionStatus != domain.Connected {
		t.Fatalf("expected score kept and connected, got %+v", back.Participant)
	}
	if back.Snapshot.OwnAnswer == nil || back.Snapshot.OwnAnswer.Payload.OptionIDs[0] != "A" {
		t.Fatalf("expected prior answer restored, got %+v", back.Snapshot.OwnAnswer)
	}

	board, err := service.Leaderboard(ctx, code)
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(board) != 2 || board[0].ParticipantID != joined.Participant.ID || board[0].Rank != 1 {
		t.Fatalf("expected Ann first of two, got %+v", board)
	}
}

func TestResubmissionKeepsLatestAnswer(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	host := make(app.Outbox, 256)
	created, err := service.CreateSession(ctx, app.CreateRequest{PresentationID: "deck-1", ConnID: "host", Outbox: host})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	conns := joinAll(t, service, created.Code, "Ann")
	hostCommand(t, service, created.Code, app.CmdStart)
	hostCommand(t, service, created.Code, app.CmdShow)

	if _, err := service.SubmitAnswer(ctx, created.Code, conns[0], choice("s1", "A", 0)); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	receipt, err := service.SubmitAnswer(ctx, created.Code, conns[0], choice("s1", "B", 0))
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}
	if receipt.Score != 0 || receipt.IsCorrect {
		t.Fatalf("expected wrong latest answer to leave score 0, got %+v", receipt)
	}

	waitFor(t, host, app.EventAnswerReceived)
	second := waitFor(t, host, app.EventAnswerReceived).Payload.(app.AnswerReceivedPayload)
	if second.Total != 1 || second.Tally.Counts["A"] != 0 || second.Tally.Counts["B"] != 1 {
		t.Fatalf("expected a single stored answer for B, got %+v", second)
	}
}

func TestRevisitedSlideIsScoredOnce(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	created, err := service.CreateSession(ctx, app.CreateRequest{
		PresentationID: "deck-1",
		Settings:       domain.Settings{AllowRandomNavigation: true},
		ConnID:         "host",
		Outbox:         make(app.Outbox, 256),
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	code := created.Code
	conns := joinAll(t, service, code, "Ann")
	hostCommand(t, service, code, app.CmdStart)
	hostCommand(t, service, code, app.CmdShow)

	if _, err := service.SubmitAnswer(ctx, code, conns[0], choice("s1", "A", 0)); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	hostCommand(t, service, code, app.CmdLock)
	hostCommand(t, service, code, app.CmdReveal)
	goTo(t, service, code, 1)
	hostCommand(t, service, code, app.CmdLock)
	hostCommand(t, service, code, app.CmdReveal)
	goTo(t, service, code, 0)

	if score := scoreOf(t, service, code); score != 0 {
		t.Fatalf("expected cleared slide to take its points back, got score %d", score)
	}
	receipt, err := service.SubmitAnswer(ctx, code, conns[0], choice("s1", "A", 0))
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}
	if receipt.Score != 1500 || scoreOf(t, service, code) != 1500 {
		t.Fatalf("expected one s1 answer worth 1500, got %+v", receipt)
	}
}

func TestResetScoresThenRevisitKeepsScoreAtZero(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	created, err := service.CreateSession(ctx, app.CreateRequest{
		PresentationID: "deck-1",
		Settings:       domain.Settings{AllowRandomNavigation: true},
		ConnID:         "host",
		Outbox:         make(app.Outbox, 256),
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	code := created.Code
	conns := joinAll(t, service, code, "Ann")
	hostCommand(t, service, code, app.CmdStart)
	hostCommand(t, service, code, app.CmdShow)
	if _, err := service.SubmitAnswer(ctx, code, conns[0], choice("s1", "A", 0)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	hostCommand(t, service, code, app.CmdLock)
	hostCommand(t, service, code, app.CmdReveal)
	hostCommand(t, service, code, app.CmdResetScores)
	goTo(t, service, code, 1)
	hostCommand(t, service, code, app.CmdLock)
	hostCommand(t, service, code, app.CmdReveal)
	goTo(t, service, code, 0)

	if score := scoreOf(t, service, code); score != 0 {
		t.Fatalf("expected score 0 after reset and revisit, got %d", score)
	}
}

func TestAnswersClosedOutsideShow(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	code := createSession(t, service)
	conns := joinAll(t, service, code, "Ann")

	if _, err := service.SubmitAnswer(ctx, code, conns[0], choice("s1", "A", 0)); !errors.Is(err, domain.ErrAnswersClosed) {
		t.Fatalf("expected answers closed while waiting, got %v", err)
	}
	hostCommand(t, service, code, app.CmdStart)
	if _, err := service.SubmitAnswer(ctx, code, conns[0], choice("s1", "A", 0)); !errors.Is(err, domain.ErrAnswersClosed) {
		t.Fatalf("expected answers closed before show, got %v", err)
	}
	hostCommand(t, service, code, app.CmdShow)
	if _, err := service.SubmitAnswer(ctx, code, conns[0], choice("s2", "yes", 0)); !errors.Is(err, domain.ErrAnswersClosed) {
		t.Fatalf("expected answers closed for another slide, got %v", err)
	}
	hostCommand(t, service, code, app.CmdLock)
	if _, err := service.SubmitAnswer(ctx, code, conns[0], choice("s1", "A", 0)); !errors.Is(err, domain.ErrAnswersClosed) {
		t.Fatalf("expected answers closed after lock, got %v", err)
	}

	board, err := service.Leaderboard(ctx, code)
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if board[0].Score != 0 {
		t.Fatalf("expected untouched score, got %+v", board)
	}
}

func TestRevealBeforeLockRejected(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	code := createSession(t, service)
	hostCommand(t, service, code, app.CmdStart)
	hostCommand(t, service, code, app.CmdShow)

	if _, err := service.HostCommand(ctx, code, "host", app.Command{Kind: app.CmdReveal}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	view, err := service.View(ctx, code)
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
	if view.SlideState != domain.SlideShow {
		t.Fatalf("expected state to remain show, got %s", view.SlideState)
	}
}

func TestHostOnlyCommands(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	code := createSession(t, service)
	conns := joinAll(t, service, code, "Ann")

	if _, err := service.HostCommand(ctx, code, conns[0], app.Command{Kind: app.CmdStart}); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected not host, got %v", err)
	}
	if _, err := service.ResumeHost(ctx, code, "wrong-key", "intruder", make(app.Outbox, 8)); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected wrong host key rejected, got %v", err)
	}
}

func TestLockedSessionRejectsNewcomers(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	host := make(app.Outbox, 256)
	created, err := service.CreateSession(ctx, app.CreateRequest{
		PresentationID: "deck-1",
		Settings:       domain.Settings{LockLateJoining: true},
		ConnID:         "host",
		Outbox:         host,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	early, err := service.JoinSession(ctx, created.Code, app.JoinRequest{Name: "Early", ConnID: "c1", Outbox: make(app.Outbox, 64)})
	if err != nil {
		t.Fatalf("early join failed: %v", err)
	}
	hostCommand(t, service, created.Code, app.CmdStart)

	if _, err := service.JoinSession(ctx, created.Code, app.JoinRequest{Name: "Late", ConnID: "c2", Outbox: make(app.Outbox, 64)}); !errors.Is(err, domain.ErrSessionLocked) {
		t.Fatalf("expected session locked, got %v", err)
	}
	if _, err := service.JoinSession(ctx, created.Code, app.JoinRequest{ParticipantID: early.Participant.ID, ConnID: "c3", Outbox: make(app.Outbox, 64)}); err != nil {
		t.Fatalf("expected returning participant admitted, got %v", err)
	}
	if _, err := service.JoinSession(ctx, "000000", app.JoinRequest{Name: "Lost", ConnID: "c4", Outbox: make(app.Outbox, 8)}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestCodeCollisionRetries(t *testing.T) {
	ctx := context.Background()
	codes := []string{"111111", "111111", "222222"}
	var next int
	service, _ := newTestService(app.Options{NewCode: func() (string, error) {
		code := codes[next]
		next++
		return code, nil
	}})

	first, err := service.CreateSession(ctx, app.CreateRequest{PresentationID: "deck-1", ConnID: "h1", Outbox: make(app.Outbox, 64)})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := service.CreateSession(ctx, app.CreateRequest{PresentationID: "deck-1", ConnID: "h2", Outbox: make(app.Outbox, 64)})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.Code != "111111" || second.Code != "222222" {
		t.Fatalf("expected 111111 and 222222, got %s and %s", first.Code, second.Code)
	}

	exhausted, _ := newTestService(app.Options{MaxCodeAttempts: 2, NewCode: func() (string, error) { return "333333", nil }})
	if _, err := exhausted.CreateSession(ctx, app.CreateRequest{PresentationID: "deck-1", ConnID: "h1", Outbox: make(app.Outbox, 64)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := exhausted.CreateSession(ctx, app.CreateRequest{PresentationID: "deck-1", ConnID: "h2", Outbox: make(app.Outbox, 64)}); !errors.Is(err, domain.ErrCodeSpaceExhausted) {
		t.Fatalf("expected code space exhausted, got %v", err)
	}
}

func TestAdvancePastLastSlideEndsAndReleases(t *testing.T) {
	ctx := context.Background()
	recorder := &fakeRecorder{summaries: make(chan domain.SessionSummary, 1)}
	service, store := newTestService(app.Options{Hooks: app.Hooks{Recorders: []app.HistoryRecorder{recorder}}})
	host := make(app.Outbox, 256)
	created, err := service.CreateSession(ctx, app.CreateRequest{PresentationID: "deck-1", ConnID: "host", Outbox: host})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	code := created.Code
	session, ok := store.Get(code)
	if !ok {
		t.Fatalf("expected session in store")
	}
	conns := joinAll(t, service, code, "Ann")

	hostCommand(t, service, code, app.CmdStart)
	for i := 0; i < 2; i++ {
		hostCommand(t, service, code, app.CmdShow)
		hostCommand(t, service, code, app.CmdLock)
		hostCommand(t, service, code, app.CmdReveal)
		hostCommand(t, service, code, app.CmdNext)
	}
	// slide 3 is a word cloud that may skip the lock
	if _, err := service.SubmitAnswer(ctx, code, conns[0], app.Submission{SlideID: "s3", Payload: domain.AnswerPayload{Text: "Go"}}); err != nil {
		t.Fatalf("word cloud answer failed: %v", err)
	}
	hostCommand(t, service, code, app.CmdReveal)
	cursor := hostCommand(t, service, code, app.CmdNext)
	if cursor.Status != domain.StatusEnded {
		t.Fatalf("expected ended, got %s", cursor.Status)
	}

	waitFor(t, host, app.EventSessionEnded)
	waitClosed(t, host)

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session was not released")
	}
	if _, ok := store.Get(code); ok {
		t.Fatalf("expected code freed")
	}

	select {
	case summary := <-recorder.summaries:
		if summary.Code != code || len(summary.Participants) != 1 {
			t.Fatalf("unexpected summary %+v", summary)
		}
		if summary.Answers["s3"][summary.Participants[0].ID].Payload.Text != "Go" {
			t.Fatalf("expected word cloud answer in summary, got %+v", summary.Answers)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("summary was not recorded")
	}
}

func TestSlowConsumerIsDropped(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{})
	host := make(app.Outbox, 256)
	created, err := service.CreateSession(ctx, app.CreateRequest{PresentationID: "deck-1", ConnID: "host", Outbox: host})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	slow := make(app.Outbox, 1)
	if _, err := service.JoinSession(ctx, created.Code, app.JoinRequest{Name: "Slow", ConnID: "slow", Outbox: slow}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	left := waitFor(t, host, app.EventParticipantLeft).Payload.(app.PresencePayload)
	if left.Participant == nil || left.Participant.ConnectionStatus != domain.Reconnecting {
		t.Fatalf("expected slow participant marked reconnecting, got %+v", left.Participant)
	}
	if evt := <-slow; evt.Name != app.EventJoinedSession {
		t.Fatalf("expected joined-session first, got %s", evt.Name)
	}
	waitClosed(t, slow)
}

func TestIdleSessionEnds(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(app.Options{IdleTimeout: 50 * time.Millisecond})
	code := createSession(t, service)
	session, _ := store.Get(code)

	if err := service.Leave(ctx, code, "host", app.DetachLost); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("idle session was not released")
	}
	if _, err := service.View(ctx, code); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
}

func TestReactionsAreRateLimited(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Options{ReactionRate: 0.001, ReactionBurst: 2})
	host := make(app.Outbox, 256)
	created, err := service.CreateSession(ctx, app.CreateRequest{PresentationID: "deck-1", ConnID: "host", Outbox: host})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	conns := joinAll(t, service, created.Code, "Ann")

	for i := 0; i < 2; i++ {
		if err := service.SendReaction(ctx, created.Code, conns[0], "🎉"); err != nil {
			t.Fatalf("reaction %d failed: %v", i, err)
		}
	}
	if err := service.SendReaction(ctx, created.Code, conns[0], "🎉"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	got := waitFor(t, host, app.EventReaction).Payload.(app.ReactionPayload)
	if got.ParticipantName != "Ann" || got.Emoji != "🎉" {
		t.Fatalf("unexpected reaction %+v", got)
	}
}

// newTestService wires a service with deterministic ids, codes and a ticking clock.
func newTestService(opts app.Options) (*app.SessionService, *memory.SessionStore) {
	store := memory.NewSessionStore()
	presentations := memory.NewPresentationRepository(memory.NewStaticPresentationLoader(map[string]domain.Presentation{
		"deck-1": samplePresentation(),
	}), time.Minute)

	var ids, ticks atomic.Int64
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if opts.NewID == nil {
		opts.NewID = func() string { return fmt.Sprintf("id-%d", ids.Add(1)) }
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return base.Add(time.Duration(ticks.Add(1)) * time.Second) }
	}
	if opts.NewCode == nil {
		opts.NewCode = func() (string, error) { return "482913", nil }
	}
	return app.NewSessionService(store, presentations, opts), store
}

func createSession(t *testing.T, service *app.SessionService) string {
	t.Helper()
	created, err := service.CreateSession(context.Background(), app.CreateRequest{
		PresentationID: "deck-1",
		ConnID:         "host",
		Outbox:         make(app.Outbox, 256),
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return created.Code
}

func joinAll(t *testing.T, service *app.SessionService, code string, names ...string) []string {
	t.Helper()
	conns := make([]string, 0, len(names))
	for _, name := range names {
		conn := "conn-" + name
		if _, err := service.JoinSession(context.Background(), code, app.JoinRequest{Name: name, ConnID: conn, Outbox: make(app.Outbox, 256)}); err != nil {
			t.Fatalf("join %s failed: %v", name, err)
		}
		conns = append(conns, conn)
	}
	return conns
}

func hostCommand(t *testing.T, service *app.SessionService, code string, kind app.CommandKind) app.Cursor {
	t.Helper()
	cursor, err := service.HostCommand(context.Background(), code, "host", app.Command{Kind: kind})
	if err != nil {
		t.Fatalf("%s failed: %v", kind, err)
	}
	return cursor
}

func goTo(t *testing.T, service *app.SessionService, code string, index int) {
	t.Helper()
	if _, err := service.HostCommand(context.Background(), code, "host", app.Command{Kind: app.CmdNext, SlideIndex: &index}); err != nil {
		t.Fatalf("next to %d failed: %v", index, err)
	}
}

// scoreOf returns the score of the only entry on the leaderboard.
func scoreOf(t *testing.T, service *app.SessionService, code string) int {
	t.Helper()
	board, err := service.Leaderboard(context.Background(), code)
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(board) != 1 {
		t.Fatalf("expected one leaderboard entry, got %+v", board)
	}
	return board[0].Score
}

func choice(slideID, option string, spentMs int64) app.Submission {
	return app.Submission{
		SlideID:     slideID,
		Payload:     domain.AnswerPayload{OptionIDs: []string{option}},
		TimeSpentMs: spentMs,
	}
}

func waitFor(t *testing.T, out app.Outbox, name string) domain.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-out:
			if !ok {
				t.Fatalf("outbox closed while waiting for %s", name)
			}
			if evt.Name == name {
				return evt
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", name)
		}
	}
}

func waitClosed(t *testing.T, out app.Outbox) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatalf("outbox was not closed")
		}
	}
}

type fakeRecorder struct {
	mu        sync.Mutex
	summaries chan domain.SessionSummary
}

func (r *fakeRecorder) RecordSession(_ context.Context, summary domain.SessionSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries <- summary
	return nil
}

func samplePresentation() domain.Presentation {
	return domain.Presentation{
		ID:    "deck-1",
		Title: "Team offsite",
		Slides: []domain.Slide{
			{
				ID:              "s1",
				Kind:            domain.KindTrivia,
				Prompt:          "Which letter comes first?",
				Options:         []domain.Option{{ID: "A", Text: "A"}, {ID: "B", Text: "B"}, {ID: "C", Text: "C"}},
				CorrectOptionID: "A",
				TimeLimitMs:     20000,
				BasePoints:      1000,
				BonusFactor:     0.5,
			},
			{
				ID:      "s2",
				Kind:    domain.KindPoll,
				Prompt:  "Coffee?",
				Options: []domain.Option{{ID: "yes"}, {ID: "no"}},
			},
			{
				ID:           "s3",
				Kind:         domain.KindWordCloud,
				Prompt:       "One word for today",
				LiveResults:  true,
				LockOptional: true,
			},
		},
	}
}
