package app

import "live-session-service/internal/domain"

// Outbound event names.
const (
	EventSessionCreated    = "session-created"
	EventHostResumed       = "host-resumed"
	EventJoinedSession     = "joined-session"
	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventSlideChanged      = "slide-changed"
	EventSlideState        = "slide:state"
	EventAnswerConfirmed   = "answer-confirmed"
	EventAnswerReceived    = "answer:received"
	EventResultsUpdate     = "results:update"
	EventResultsReveal     = "results:reveal"
	EventLeaderboard       = "leaderboard:update"
	EventAudience          = "audience:update"
	EventSessionStatus     = "session:status"
	EventSessionEnded      = "session-ended"
	EventReaction          = "reaction-received"
)

type SessionCreatedPayload struct {
	Session   domain.Snapshot `json:"session"`
	ServerURL string          `json:"serverUrl"`
	HostKey   string          `json:"hostKey"`
}

type HostResumedPayload struct {
	Session domain.Snapshot `json:"session"`
}

type PresentationInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	SlideCount int    `json:"slideCount"`
}

type JoinedPayload struct {
	Participant  domain.Participant `json:"participant"`
	CurrentSlide *domain.Slide      `json:"currentSlide"`
	Presentation PresentationInfo   `json:"presentation"`
	Snapshot     domain.Snapshot    `json:"snapshot"`
}

type PresencePayload struct {
	Participant        *domain.Participant `json:"participant,omitempty"`
	TotalParticipants  int                 `json:"totalParticipants"`
	ActiveParticipants int                 `json:"activeParticipants"`
	HostConnected      bool                `json:"hostConnected"`
}

type SlideChangedPayload struct {
	Slide      domain.Slide `json:"slide"`
	SlideIndex int          `json:"slideIndex"`
}

type SlideStatePayload struct {
	SlideIndex int               `json:"slideIndex"`
	State      domain.SlideState `json:"state"`
}

type AnswerConfirmedPayload struct {
	SlideID      string `json:"slideId"`
	IsCorrect    bool   `json:"isCorrect"`
	PointsEarned int    `json:"pointsEarned"`
	Score        int    `json:"score"`
}

// ResultsUpdatePayload is the aggregate participants see after each answer.
// Tally is only set when the slide shows live results.
type ResultsUpdatePayload struct {
	SlideID string        `json:"slideId"`
	Total   int           `json:"total"`
	Tally   *domain.Tally `json:"tally,omitempty"`
}

// AnswerReceivedPayload is the host's view of an answer, including who sent it.
type AnswerReceivedPayload struct {
	SlideID       string       `json:"slideId"`
	ParticipantID string       `json:"participantId"`
	Name          string       `json:"name"`
	IsCorrect     bool         `json:"isCorrect"`
	PointsEarned  int          `json:"pointsEarned"`
	Total         int          `json:"total"`
	Tally         domain.Tally `json:"tally"`
}

type ResultsRevealPayload struct {
	SlideID         string       `json:"slideId"`
	CorrectOptionID string       `json:"correctOptionId,omitempty"`
	Tally           domain.Tally `json:"tally"`
}

type LeaderboardPayload struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
	Total   int                       `json:"total"`
}

type StatusPayload struct {
	Status domain.SessionStatus `json:"status"`
}

type SessionEndedPayload struct {
	Code string `json:"code"`
}

type ReactionPayload struct {
	Emoji           string `json:"emoji"`
	ParticipantName string `json:"participantName"`
}
