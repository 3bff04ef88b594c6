package domain

import "time"

// SessionStatus is the lifecycle stage of a live session.
type SessionStatus string

const (
	StatusWaiting SessionStatus = "waiting"
	StatusActive  SessionStatus = "active"
	StatusPaused  SessionStatus = "paused"
	StatusEnded   SessionStatus = "ended"
)

// SlideState gates answer acceptance and result visibility for the current slide.
// The zero value means no slide has been shown yet.
type SlideState string

const (
	SlideNone   SlideState = ""
	SlideShow   SlideState = "show"
	SlideLocked SlideState = "locked"
	SlideReveal SlideState = "reveal"
)

type ConnectionStatus string

const (
	Connected    ConnectionStatus = "connected"
	Disconnected ConnectionStatus = "disconnected"
	Reconnecting ConnectionStatus = "reconnecting"
)

type DisplayMode string

const (
	DisplayIndividual DisplayMode = "individual"
	DisplayTeam       DisplayMode = "team"
)

// SlideKind selects the answer shape and the scoring rule of a slide.
type SlideKind string

const (
	KindMultipleChoice SlideKind = "multiple_choice"
	KindTrivia         SlideKind = "trivia"
	KindPoll           SlideKind = "poll"
	KindRating         SlideKind = "rating"
	KindWordCloud      SlideKind = "word_cloud"
	KindQA             SlideKind = "qa"
)

const (
	DefaultBasePoints      = 1000
	DefaultBonusFactor     = 0.5
	DefaultLeaderboardSize = 10
)

// Option represents a selectable answer on a choice slide.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Slide is consumed read-only from the presentation loader.
type Slide struct {
	ID              string    `json:"id"`
	Kind            SlideKind `json:"kind"`
	Prompt          string    `json:"prompt"`
	Options         []Option  `json:"options,omitempty"`
	CorrectOptionID string    `json:"correctOptionId,omitempty"`
	TimeLimitMs     int64     `json:"timeLimitMs,omitempty"`
	BasePoints      int       `json:"basePoints,omitempty"`
	BonusFactor     float64   `json:"bonusFactor,omitempty"`
	// LiveResults exposes the running tally to participants while answers are open.
	LiveResults bool `json:"liveResults,omitempty"`
	// LockOptional lets an unscored slide go from show straight to reveal.
	LockOptional bool `json:"lockOptional,omitempty"`
	MaxRating    int  `json:"maxRating,omitempty"`
}

// Scored reports whether answers to the slide earn points.
func (s Slide) Scored() bool {
	switch s.Kind {
	case KindTrivia, KindMultipleChoice:
		return s.CorrectOptionID != ""
	}
	return false
}

// HasOption reports whether id is one of the slide's options.
func (s Slide) HasOption(id string) bool {
	for _, opt := range s.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// Public strips the correct answer so the slide can be sent to participants.
func (s Slide) Public() Slide {
	s.CorrectOptionID = ""
	return s
}

// Presentation is an ordered list of slides.
type Presentation struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Slides []Slide `json:"slides"`
}

type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Settings are fixed at session creation.
type Settings struct {
	LockLateJoining       bool        `json:"lockLateJoining"`
	DisplayMode           DisplayMode `json:"displayMode,omitempty"`
	LeaderboardSize       int         `json:"leaderboardSize,omitempty"`
	AllowRandomNavigation bool        `json:"allowRandomNavigation"`
}

// Participant represents one audience member and their accumulated score.
type Participant struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	TeamID           string           `json:"teamId,omitempty"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	// Score is the sum of PointsEarned over the participant's stored answers.
	// A resubmission replaces the earlier answer, so a wrong one can lower it,
	// and so can a host reset or revisiting an answered slide.
	Score            int              `json:"score"`
	JoinedAt         time.Time        `json:"joinedAt"`
	LastActiveAt     time.Time        `json:"lastActiveAt"`
}

// AnswerPayload is a tagged variant; Kind decides which of the other fields are meaningful.
type AnswerPayload struct {
	Kind      SlideKind `json:"kind"`
	OptionIDs []string  `json:"optionIds,omitempty"`
	Text      string    `json:"text,omitempty"`
	Rating    int       `json:"rating,omitempty"`
}

// Answer is the single stored submission of a participant for a slide.
type Answer struct {
	ParticipantID string        `json:"participantId"`
	SlideID       string        `json:"slideId"`
	Payload       AnswerPayload `json:"payload"`
	TimeSpentMs   int64         `json:"timeSpentMs"`
	SubmittedAt   time.Time     `json:"submittedAt"`
	IsCorrect     bool          `json:"isCorrect"`
	PointsEarned  int           `json:"pointsEarned"`
}

// LeaderboardEntry is one ranked row. ParticipantID is empty for team rows.
type LeaderboardEntry struct {
	ParticipantID string `json:"participantId,omitempty"`
	TeamID        string `json:"teamId,omitempty"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
	Rank          int    `json:"rank"`
}

// Tally is the aggregate of all answers stored for one slide.
type Tally struct {
	SlideID         string         `json:"slideId"`
	Counts          map[string]int `json:"counts"`
	RespondentCount int            `json:"respondentCount"`
	CorrectCount    int            `json:"correctCount,omitempty"`
	IncorrectCount  int            `json:"incorrectCount,omitempty"`
	Words           map[string]int `json:"words,omitempty"`
	RatingAverage   float64        `json:"ratingAverage,omitempty"`
}

// PresenceCounts are the live audience numbers shown to host and participants.
type PresenceCounts struct {
	TotalParticipants  int  `json:"totalParticipants"`
	ActiveParticipants int  `json:"activeParticipants"`
	HostConnected      bool `json:"hostConnected"`
}

// Snapshot is everything a late or returning client needs to render the room.
type Snapshot struct {
	Code         string             `json:"code"`
	Status       SessionStatus      `json:"status"`
	SlideIndex   int                `json:"slideIndex"`
	SlideState   SlideState         `json:"slideState"`
	SlideCount   int                `json:"slideCount"`
	CurrentSlide *Slide             `json:"currentSlide,omitempty"`
	Participant  *Participant       `json:"participant,omitempty"`
	OwnAnswer    *Answer            `json:"ownAnswer,omitempty"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard"`
	Presence     PresenceCounts     `json:"presence"`
	Tally        *Tally             `json:"tally,omitempty"`
}

// Event is one outbound message addressed to a connection.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// SessionSummary is written to the history sinks once a session ends.
type SessionSummary struct {
	Code           string                       `json:"code"`
	PresentationID string                       `json:"presentationId"`
	CreatedAt      time.Time                    `json:"createdAt"`
	EndedAt        time.Time                    `json:"endedAt"`
	Participants   []Participant                `json:"participants"`
	Leaderboard    []LeaderboardEntry           `json:"leaderboard"`
	Tallies        []Tally                      `json:"tallies"`
	Answers        map[string]map[string]Answer `json:"answers"`
}
