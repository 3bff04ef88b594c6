package app

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"live-session-service/internal/domain"
)

const (
	defaultMaxRating = 5
	maxTextLength    = 280
)

// Scorer derives correctness and points for one answer at ingestion time.
type Scorer func(slide domain.Slide, payload domain.AnswerPayload, timeSpentMs int64) (correct bool, points int)

var scorers = map[domain.SlideKind]Scorer{
	domain.KindMultipleChoice: scoreChoice,
	domain.KindTrivia:         scoreChoice,
}

// ScoreAnswer applies the scorer registered for the slide kind. Kinds without one earn nothing.
func ScoreAnswer(slide domain.Slide, payload domain.AnswerPayload, timeSpentMs int64) (bool, int) {
	scorer, ok := scorers[slide.Kind]
	if !ok {
		return false, 0
	}
	return scorer(slide, payload, timeSpentMs)
}

func scoreChoice(slide domain.Slide, payload domain.AnswerPayload, timeSpentMs int64) (bool, int) {
	if !slide.Scored() {
		return false, 0
	}
	if len(payload.OptionIDs) != 1 || payload.OptionIDs[0] != slide.CorrectOptionID {
		return false, 0
	}
	return true, Points(slide, timeSpentMs)
}

// Points returns the time-decayed score of a correct answer:
// base + floor(remaining/limit * base * bonus), never below base.
func Points(slide domain.Slide, timeSpentMs int64) int {
	base := slide.BasePoints
	if base <= 0 {
		base = domain.DefaultBasePoints
	}
	bonus := slide.BonusFactor
	if bonus <= 0 {
		bonus = domain.DefaultBonusFactor
	}
	limit := slide.TimeLimitMs
	if limit <= 0 {
		return base
	}

	remaining := limit - timeSpentMs
	if remaining < 0 {
		remaining = 0
	}
	if remaining > limit {
		remaining = limit
	}
	points := base + int(math.Floor(float64(remaining)/float64(limit)*float64(base)*bonus))
	if points < base {
		return base
	}
	return points
}

// NormalizePayload fills in the payload kind and checks its shape against the slide.
func NormalizePayload(slide domain.Slide, payload domain.AnswerPayload) (domain.AnswerPayload, error) {
	if payload.Kind == "" {
		payload.Kind = slide.Kind
	}
	if payload.Kind != slide.Kind {
		return payload, fmt.Errorf("%w: %s answer for %s slide", domain.ErrInvalidAnswer, payload.Kind, slide.Kind)
	}

	switch slide.Kind {
	case domain.KindMultipleChoice, domain.KindTrivia, domain.KindPoll:
		if len(payload.OptionIDs) == 0 {
			return payload, fmt.Errorf("%w: no option selected", domain.ErrInvalidAnswer)
		}
		if slide.Scored() && len(payload.OptionIDs) != 1 {
			return payload, fmt.Errorf("%w: exactly one option expected", domain.ErrInvalidAnswer)
		}
		seen := make(map[string]struct{}, len(payload.OptionIDs))
		for _, id := range payload.OptionIDs {
			if !slide.HasOption(id) {
				return payload, fmt.Errorf("%w: unknown option %q", domain.ErrInvalidAnswer, id)
			}
			if _, dup := seen[id]; dup {
				return payload, fmt.Errorf("%w: option %q selected twice", domain.ErrInvalidAnswer, id)
			}
			seen[id] = struct{}{}
		}
		payload.Text, payload.Rating = "", 0

	case domain.KindRating:
		if payload.Rating < 1 || payload.Rating > maxRating(slide) {
			return payload, fmt.Errorf("%w: rating %d out of range", domain.ErrInvalidAnswer, payload.Rating)
		}
		payload.OptionIDs, payload.Text = nil, ""

	case domain.KindWordCloud, domain.KindQA:
		text := strings.TrimSpace(payload.Text)
		if text == "" {
			return payload, fmt.Errorf("%w: empty text", domain.ErrInvalidAnswer)
		}
		if utf8.RuneCountInString(text) > maxTextLength {
			return payload, fmt.Errorf("%w: text too long", domain.ErrInvalidAnswer)
		}
		payload.Text = text
		payload.OptionIDs, payload.Rating = nil, 0

	default:
		return payload, fmt.Errorf("%w: unsupported slide kind %q", domain.ErrInvalidAnswer, slide.Kind)
	}
	return payload, nil
}

// Tally aggregates the stored answers of one slide. It only reads its inputs, so
// recomputing from the same answer map always gives the same result.
func Tally(slide domain.Slide, answers map[string]domain.Answer) domain.Tally {
	t := domain.Tally{
		SlideID:         slide.ID,
		Counts:          make(map[string]int, len(slide.Options)),
		RespondentCount: len(answers),
	}
	for _, opt := range slide.Options {
		t.Counts[opt.ID] = 0
	}
	if slide.Kind == domain.KindRating {
		for i := 1; i <= maxRating(slide); i++ {
			t.Counts[strconv.Itoa(i)] = 0
		}
	}

	ratingSum := 0
	for _, answer := range answers {
		switch slide.Kind {
		case domain.KindRating:
			t.Counts[strconv.Itoa(answer.Payload.Rating)]++
			ratingSum += answer.Payload.Rating
		case domain.KindWordCloud:
			if t.Words == nil {
				t.Words = make(map[string]int)
			}
			t.Words[strings.ToLower(strings.Join(strings.Fields(answer.Payload.Text), " "))]++
		default:
			for _, id := range answer.Payload.OptionIDs {
				t.Counts[id]++
			}
		}
		if slide.Scored() {
			if answer.IsCorrect {
				t.CorrectCount++
			} else {
				t.IncorrectCount++
			}
		}
	}
	if slide.Kind == domain.KindRating && len(answers) > 0 {
		t.RatingAverage = float64(ratingSum) / float64(len(answers))
	}
	return t
}

func maxRating(slide domain.Slide) int {
	if slide.MaxRating > 0 {
		return slide.MaxRating
	}
	return defaultMaxRating
}
