package app

import (
	"fmt"

	"live-session-service/internal/domain"
)

// CommandKind names a host command.
type CommandKind string

const (
	CmdStart       CommandKind = "start"
	CmdShow        CommandKind = "show"
	CmdLock        CommandKind = "lock"
	CmdReveal      CommandKind = "reveal"
	CmdNext        CommandKind = "next"
	CmdPause       CommandKind = "pause"
	CmdResume      CommandKind = "resume"
	CmdEnd         CommandKind = "end"
	CmdResetScores CommandKind = "reset-scores"
)

// Command is a host command. SlideIndex is only read by CmdNext; nil means the next slide.
type Command struct {
	Kind       CommandKind `json:"kind"`
	SlideIndex *int        `json:"slideIndex,omitempty"`
}

// Cursor is the part of a session the state machine owns.
type Cursor struct {
	Status     domain.SessionStatus `json:"status"`
	SlideIndex int                  `json:"slideIndex"`
	SlideState domain.SlideState    `json:"slideState"`
}

// NavigationPolicy decides whether the host may advance from current to next.
// next may equal count, which ends the session.
type NavigationPolicy func(current, next, count int) bool

// SequentialNavigation only allows the immediate successor.
func SequentialNavigation(current, next, _ int) bool {
	return next == current+1
}

// RandomNavigation allows any other slide, or leaving past the last one.
func RandomNavigation(current, next, count int) bool {
	if next == count {
		return current == count-1
	}
	return next >= 0 && next < count && next != current
}

// Outcome describes the effects of a successful transition.
type Outcome struct {
	Cursor Cursor
	// Changed is false for idempotent commands that leave the cursor as it was.
	Changed       bool
	SlideChanged  bool
	StatusChanged bool
	ResetScores   bool
}

// Ended reports whether the transition ended the session.
func (o Outcome) Ended() bool {
	return o.StatusChanged && o.Cursor.Status == domain.StatusEnded
}

// Transition validates cmd against the cursor and returns the next cursor.
// It never mutates anything; rejected commands return domain.ErrInvalidTransition.
func Transition(c Cursor, cmd Command, slides []domain.Slide, nav NavigationPolicy) (Outcome, error) {
	if c.Status == domain.StatusEnded {
		return Outcome{Cursor: c}, domain.ErrSessionEnded
	}
	if nav == nil {
		nav = SequentialNavigation
	}

	next := c
	out := Outcome{Cursor: c}
	switch cmd.Kind {
	case CmdStart:
		if c.Status != domain.StatusWaiting {
			return out, invalid(cmd, c)
		}
		next.Status = domain.StatusActive
		out.StatusChanged = true

	case CmdPause:
		if c.Status != domain.StatusActive {
			return out, invalid(cmd, c)
		}
		next.Status = domain.StatusPaused
		out.StatusChanged = true

	case CmdResume:
		if c.Status != domain.StatusPaused {
			return out, invalid(cmd, c)
		}
		next.Status = domain.StatusActive
		out.StatusChanged = true

	case CmdEnd:
		next.Status = domain.StatusEnded
		out.StatusChanged = true

	case CmdShow:
		if c.Status != domain.StatusActive || len(slides) == 0 {
			return out, invalid(cmd, c)
		}
		switch c.SlideState {
		case domain.SlideShow:
			return out, nil
		case domain.SlideNone:
			next.SlideState = domain.SlideShow
			out.SlideChanged = true
		default:
			return out, invalid(cmd, c)
		}

	case CmdLock:
		if c.Status != domain.StatusActive || c.SlideState != domain.SlideShow {
			return out, invalid(cmd, c)
		}
		next.SlideState = domain.SlideLocked

	case CmdReveal:
		if c.Status != domain.StatusActive {
			return out, invalid(cmd, c)
		}
		switch c.SlideState {
		case domain.SlideLocked:
		case domain.SlideShow:
			if !lockOptional(slides, c.SlideIndex) {
				return out, invalid(cmd, c)
			}
		default:
			return out, invalid(cmd, c)
		}
		next.SlideState = domain.SlideReveal

	case CmdNext:
		if c.Status != domain.StatusActive || c.SlideState != domain.SlideReveal {
			return out, invalid(cmd, c)
		}
		target := c.SlideIndex + 1
		if cmd.SlideIndex != nil {
			target = *cmd.SlideIndex
		}
		if !nav(c.SlideIndex, target, len(slides)) {
			return out, invalid(cmd, c)
		}
		if target >= len(slides) {
			next.Status = domain.StatusEnded
			out.StatusChanged = true
			break
		}
		next.SlideIndex = target
		next.SlideState = domain.SlideShow
		out.SlideChanged = true

	case CmdResetScores:
		if c.SlideState == domain.SlideShow {
			return out, invalid(cmd, c)
		}
		out.ResetScores = true

	default:
		return out, fmt.Errorf("%w: unknown command %q", domain.ErrInvalidTransition, cmd.Kind)
	}

	out.Cursor = next
	out.Changed = true
	return out, nil
}

// lockOptional reports whether the slide may skip the locked state.
// Scored slides always lock so late answers cannot move a number participants already saw.
func lockOptional(slides []domain.Slide, idx int) bool {
	if idx < 0 || idx >= len(slides) {
		return false
	}
	slide := slides[idx]
	return !slide.Scored() && slide.LockOptional
}

func invalid(cmd Command, c Cursor) error {
	state := c.SlideState
	if state == domain.SlideNone {
		state = "none"
	}
	return fmt.Errorf("%w: %s while %s/%s", domain.ErrInvalidTransition, cmd.Kind, c.Status, state)
}
