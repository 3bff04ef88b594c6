package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"live-session-service/internal/client"
	"live-session-service/internal/domain"
)

// NewJoinCmd joins a session as a terminal participant. Each line typed on stdin is
// submitted as the answer to the slide currently shown.
func NewJoinCmd() *cobra.Command {
	var url, code, name string
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a session from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runJoin(cmd.Context(), url, code, name, os.Stdin, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://localhost:8080/ws", "websocket endpoint")
	cmd.Flags().StringVar(&code, "code", "", "6-digit session code")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// participantView tracks what the terminal needs to turn a typed line into an answer.
type participantView struct {
	mu          sync.Mutex
	code        string
	participant string
	slideID     string
	open        bool
	shownAt     time.Time
	lost        bool
}

type lineAction int

const (
	lineAnswer lineAction = iota
	lineClosed
	lineReconnect
)

// input decides what a typed line means. While the connection is given up on,
// "r" asks for a new connection and anything else is refused.
func (v *participantView) input(text string) (lineAction, map[string]any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lost {
		if strings.EqualFold(text, "r") {
			return lineReconnect, nil
		}
		return lineClosed, nil
	}
	if !v.open || v.slideID == "" {
		return lineClosed, nil
	}
	return lineAnswer, map[string]any{
		"sessionCode": v.code,
		"slideId":     v.slideID,
		"answer":      text,
		"timeSpent":   time.Since(v.shownAt).Milliseconds(),
	}
}

func (v *participantView) setLost(lost bool) {
	v.mu.Lock()
	v.lost = lost
	v.mu.Unlock()
}

func (v *participantView) isLost() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lost
}

func (v *participantView) rejoin(code, name string) map[string]any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return map[string]any{"code": code, "name": name, "participantId": v.participant}
}

func runJoin(ctx context.Context, url, code, name string, in io.Reader, out io.Writer, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := client.New(client.Options{URL: url, Logger: logger}, nil)
	view := &participantView{code: code}
	ended := make(chan struct{})
	var endOnce sync.Once

	m.Subscribe(client.EventConnectionStatus, func(raw json.RawMessage) {
		var p client.StatusPayload
		if json.Unmarshal(raw, &p) == nil {
			fmt.Fprintf(out, "[connection] %s %s\n", p.Status, p.Error)
			switch p.Status {
			case client.StatusError:
				view.setLost(true)
				fmt.Fprintln(out, "connection lost, press r to reconnect")
			case client.StatusConnected:
				view.setLost(false)
				// Rejoin with the same id after a reconnect so score and answers carry over.
				if p.Attempt > 0 {
					payload := view.rejoin(code, name)
					go func() {
						_ = m.Send("join-session", payload)
					}()
				}
			}
		}
	})
	m.Subscribe("joined-session", func(raw json.RawMessage) {
		var p struct {
			Participant domain.Participant `json:"participant"`
			Snapshot    domain.Snapshot    `json:"snapshot"`
		}
		if json.Unmarshal(raw, &p) != nil {
			return
		}
		view.mu.Lock()
		view.participant = p.Participant.ID
		if p.Snapshot.CurrentSlide != nil {
			view.slideID = p.Snapshot.CurrentSlide.ID
			view.open = p.Snapshot.SlideState == domain.SlideShow
			view.shownAt = time.Now()
		}
		view.mu.Unlock()
		fmt.Fprintf(out, "joined %s as %s (score %d)\n", code, p.Participant.Name, p.Participant.Score)
	})
	m.Subscribe("slide-changed", func(raw json.RawMessage) {
		var p struct {
			Slide      domain.Slide `json:"slide"`
			SlideIndex int          `json:"slideIndex"`
		}
		if json.Unmarshal(raw, &p) != nil {
			return
		}
		view.mu.Lock()
		view.slideID = p.Slide.ID
		view.shownAt = time.Now()
		view.mu.Unlock()
		fmt.Fprintf(out, "\nslide %d: %s\n", p.SlideIndex+1, p.Slide.Prompt)
		for _, o := range p.Slide.Options {
			fmt.Fprintf(out, "  %s) %s\n", o.ID, o.Text)
		}
	})
	m.Subscribe("slide:state", func(raw json.RawMessage) {
		var p struct {
			State domain.SlideState `json:"state"`
		}
		if json.Unmarshal(raw, &p) != nil {
			return
		}
		view.mu.Lock()
		view.open = p.State == domain.SlideShow
		view.mu.Unlock()
		fmt.Fprintf(out, "[%s]\n", p.State)
	})
	m.Subscribe("answer-confirmed", func(raw json.RawMessage) {
		var p struct {
			IsCorrect    bool `json:"isCorrect"`
			PointsEarned int  `json:"pointsEarned"`
			Score        int  `json:"score"`
		}
		if json.Unmarshal(raw, &p) == nil {
			fmt.Fprintf(out, "answer recorded: +%d (score %d)\n", p.PointsEarned, p.Score)
		}
	})
	m.Subscribe("leaderboard:update", func(raw json.RawMessage) {
		var p struct {
			Entries []domain.LeaderboardEntry `json:"entries"`
		}
		if json.Unmarshal(raw, &p) != nil {
			return
		}
		for _, e := range p.Entries {
			fmt.Fprintf(out, "  #%d %s %d\n", e.Rank, e.Name, e.Score)
		}
	})
	m.Subscribe("error", func(raw json.RawMessage) {
		fmt.Fprintf(out, "error: %s\n", raw)
	})
	m.Subscribe("session-ended", func(json.RawMessage) {
		fmt.Fprintln(out, "session ended")
		endOnce.Do(func() { close(ended) })
	})

	if err := m.Connect(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer m.Disconnect()
	if err := m.Send("join-session", map[string]any{"code": code, "name": name}); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			_ = m.Send("leave-session", nil)
			return nil
		case <-ended:
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if line == "" {
				continue
			}
			action, payload := view.input(line)
			switch action {
			case lineReconnect:
				if err := m.Connect(context.WithoutCancel(ctx)); err != nil {
					fmt.Fprintf(out, "reconnect failed: %v\n", err)
					continue
				}
				if err := m.Send("join-session", view.rejoin(code, name)); err != nil {
					fmt.Fprintf(out, "rejoin failed: %v\n", err)
				}
			case lineClosed:
				if view.isLost() {
					fmt.Fprintln(out, "not connected, press r to reconnect")
				} else {
					fmt.Fprintln(out, "answers are closed")
				}
			case lineAnswer:
				if err := m.Send("submit-answer", payload); err != nil {
					fmt.Fprintf(out, "send failed: %v\n", err)
				}
			}
		}
	}
}
