package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"live-session-service/internal/domain"
)

func TestPresentationRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		PresentationLoader: NewStaticPresentationLoader(map[string]domain.Presentation{
			"deck-1": samplePresentation(),
		}),
	}
	repo := NewPresentationRepository(loader, time.Minute)

	if _, err := repo.GetPresentation(context.Background(), "deck-1"); err != nil {
		t.Fatalf("get presentation: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	p, err := repo.GetPresentation(context.Background(), "deck-1")
	if err != nil {
		t.Fatalf("get presentation 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
	if len(p.Slides) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(p.Slides))
	}
}

func TestPresentationRepositoryExpires(t *testing.T) {
	loader := &countingLoader{
		PresentationLoader: NewStaticPresentationLoader(map[string]domain.Presentation{
			"deck-1": samplePresentation(),
		}),
	}
	repo := NewPresentationRepository(loader, time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	if _, err := repo.GetPresentation(context.Background(), "deck-1"); err != nil {
		t.Fatalf("get presentation: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetPresentation(context.Background(), "deck-1"); err != nil {
		t.Fatalf("get presentation after ttl: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}
}

func TestPresentationRepositoryNotFound(t *testing.T) {
	repo := NewPresentationRepository(NewStaticPresentationLoader(nil), time.Minute)
	_, err := repo.GetPresentation(context.Background(), "missing")
	if !errors.Is(err, domain.ErrPresentationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type countingLoader struct {
	PresentationLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadPresentation(ctx context.Context, id string) (domain.Presentation, error) {
	l.calls.Add(1)
	return l.PresentationLoader.LoadPresentation(ctx, id)
}

func samplePresentation() domain.Presentation {
	return domain.Presentation{
		ID:    "deck-1",
		Title: "Friday quiz",
		Slides: []domain.Slide{
			{
				ID:              "s1",
				Kind:            domain.KindTrivia,
				Prompt:          "What is 2 + 2?",
				Options:         []domain.Option{{ID: "A", Text: "3"}, {ID: "B", Text: "4"}},
				CorrectOptionID: "B",
				TimeLimitMs:     20000,
			},
			{
				ID:      "s2",
				Kind:    domain.KindPoll,
				Prompt:  "Favourite colour?",
				Options: []domain.Option{{ID: "red"}, {ID: "blue"}},
			},
		},
	}
}
