package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"live-session-service/internal/domain"
)

// PresentationLoader fetches presentations from a backing store.
type PresentationLoader interface {
	LoadPresentation(ctx context.Context, id string) (domain.Presentation, error)
}

// PresentationRepository caches presentations with TTL to avoid repeated DB hits.
type PresentationRepository struct {
	loader PresentationLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedPresentation
}

type cachedPresentation struct {
	presentation domain.Presentation
	expiresAt    time.Time
}

func NewPresentationRepository(loader PresentationLoader, ttl time.Duration) *PresentationRepository {
	return &PresentationRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedPresentation),
	}
}

func (r *PresentationRepository) GetPresentation(ctx context.Context, id string) (domain.Presentation, error) {
	if p, ok := r.lookup(id); ok {
		return p, nil
	}

	result, err, _ := r.sf.Do(id, func() (interface{}, error) {
		if p, ok := r.lookup(id); ok {
			return p, nil
		}
		p, err := r.loader.LoadPresentation(ctx, id)
		if err != nil {
			return domain.Presentation{}, err
		}

		expiresAt := r.clock().Add(r.ttlWithJitter())
		r.mu.Lock()
		r.cache[id] = cachedPresentation{presentation: p, expiresAt: expiresAt}
		r.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return domain.Presentation{}, err
	}
	return result.(domain.Presentation), nil
}

func (r *PresentationRepository) lookup(id string) (domain.Presentation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[id]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Presentation{}, false
	}
	return entry.presentation, true
}

// ttlWithJitter adds up to 10% so entries loaded together do not expire together.
// Only called under the singleflight key, but rnd is shared across keys.
func (r *PresentationRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticPresentationLoader serves presentations from a map (demos and tests).
type StaticPresentationLoader struct {
	presentations map[string]domain.Presentation
}

func NewStaticPresentationLoader(presentations map[string]domain.Presentation) *StaticPresentationLoader {
	return &StaticPresentationLoader{presentations: presentations}
}

func (l *StaticPresentationLoader) LoadPresentation(_ context.Context, id string) (domain.Presentation, error) {
	if p, ok := l.presentations[id]; ok {
		return p, nil
	}
	return domain.Presentation{}, domain.ErrPresentationNotFound
}
