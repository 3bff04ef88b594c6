package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"live-session-service/internal/domain"
)

// PresentationLoader fetches presentations from a backing store.
type PresentationLoader interface {
	LoadPresentation(ctx context.Context, id string) (domain.Presentation, error)
}

// PresentationRepository caches presentations in Redis as JSON and falls back to a loader on a miss.
// Stored as: SET presentation:{id} {json} EX ttl
type PresentationRepository struct {
	client *redis.Client
	loader PresentationLoader
	ttl    time.Duration
	logger *zap.Logger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewPresentationRepository(client *redis.Client, loader PresentationLoader, ttl time.Duration, logger *zap.Logger) *PresentationRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresentationRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *PresentationRepository) GetPresentation(ctx context.Context, id string) (domain.Presentation, error) {
	if p, ok := r.cached(ctx, id); ok {
		return p, nil
	}

	result, err, _ := r.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if p, ok := r.cached(ctx, id); ok {
			return p, nil
		}

		p, err := r.loader.LoadPresentation(ctx, id)
		if err != nil {
			return domain.Presentation{}, err
		}

		data, err := json.Marshal(p)
		if err != nil {
			return domain.Presentation{}, err
		}
		if err := r.client.Set(ctx, r.key(id), data, r.ttlWithJitter()).Err(); err != nil {
			r.logger.Warn("cache presentation failed", zap.String("presentation_id", id), zap.Error(err))
		}
		return p, nil
	})
	if err != nil {
		return domain.Presentation{}, err
	}
	return result.(domain.Presentation), nil
}

// Invalidate drops the cached copy so the next read goes to the loader.
func (r *PresentationRepository) Invalidate(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

func (r *PresentationRepository) cached(ctx context.Context, id string) (domain.Presentation, bool) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("read cached presentation failed", zap.String("presentation_id", id), zap.Error(err))
		}
		return domain.Presentation{}, false
	}
	var p domain.Presentation
	if err := json.Unmarshal(data, &p); err != nil {
		r.logger.Warn("decode cached presentation failed", zap.String("presentation_id", id), zap.Error(err))
		return domain.Presentation{}, false
	}
	return p, true
}

func (r *PresentationRepository) key(id string) string {
	return "presentation:" + id
}

func (r *PresentationRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
