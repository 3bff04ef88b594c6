package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"live-session-service/internal/domain"
)

// LeaderboardMirror keeps a sorted-set copy of each session's standings for external readers.
// Stored as: ZADD session:{code}:leaderboard {score} {participantID|teamID}
type LeaderboardMirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardMirror(client *redis.Client, ttl time.Duration) *LeaderboardMirror {
	return &LeaderboardMirror{client: client, ttl: ttl}
}

func (m *LeaderboardMirror) StoreLeaderboard(ctx context.Context, code string, entries []domain.LeaderboardEntry) error {
	key := leaderboardKey(code)

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, key)
	for _, entry := range entries {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(entry.Score),
			Member: member(entry),
		})
	}
	if m.ttl > 0 && len(entries) > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Standings returns members ordered by score, highest first.
func (m *LeaderboardMirror) Standings(ctx context.Context, code string) ([]redis.Z, error) {
	return m.client.ZRevRangeWithScores(ctx, leaderboardKey(code), 0, -1).Result()
}

func member(entry domain.LeaderboardEntry) string {
	if entry.ParticipantID != "" {
		return entry.ParticipantID
	}
	return entry.TeamID
}

func leaderboardKey(code string) string {
	return "session:" + code + ":leaderboard"
}
