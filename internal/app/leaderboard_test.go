package app_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"live-session-service/internal/app"
	"live-session-service/internal/domain"
)

func TestRankParticipantsSharesTiedRanks(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	participants := []domain.Participant{
		{ID: "d", Name: "Dee", Score: 500, JoinedAt: t0.Add(4 * time.Second)},
		{ID: "a", Name: "Ann", Score: 1500, JoinedAt: t0.Add(3 * time.Second)},
		{ID: "c", Name: "Cid", Score: 1200, JoinedAt: t0.Add(2 * time.Second)},
		{ID: "b", Name: "Ben", Score: 1200, JoinedAt: t0.Add(1 * time.Second)},
	}

	board := app.RankParticipants(participants)
	require.Len(t, board, 4)

	ids := []string{board[0].ParticipantID, board[1].ParticipantID, board[2].ParticipantID, board[3].ParticipantID}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids, "ties go to the earliest joiner")
	ranks := []int{board[0].Rank, board[1].Rank, board[2].Rank, board[3].Rank}
	assert.Equal(t, []int{1, 2, 2, 4}, ranks)

	assert.Equal(t, board, app.RankParticipants(participants), "ranking is deterministic")
}

func TestRankParticipantsBreaksFullTiesByID(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	board := app.RankParticipants([]domain.Participant{
		{ID: "z", JoinedAt: t0},
		{ID: "y", JoinedAt: t0},
	})
	assert.Equal(t, "y", board[0].ParticipantID)
	assert.Equal(t, 1, board[1].Rank)
}

func TestRankTeamsAggregatesMembers(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	teams := []domain.Team{{ID: "red", Name: "Red"}, {ID: "blue", Name: "Blue"}, {ID: "green"}}
	participants := []domain.Participant{
		{ID: "p1", TeamID: "red", Score: 700, JoinedAt: t0.Add(2 * time.Second)},
		{ID: "p2", TeamID: "blue", Score: 1000, JoinedAt: t0.Add(time.Second)},
		{ID: "p3", TeamID: "red", Score: 300, JoinedAt: t0.Add(3 * time.Second)},
		{ID: "p4", Score: 5000, JoinedAt: t0},
	}

	board := app.RankTeams(participants, teams)
	require.Len(t, board, 3)
	assert.Equal(t, domain.LeaderboardEntry{TeamID: "blue", Name: "Blue", Score: 1000, Rank: 1}, board[0])
	assert.Equal(t, domain.LeaderboardEntry{TeamID: "red", Name: "Red", Score: 1000, Rank: 1}, board[1])
	assert.Equal(t, domain.LeaderboardEntry{TeamID: "green", Name: "green", Score: 0, Rank: 3}, board[2])
}

func TestTopAndRankOf(t *testing.T) {
	participants := make([]domain.Participant, 0, 12)
	for i := 0; i < 12; i++ {
		participants = append(participants, domain.Participant{ID: string(rune('a' + i)), Score: 100 * i})
	}
	board := app.RankParticipants(participants)

	top := app.Top(board, 0)
	assert.Len(t, top, domain.DefaultLeaderboardSize)
	assert.Len(t, app.Top(board, 3), 3)
	assert.Len(t, app.Top(board, 50), 12)

	entry, ok := app.RankOf(board, "a")
	require.True(t, ok)
	assert.Equal(t, 12, entry.Rank)
	_, ok = app.RankOf(board, "nobody")
	assert.False(t, ok)
}
