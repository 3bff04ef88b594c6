package app

import (
	"sort"
	"time"

	"live-session-service/internal/domain"
)

type rankable struct {
	entry    domain.LeaderboardEntry
	joinedAt time.Time
	key      string
}

// RankParticipants orders participants by score, then earliest join, then id.
// Equal scores share a rank and the following rank is skipped (1, 2, 2, 4).
func RankParticipants(participants []domain.Participant) []domain.LeaderboardEntry {
	items := make([]rankable, 0, len(participants))
	for _, p := range participants {
		items = append(items, rankable{
			entry: domain.LeaderboardEntry{
				ParticipantID: p.ID,
				TeamID:        p.TeamID,
				Name:          p.Name,
				Score:         p.Score,
			},
			joinedAt: p.JoinedAt,
			key:      p.ID,
		})
	}
	return rank(items)
}

// RankTeams sums member scores per team. A team joins the tie-break with its
// earliest member; teams without members sort after those with members.
func RankTeams(participants []domain.Participant, teams []domain.Team) []domain.LeaderboardEntry {
	byTeam := make(map[string]*rankable, len(teams))
	order := make([]string, 0, len(teams))
	for _, team := range teams {
		name := team.Name
		if name == "" {
			name = team.ID
		}
		byTeam[team.ID] = &rankable{
			entry: domain.LeaderboardEntry{TeamID: team.ID, Name: name},
			key:   team.ID,
		}
		order = append(order, team.ID)
	}

	for _, p := range participants {
		if p.TeamID == "" {
			continue
		}
		item, ok := byTeam[p.TeamID]
		if !ok {
			item = &rankable{
				entry: domain.LeaderboardEntry{TeamID: p.TeamID, Name: p.TeamID},
				key:   p.TeamID,
			}
			byTeam[p.TeamID] = item
			order = append(order, p.TeamID)
		}
		item.entry.Score += p.Score
		if item.joinedAt.IsZero() || p.JoinedAt.Before(item.joinedAt) {
			item.joinedAt = p.JoinedAt
		}
	}

	items := make([]rankable, 0, len(order))
	for _, id := range order {
		items = append(items, *byTeam[id])
	}
	return rank(items)
}

func rank(items []rankable) []domain.LeaderboardEntry {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.entry.Score != b.entry.Score {
			return a.entry.Score > b.entry.Score
		}
		if !a.joinedAt.Equal(b.joinedAt) {
			if a.joinedAt.IsZero() {
				return false
			}
			if b.joinedAt.IsZero() {
				return true
			}
			return a.joinedAt.Before(b.joinedAt)
		}
		return a.key < b.key
	})

	entries := make([]domain.LeaderboardEntry, len(items))
	for i, item := range items {
		entry := item.entry
		entry.Rank = i + 1
		if i > 0 && entry.Score == entries[i-1].Score {
			entry.Rank = entries[i-1].Rank
		}
		entries[i] = entry
	}
	return entries
}

// Top returns the first k entries; k <= 0 uses the default size.
func Top(entries []domain.LeaderboardEntry, k int) []domain.LeaderboardEntry {
	if k <= 0 {
		k = domain.DefaultLeaderboardSize
	}
	if len(entries) <= k {
		return append([]domain.LeaderboardEntry(nil), entries...)
	}
	return append([]domain.LeaderboardEntry(nil), entries[:k]...)
}

// RankOf finds the participant's row in a full individual leaderboard.
func RankOf(entries []domain.LeaderboardEntry, participantID string) (domain.LeaderboardEntry, bool) {
	for _, entry := range entries {
		if entry.ParticipantID == participantID {
			return entry, true
		}
	}
	return domain.LeaderboardEntry{}, false
}
