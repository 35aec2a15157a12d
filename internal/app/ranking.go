package app

import (
	"context"
	"sort"

	"quiz-session-service/internal/domain"
)

// RankingAggregator builds the leaderboard of a session.
type RankingAggregator struct {
	sessions SessionRepository
	registry *Registry
}

// Rank orders every participant: scored ones by score desc, then earliest finisher,
// then participant ID; unscored ones follow in join order. The ranking is final once
// the session has ENDED.
func (r *RankingAggregator) Rank(ctx context.Context, sessionID string) (domain.Ranking, error) {
	session, err := r.registry.Get(ctx, sessionID)
	if err != nil {
		return domain.Ranking{}, err
	}
	participants, err := r.sessions.ListParticipants(ctx, sessionID)
	if err != nil {
		return domain.Ranking{}, err
	}
	sortForRanking(participants)

	entries := make([]domain.RankingEntry, len(participants))
	for i, p := range participants {
		entries[i] = domain.RankingEntry{
			Position:      i + 1,
			ParticipantID: p.ID,
			StudentID:     p.StudentID,
			Score:         p.Score,
			FinishedAt:    p.FinishedAt,
			JoinedAt:      p.JoinedAt,
		}
	}
	return domain.Ranking{
		SessionID: session.ID,
		Status:    session.Status,
		Final:     session.Status == domain.StatusEnded,
		Entries:   entries,
	}, nil
}

func sortForRanking(participants []domain.Participant) {
	sort.SliceStable(participants, func(i, j int) bool {
		a, b := participants[i], participants[j]
		aScored, bScored := a.Score != nil && a.FinishedAt != nil, b.Score != nil && b.FinishedAt != nil
		if aScored != bScored {
			return aScored
		}
		if !aScored {
			return joinedBefore(a, b)
		}
		if *a.Score != *b.Score {
			return *a.Score > *b.Score
		}
		if !a.FinishedAt.Equal(*b.FinishedAt) {
			return a.FinishedAt.Before(*b.FinishedAt)
		}
		return a.ID < b.ID
	})
}

func sortByJoinOrder(participants []domain.Participant) {
	sort.SliceStable(participants, func(i, j int) bool {
		return joinedBefore(participants[i], participants[j])
	})
}

func joinedBefore(a, b domain.Participant) bool {
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.ID < b.ID
}
