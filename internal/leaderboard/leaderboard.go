package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	ratingKey     = "leaderboard:rating"
	playerNameKey = "leaderboard:name:"
)

// Leaderboard mirrors the postgres ratings into a redis sorted set so the
// public top-N read never touches the database. Postgres stays the source
// of truth; a missed write here self-heals on the player's next settled
// match.
type Leaderboard struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Leaderboard {
	return &Leaderboard{rdb: rdb}
}

// Entry is one row of the public ranking.
type Entry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
}

// RecordRating upserts the player's current rating and display name.
func (l *Leaderboard) RecordRating(ctx context.Context, userID, name string, rating int) error {
	pipe := l.rdb.Pipeline()
	pipe.ZAdd(ctx, ratingKey, redis.Z{Score: float64(rating), Member: userID})
	pipe.Set(ctx, playerNameKey+userID, name, 0)
	_, err := pipe.Exec(ctx)
	return err
}

// TopN returns the highest-rated players, best first.
func (l *Leaderboard) TopN(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := l.rdb.ZRevRangeWithScores(ctx, ratingKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard range: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for i, row := range rows {
		userID, ok := row.Member.(string)
		if !ok {
			continue
		}
		name, err := l.rdb.Get(ctx, playerNameKey+userID).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("leaderboard name: %w", err)
		}
		entries = append(entries, Entry{
			Rank:   i + 1,
			UserID: userID,
			Name:   name,
			Rating: int(row.Score),
		})
	}
	return entries, nil
}

// Rank returns the player's 1-based rank, or 0 when unranked.
func (l *Leaderboard) Rank(ctx context.Context, userID string) (int, error) {
	rank, err := l.rdb.ZRevRank(ctx, ratingKey, userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return int(rank) + 1, nil
}
