package leaderboard

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestLeaderboard(t *testing.T) (*Leaderboard, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client), mr
}

func TestRecordRatingAndTopN(t *testing.T) {
	lb, _ := newTestLeaderboard(t)
	ctx := context.Background()

	assert.NoError(t, lb.RecordRating(ctx, "u1", "Alice", 1016))
	assert.NoError(t, lb.RecordRating(ctx, "u2", "Bob", 984))
	assert.NoError(t, lb.RecordRating(ctx, "u3", "Cara", 1200))

	entries, err := lb.TopN(ctx, 2)
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "u3", entries[0].UserID)
	assert.Equal(t, "Cara", entries[0].Name)
	assert.Equal(t, 1200, entries[0].Rating)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "u1", entries[1].UserID)
	assert.Equal(t, 2, entries[1].Rank)
}

func TestRecordRatingOverwrites(t *testing.T) {
	lb, _ := newTestLeaderboard(t)
	ctx := context.Background()

	assert.NoError(t, lb.RecordRating(ctx, "u1", "Alice", 1000))
	assert.NoError(t, lb.RecordRating(ctx, "u1", "Alice", 1032))

	entries, err := lb.TopN(ctx, 10)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 1032, entries[0].Rating)
}

func TestRankUnranked(t *testing.T) {
	lb, _ := newTestLeaderboard(t)
	ctx := context.Background()

	rank, err := lb.Rank(ctx, "nobody")
	assert.NoError(t, err)
	assert.Equal(t, 0, rank)

	assert.NoError(t, lb.RecordRating(ctx, "u1", "Alice", 1000))
	assert.NoError(t, lb.RecordRating(ctx, "u2", "Bob", 1100))
	rank, err = lb.Rank(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, 2, rank)
}
