package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

func (s *Store) GetUserByToken(ctx context.Context, token string) (*User, error) {
	hash := HashToken(token)
	row := s.Pool.QueryRow(ctx, `SELECT id, name, token_hash, is_guest, rating, xp, level, created_at FROM users WHERE token_hash = $1`, hash)
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.TokenHash, &u.IsGuest, &u.Rating, &u.XP, &u.Level, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, name, token string, initial int64) (string, error) {
	id := NewID()
	hash := HashToken(token)
	_, err := s.Pool.Exec(ctx, `INSERT INTO users (id, name, token_hash, is_guest, rating, xp, level) VALUES ($1,$2,$3,false,1000,0,1)`, id, name, hash)
	if err != nil {
		return "", err
	}
	if err := s.EnsureAccount(ctx, id, initial); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) GetProgression(ctx context.Context, userID string) (*Progression, error) {
	row := s.Pool.QueryRow(ctx, `SELECT rating, xp, level FROM users WHERE id = $1`, userID)
	var p Progression
	if err := row.Scan(&p.Rating, &p.XP, &p.Level); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetQuestProgress(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.Pool.Query(ctx, `SELECT quest_id, progress FROM user_quests WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var questID string
		var progress int
		if err := rows.Scan(&questID, &progress); err != nil {
			return nil, err
		}
		out[questID] = progress
	}
	return out, rows.Err()
}
