package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/tronity-connector/internal/api/tronity"
)

// TokenRepository 令牌数据仓库
type TokenRepository struct {
	db *DB
}

// NewTokenRepository 创建令牌仓库
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// LoadToken 读取令牌
func (r *TokenRepository) LoadToken(ctx context.Context, id string) (*tronity.Token, error) {
	query := `SELECT access_token, refresh_token, expires_at FROM tokens WHERE id = $1`

	token := &tronity.Token{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(&token.AccessToken, &token.RefreshToken, &token.Expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tronity.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return token, nil
}

// SaveToken 保存令牌
func (r *TokenRepository) SaveToken(ctx context.Context, id string, token *tronity.Token) error {
	query := `
		INSERT INTO tokens (id, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Pool.Exec(ctx, query, id, token.AccessToken, token.RefreshToken, token.Expiry, time.Now())
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}
