package repository

import (
	"accountmanager/internal/logger"
	"accountmanager/internal/models"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("reset token not found")

type ResetTokenRepo interface {
	// ReplaceForUID удаляет все токены t.UID и сохраняет t одной транзакцией.
	ReplaceForUID(ctx context.Context, t *models.ResetToken) error
	GetBySlugHash(ctx context.Context, slugHash string) (*models.ResetToken, error)
	// Consume атомарно удаляет токен и возвращает его: из конкурентных вызовов
	// с одним slug токен получит только один.
	Consume(ctx context.Context, slugHash string) (*models.ResetToken, error)
	// Restore возвращает забранный токен, если у uid не появилось нового.
	Restore(ctx context.Context, t *models.ResetToken) error
	ListByUID(ctx context.Context, uid string) ([]*models.ResetToken, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByUID(ctx context.Context, uid string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// DBTX — то, что репозиторию нужно от *pgxpool.Pool.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PasswordResetRepository struct {
	db DBTX
}

func NewPasswordResetRepository(db DBTX) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

func (r *PasswordResetRepository) ReplaceForUID(ctx context.Context, t *models.ResetToken) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM password_reset_tokens WHERE uid = $1`, t.UID); err != nil {
		_ = tx.Rollback(ctx)
		logger.Log.Error("Не удалось удалить старые токены сброса", zap.String("uid", t.UID), zap.Error(err))
		return fmt.Errorf("delete reset tokens: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, uid, slug_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.UID, t.SlugHash, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		_ = tx.Rollback(ctx)
		logger.Log.Error("Не удалось сохранить токен сброса", zap.String("uid", t.UID), zap.Error(err))
		return fmt.Errorf("insert reset token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PasswordResetRepository) GetBySlugHash(ctx context.Context, slugHash string) (*models.ResetToken, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, uid, slug_hash, created_at, expires_at
		FROM password_reset_tokens
		WHERE slug_hash = $1
	`, slugHash)

	var t models.ResetToken
	if err := row.Scan(&t.ID, &t.UID, &t.SlugHash, &t.CreatedAt, &t.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *PasswordResetRepository) Consume(ctx context.Context, slugHash string) (*models.ResetToken, error) {
	row := r.db.QueryRow(ctx, `
		DELETE FROM password_reset_tokens
		WHERE slug_hash = $1
		RETURNING id, uid, slug_hash, created_at, expires_at
	`, slugHash)

	var t models.ResetToken
	if err := row.Scan(&t.ID, &t.UID, &t.SlugHash, &t.CreatedAt, &t.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *PasswordResetRepository) Restore(ctx context.Context, t *models.ResetToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, uid, slug_hash, created_at, expires_at)
		SELECT $1::uuid, $2::text, $3::text, $4::timestamptz, $5::timestamptz
		WHERE NOT EXISTS (SELECT 1 FROM password_reset_tokens WHERE uid = $2::text)
	`, t.ID, t.UID, t.SlugHash, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("restore reset token: %w", err)
	}
	return nil
}

func (r *PasswordResetRepository) ListByUID(ctx context.Context, uid string) ([]*models.ResetToken, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, uid, slug_hash, created_at, expires_at
		FROM password_reset_tokens
		WHERE uid = $1
		ORDER BY created_at DESC
	`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ResetToken
	for rows.Next() {
		var t models.ResetToken
		if err := rows.Scan(&t.ID, &t.UID, &t.SlugHash, &t.CreatedAt, &t.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *PasswordResetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM password_reset_tokens WHERE id = $1`, id)
	return err
}

func (r *PasswordResetRepository) DeleteByUID(ctx context.Context, uid string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM password_reset_tokens WHERE uid = $1`, uid)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM password_reset_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
