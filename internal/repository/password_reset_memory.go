package repository

import (
	"accountmanager/internal/models"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryResetTokenRepository хранит токены в памяти процесса (dev без БД и тесты).
type MemoryResetTokenRepository struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]models.ResetToken
}

func NewMemoryResetTokenRepository() *MemoryResetTokenRepository {
	return &MemoryResetTokenRepository{tokens: make(map[uuid.UUID]models.ResetToken)}
}

func (r *MemoryResetTokenRepository) ReplaceForUID(ctx context.Context, t *models.ResetToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.tokens {
		if existing.UID == t.UID {
			delete(r.tokens, id)
		}
	}
	stored := *t
	stored.Slug = ""
	r.tokens[t.ID] = stored
	return nil
}

func (r *MemoryResetTokenRepository) GetBySlugHash(ctx context.Context, slugHash string) (*models.ResetToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tokens {
		if t.SlugHash == slugHash {
			found := t
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryResetTokenRepository) Consume(ctx context.Context, slugHash string) (*models.ResetToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, t := range r.tokens {
		if t.SlugHash == slugHash {
			delete(r.tokens, id)
			found := t
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryResetTokenRepository) Restore(ctx context.Context, t *models.ResetToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.tokens {
		if existing.UID == t.UID {
			return nil
		}
	}
	stored := *t
	stored.Slug = ""
	r.tokens[t.ID] = stored
	return nil
}

func (r *MemoryResetTokenRepository) ListByUID(ctx context.Context, uid string) ([]*models.ResetToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.ResetToken
	for _, t := range r.tokens {
		if t.UID == uid {
			found := t
			out = append(out, &found)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryResetTokenRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, id)
	return nil
}

func (r *MemoryResetTokenRepository) DeleteByUID(ctx context.Context, uid string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, t := range r.tokens {
		if t.UID == uid {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryResetTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, t := range r.tokens {
		if t.ExpiresAt.Before(now) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}
