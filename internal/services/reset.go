package services

import (
	"accountmanager/internal/config"
	"accountmanager/internal/logger"
	"accountmanager/internal/models"
	"accountmanager/internal/repository"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SlugLength is the number of hex characters in a reset link slug.
const SlugLength = 32

var (
	ErrTokenNotFound = errors.New("reset token not found")
	ErrTokenExpired  = errors.New("reset token expired")
)

// ResetNotifier доставляет ссылку на сброс владельцу токена.
type ResetNotifier interface {
	Reset(ctx context.Context, url string, token *models.ResetToken) (ResetOutcome, error)
}

type ResetTokenService struct {
	repo     repository.ResetTokenRepo
	accounts *AccountService
	notifier ResetNotifier
	ttl      time.Duration
	now      func() time.Time
}

func NewResetTokenService(repo repository.ResetTokenRepo, accounts *AccountService, notifier ResetNotifier, cfg *config.Config) *ResetTokenService {
	return &ResetTokenService{
		repo:     repo,
		accounts: accounts,
		notifier: notifier,
		ttl:      cfg.ResetTTL(),
		now:      time.Now,
	}
}

func (s *ResetTokenService) WithClock(now func() time.Time) *ResetTokenService {
	s.now = now
	return s
}

// RequestReset выпускает новый токен для uid (все прежние удаляются)
// и отправляет ссылку baseURL/slug на адрес пересылки.
//
// Адрес пересылки проверяется до записи токена, поэтому
// ResetNoForwardingAddress не оставляет следов. Ошибка доставки письма
// оборачивает ErrMailDelivery; токен при этом остаётся.
func (s *ResetTokenService) RequestReset(ctx context.Context, baseURL, uid string) (ResetOutcome, error) {
	log := logger.WithCtx(ctx).With(zap.String("uid", uid))
	log.Info("Запрос на сброс пароля")

	exists, err := s.accounts.Exists(ctx, uid)
	if err != nil {
		return 0, err
	}
	if !exists {
		return ResetNoSuchAccount, nil
	}

	activated, err := s.accounts.Activated(ctx, uid)
	if err != nil {
		return 0, err
	}
	if !activated {
		return ResetAccountInactive, nil
	}

	to, err := s.accounts.ForwardingAddress(ctx, uid)
	if err != nil {
		return 0, err
	}
	if to == "" {
		log.Info("Нет адреса пересылки")
		return ResetNoForwardingAddress, nil
	}

	token, err := s.newToken(uid)
	if err != nil {
		log.Error("Ошибка генерации токена для сброса", zap.Error(err))
		return 0, err
	}
	if err := s.repo.ReplaceForUID(ctx, token); err != nil {
		log.Error("Ошибка сохранения токена сброса пароля", zap.Error(err))
		return 0, fmt.Errorf("save reset token: %w", err)
	}

	outcome, err := s.notifier.Reset(ctx, baseURL, token)
	if err != nil {
		return 0, err
	}
	if outcome == ResetNoForwardingAddress {
		// адрес пропал между проверкой и отправкой
		if err := s.repo.Delete(ctx, token.ID); err != nil {
			log.Warn("Не удалось удалить неотправленный токен", zap.Error(err))
		}
		return outcome, nil
	}

	log.Info("Токен сброса выпущен", zap.Time("expires_at", token.ExpiresAt))
	return outcome, nil
}

func (s *ResetTokenService) newToken(uid string) (*models.ResetToken, error) {
	id := uuid.New()

	seed := make([]byte, 0, len(id)+32)
	seed = append(seed, id[:]...)
	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return nil, err
	}
	seed = append(seed, random...)

	sum := sha256.Sum256(seed)
	slug := hex.EncodeToString(sum[:])[:SlugLength]

	now := s.now().UTC()
	return &models.ResetToken{
		ID:        id,
		UID:       uid,
		Slug:      slug,
		SlugHash:  hashSlug(slug),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}, nil
}

// в базе храним только хеш slug
func hashSlug(slug string) string {
	h := sha256.Sum256([]byte(slug))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

func (s *ResetTokenService) IsExpired(token *models.ResetToken) bool {
	return s.now().After(token.ExpiresAt)
}

// Lookup находит токен по slug из ссылки. Срок действия не проверяется.
func (s *ResetTokenService) Lookup(ctx context.Context, slug string) (*models.ResetToken, error) {
	if len(slug) != SlugLength {
		return nil, ErrTokenNotFound
	}
	t, err := s.repo.GetBySlugHash(ctx, hashSlug(slug))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	t.Slug = slug
	return t, nil
}

// Redeem меняет пароль по ссылке из письма. Токен забирается из хранилища до
// смены пароля, поэтому одной ссылкой пароль меняется не больше одного раза,
// даже при параллельных запросах. Просроченный токен просто не возвращается.
// Если пароль не записан (и учётка существует), токен кладётся обратно.
func (s *ResetTokenService) Redeem(ctx context.Context, slug, newPassword string) (Outcome, error) {
	if len(slug) != SlugLength {
		return 0, ErrTokenNotFound
	}
	t, err := s.repo.Consume(ctx, hashSlug(slug))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrTokenNotFound
		}
		return 0, err
	}
	log := logger.WithCtx(ctx).With(zap.String("uid", t.UID), zap.String("token_id", t.ID.String()))

	if s.IsExpired(t) {
		log.Info("Ссылка на сброс просрочена")
		return 0, ErrTokenExpired
	}

	outcome, err := s.accounts.ChangePassword(ctx, ChangeRequest{
		UID:         t.UID,
		NewPassword: newPassword,
		Reset:       true,
	})
	if err == nil && (outcome.Succeeded() || outcome == NoSuchAccount) {
		return outcome, nil
	}

	if rerr := s.repo.Restore(ctx, t); rerr != nil {
		log.Warn("Не удалось вернуть токен сброса", zap.Error(rerr))
	}
	return outcome, err
}

func (s *ResetTokenService) Invalidate(ctx context.Context, uid string) error {
	n, err := s.repo.DeleteByUID(ctx, uid)
	if err != nil {
		return err
	}
	logger.WithCtx(ctx).Info("Токены сброса удалены", zap.String("uid", uid), zap.Int64("count", n))
	return nil
}

func (s *ResetTokenService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

// StartResetTokenCleaner периодически удаляет просроченные токены до отмены ctx.
func StartResetTokenCleaner(ctx context.Context, svc *ResetTokenService, every time.Duration) {
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := svc.PurgeExpired(ctx)
				if err != nil {
					logger.Log.Error("Не удалось удалить просроченные токены", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Log.Info("Просроченные токены удалены", zap.Int64("count", n))
				}
			}
		}
	}()
}
