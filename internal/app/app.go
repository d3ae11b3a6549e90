package app

import (
	"accountmanager/internal/config"
	"accountmanager/internal/db"
	"accountmanager/internal/directory"
	"accountmanager/internal/handlers"
	"accountmanager/internal/hasher"
	"accountmanager/internal/logger"
	"accountmanager/internal/repository"
	"accountmanager/internal/routes"
	"accountmanager/internal/services"
	"context"
	"fmt"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const cleanerInterval = 1 * time.Hour

// InitApp собирает зависимости и маршруты. Возвращаемая функция освобождает
// ресурсы (пул БД); фоновая чистка токенов живёт до отмены ctx.
func InitApp(ctx context.Context, cfg *config.Config) (*mux.Router, func(), error) {
	cleanup := func() {}

	// Каталог
	var dir directory.Client
	if cfg.LDAPHost == "" && cfg.IsDev() {
		logger.Log.Warn("LDAP_HOST не задан, используется каталог в памяти")
		dir = directory.NewMemory(cfg)
	} else {
		logger.Log.Info("Каталог LDAP", zap.String("url", cfg.LDAPURL()), zap.String("base_dn", cfg.LDAPBaseDN))
		dir = directory.NewLDAPClient(cfg)
	}

	// Хранилище токенов сброса
	var tokens repository.ResetTokenRepo
	if cfg.HasDB() {
		pool, err := db.NewPostgresConnection(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres %s: %w", cfg.GetDSNSafe(), err)
		}
		cleanup = pool.Close
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		tokens = repository.NewPasswordResetRepository(pool)
	} else {
		logger.Log.Warn("БД не настроена, токены сброса хранятся в памяти")
		tokens = repository.NewMemoryResetTokenRepository()
	}

	h, err := newHasher(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	// Сервисы
	accounts := services.NewAccountService(dir, h, cfg)
	emailService := services.NewEmailService(cfg)
	notifier := services.NewNotifier(accounts, emailService, cfg)
	resets := services.NewResetTokenService(tokens, accounts, notifier, cfg)

	// Хендлеры
	passwordHandler := handlers.NewPasswordHandler(accounts, resets, cfg.ResetURL)

	if n, err := resets.PurgeExpired(ctx); err != nil {
		logger.Log.Warn("Не удалось удалить просроченные токены", zap.Error(err))
	} else if n > 0 {
		logger.Log.Info("Просроченные токены удалены", zap.Int64("count", n))
	}
	services.StartResetTokenCleaner(ctx, resets, cleanerInterval)

	// Маршруты
	router := mux.NewRouter()
	routes.InitRoutes(router, passwordHandler)

	return router, cleanup, nil
}

func newHasher(cfg *config.Config) (*hasher.Hasher, error) {
	scheme := hasher.DefaultScheme(cfg.Env)
	if cfg.HashScheme != "" {
		s, err := hasher.ParseScheme(cfg.HashScheme)
		if err != nil {
			return nil, fmt.Errorf("HASH_SCHEME: %w", err)
		}
		scheme = s
	}

	var alphabet string
	switch cfg.SaltAlphabet {
	case "", "alphanumeric":
		alphabet = hasher.AlphanumericAlphabet
	case "crypt":
		alphabet = hasher.CryptAlphabet
	default:
		return nil, fmt.Errorf("SALT_ALPHABET: unknown alphabet %q", cfg.SaltAlphabet)
	}

	logger.Log.Info("Схема хеширования паролей", zap.Stringer("scheme", scheme), zap.String("salt_alphabet", cfg.SaltAlphabet))
	return hasher.New(scheme, cfg.SaltLen(), alphabet), nil
}
