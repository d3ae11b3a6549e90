package services

import (
	"accountmanager/internal/config"
	"accountmanager/internal/directory"
	"accountmanager/internal/hasher"
	"accountmanager/internal/logger"
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// Атрибуты учётной записи в каталоге.
const (
	AttrUID               = "uid"
	AttrPassword          = "userpassword"
	AttrActivation        = "ituseagreementacceptdate"
	AttrRole              = "nsroledn"
	AttrLock              = "nsaccountlock"
	AttrPasswordChanged   = "passwordchangedate"
	AttrMail              = "mail"
	AttrForwardingAddress = "mailforwardingaddress"
)

const (
	// InactiveValue is stored in the activation attribute of accounts that
	// have never been activated or were deactivated.
	InactiveValue = "activation required"
	// TimestampLayout is the directory generalized time format (UTC).
	TimestampLayout = "20060102150405Z"
)

var reInactive = regexp.MustCompile(regexp.QuoteMeta(InactiveValue))

var ErrAccountNotFound = errors.New("account not found")

// PasswordHasher — то, что сервису нужно от hasher.Hasher.
type PasswordHasher interface {
	Hash(input string, opts ...hasher.Option) (string, error)
}

// ChangeRequest — набор учётных данных одного запроса на смену пароля.
//
// В пользовательском сценарии заполнены UID, OldPassword и NewPassword.
// В админском Admin и AdminPassword заменяют UID/OldPassword как личность,
// от которой делается bind. Reset означает смену по ссылке из письма: пароль
// пишет служебная учётка каталога, старый пароль не нужен.
type ChangeRequest struct {
	UID           string
	NewPassword   string
	OldPassword   string
	Admin         string
	AdminPassword string
	Reset         bool
}

func (r ChangeRequest) userFlow() bool {
	return r.Admin == "" && !r.Reset
}

type AccountService struct {
	dir            directory.Client
	hasher         PasswordHasher
	disabledRoleDN string
	now            func() time.Time
}

func NewAccountService(dir directory.Client, h PasswordHasher, cfg *config.Config) *AccountService {
	return &AccountService{
		dir:            dir,
		hasher:         h,
		disabledRoleDN: cfg.LDAPDisabledRoleDN,
		now:            time.Now,
	}
}

// WithClock подменяет источник времени (для тестов).
func (s *AccountService) WithClock(now func() time.Time) *AccountService {
	s.now = now
	return s
}

func (s *AccountService) lookup(ctx context.Context, uid string) (*directory.Entry, error) {
	if uid == "" {
		return nil, nil
	}
	entries, err := s.dir.Search(ctx, directory.UIDFilter(uid))
	if err != nil {
		return nil, fmt.Errorf("search uid=%s: %w", uid, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

func (s *AccountService) Exists(ctx context.Context, uid string) (bool, error) {
	e, err := s.lookup(ctx, uid)
	return e != nil, err
}

// Activated reports whether the account has a real activation timestamp.
// A missing account or attribute counts as not activated.
func (s *AccountService) Activated(ctx context.Context, uid string) (bool, error) {
	e, err := s.lookup(ctx, uid)
	if err != nil {
		return false, err
	}
	return isActivated(e), nil
}

// Deactivated reports whether both the disabled role and the lock are set.
func (s *AccountService) Deactivated(ctx context.Context, uid string) (bool, error) {
	e, err := s.lookup(ctx, uid)
	if err != nil {
		return false, err
	}
	return s.isDeactivated(e), nil
}

func isActivated(e *directory.Entry) bool {
	v, ok := e.FirstValue(AttrActivation)
	if !ok {
		return false
	}
	return !reInactive.MatchString(v)
}

func (s *AccountService) isDeactivated(e *directory.Entry) bool {
	return e.HasValue(AttrRole, s.disabledRoleDN) && e.Has(AttrLock)
}

// Activate ставит метку активации и снимает блокировку. Уже активированная
// учётка не трогается.
func (s *AccountService) Activate(ctx context.Context, uid string, at time.Time) error {
	e, err := s.lookup(ctx, uid)
	if err != nil {
		return err
	}
	if e == nil {
		return ErrAccountNotFound
	}
	return s.activate(ctx, e, at)
}

func (s *AccountService) activate(ctx context.Context, e *directory.Entry, at time.Time) error {
	if isActivated(e) {
		logger.WithCtx(ctx).Debug("Учётка уже активирована", zap.String("dn", e.DN))
		return nil
	}

	ops := []directory.Operation{directory.ReplaceOp(AttrActivation, formatTimestamp(at))}
	if e.HasValue(AttrRole, s.disabledRoleDN) {
		ops = append(ops, directory.DeleteOp(AttrRole, s.disabledRoleDN))
	}
	if e.Has(AttrLock) {
		ops = append(ops, directory.DeleteOp(AttrLock))
	}

	if err := s.dir.Modify(ctx, e.DN, ops); err != nil {
		logger.WithCtx(ctx).Error("Ошибка активации учётки", zap.String("dn", e.DN), zap.Error(err))
		return fmt.Errorf("activate %s: %w", e.DN, err)
	}
	logger.WithCtx(ctx).Info("Учётка активирована", zap.String("dn", e.DN))
	return nil
}

// Deactivate возвращает учётку в неактивированное состояние.
func (s *AccountService) Deactivate(ctx context.Context, uid string) error {
	e, err := s.lookup(ctx, uid)
	if err != nil {
		return err
	}
	if e == nil {
		return ErrAccountNotFound
	}

	if v, _ := e.FirstValue(AttrActivation); v == InactiveValue && s.isDeactivated(e) {
		logger.WithCtx(ctx).Debug("Учётка уже деактивирована", zap.String("dn", e.DN))
		return nil
	}

	ops := []directory.Operation{
		directory.ReplaceOp(AttrActivation, InactiveValue),
		directory.ReplaceOp(AttrRole, s.disabledRoleDN),
		directory.ReplaceOp(AttrLock, "true"),
	}
	if err := s.dir.Modify(ctx, e.DN, ops); err != nil {
		logger.WithCtx(ctx).Error("Ошибка деактивации учётки", zap.String("dn", e.DN), zap.Error(err))
		return fmt.Errorf("deactivate %s: %w", e.DN, err)
	}
	logger.WithCtx(ctx).Info("Учётка деактивирована", zap.String("dn", e.DN))
	return nil
}

func (s *AccountService) CanBind(ctx context.Context, uid, password string) (bool, error) {
	return s.dir.Bind(ctx, s.dir.BindDN(uid), password)
}

// Mail returns the primary mail address, or "" when the attribute is absent.
func (s *AccountService) Mail(ctx context.Context, uid string) (string, error) {
	return s.attribute(ctx, uid, AttrMail)
}

// ForwardingAddress returns the address reset mail is sent to, or "".
func (s *AccountService) ForwardingAddress(ctx context.Context, uid string) (string, error) {
	return s.attribute(ctx, uid, AttrForwardingAddress)
}

func (s *AccountService) attribute(ctx context.Context, uid, attr string) (string, error) {
	e, err := s.lookup(ctx, uid)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", ErrAccountNotFound
	}
	v, _ := e.FirstValue(attr)
	return v, nil
}

// ChangePassword проверяет учётные данные и записывает новый пароль.
//
// Неактивированная учётка в пользовательском сценарии активируется до bind
// (иначе каталог его не пропустит); если пароль так и не записан, активация
// откатывается. Админский сценарий и сброс по ссылке учётку не активируют.
// Бизнес-исходы возвращаются значением, ошибка означает проблему с каталогом
// или хешированием.
func (s *AccountService) ChangePassword(ctx context.Context, req ChangeRequest) (outcome Outcome, err error) {
	log := logger.WithCtx(ctx).With(
		zap.String("uid", req.UID),
		zap.String("admin", req.Admin),
		zap.Bool("reset", req.Reset),
	)
	log.Info("Запрос на смену пароля")

	at := s.now()

	target, err := s.lookup(ctx, req.UID)
	if err != nil {
		return 0, err
	}
	if target == nil {
		log.Info("Учётка не найдена")
		return NoSuchAccount, nil
	}

	// хешируем до временной активации: отказ хешера не должен трогать каталог
	digest, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		log.Warn("Ошибка хеширования пароля", zap.Error(err))
		return 0, err
	}

	if req.userFlow() && !isActivated(target) {
		if err := s.activate(ctx, target, at); err != nil {
			return 0, err
		}
		defer func() {
			if err == nil && outcome.Succeeded() {
				return
			}
			log.Info("Откат временной активации", zap.Stringer("outcome", outcome))
			if rerr := s.Deactivate(ctx, req.UID); rerr != nil {
				log.Error("Не удалось откатить временную активацию", zap.Error(rerr))
				if err == nil {
					err = fmt.Errorf("rollback activation: %w", rerr)
				}
			}
		}()
	}

	ops := []directory.Operation{
		directory.ReplaceOp(AttrPassword, digest),
		directory.ReplaceOp(AttrPasswordChanged, formatTimestamp(at)),
	}
	write := func(sess directory.Session) error {
		return sess.Modify(ctx, target.DN, ops)
	}

	var werr error
	if req.Reset {
		werr = s.dir.WithAdminSession(ctx, write)
	} else {
		bindDN, bindPassword := s.bindIdentity(req)
		ok, berr := s.dir.Bind(ctx, bindDN, bindPassword)
		if berr != nil {
			return 0, berr
		}
		if !ok {
			log.Info("Неверные учётные данные", zap.String("bind_dn", bindDN))
			return BindFailure, nil
		}
		werr = s.dir.WithSession(ctx, bindDN, bindPassword, write)
	}

	switch {
	case errors.Is(werr, directory.ErrInsufficientAccess):
		log.Warn("Недостаточно прав для смены пароля", zap.Error(werr))
		return NotAdmin, nil
	case errors.Is(werr, directory.ErrInvalidCredentials):
		log.Info("Каталог отклонил bind", zap.Error(werr))
		return BindFailure, nil
	case werr != nil:
		log.Error("Ошибка записи пароля", zap.Error(werr))
		return 0, fmt.Errorf("change password %s: %w", target.DN, werr)
	}

	after, err := s.lookup(ctx, req.UID)
	if err != nil {
		return 0, err
	}
	if !isActivated(after) || s.isDeactivated(after) {
		log.Info("Пароль изменён, учётка не активирована")
		return SuccessInactive, nil
	}

	log.Info("Пароль изменён")
	return Success, nil
}

func (s *AccountService) bindIdentity(req ChangeRequest) (dn, password string) {
	if req.Admin != "" {
		return s.dir.BindDN(req.Admin), req.AdminPassword
	}
	return s.dir.BindDN(req.UID), req.OldPassword
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
