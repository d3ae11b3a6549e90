package services

import (
	"accountmanager/internal/config"
	"accountmanager/internal/logger"
	"accountmanager/internal/models"
	helpers "accountmanager/internal/utils/helpers"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrMailDelivery означает, что письмо не ушло. Токен при этом уже создан,
// решение об откате остаётся за вызывающим.
var ErrMailDelivery = errors.New("mail delivery failed")

type MailSender interface {
	SendMultipart(to []string, subject, textBody, htmlBody string) error
}

// AddressBook отдаёт почтовые адреса учётки (реализуется AccountService).
type AddressBook interface {
	Mail(ctx context.Context, uid string) (string, error)
	ForwardingAddress(ctx context.Context, uid string) (string, error)
}

type Notifier struct {
	book   AddressBook
	sender MailSender
	from   string
	phone  string
	site   string
	ttl    time.Duration
}

func NewNotifier(book AddressBook, sender MailSender, cfg *config.Config) *Notifier {
	return &Notifier{
		book:   book,
		sender: sender,
		from:   cfg.MailFrom,
		phone:  cfg.MailPhone,
		site:   cfg.MailSite,
		ttl:    cfg.ResetTTL(),
	}
}

// Reset отправляет ссылку url/slug на адрес пересылки владельца токена.
func (n *Notifier) Reset(ctx context.Context, url string, token *models.ResetToken) (ResetOutcome, error) {
	log := logger.WithCtx(ctx).With(zap.String("uid", token.UID))

	to, err := n.book.ForwardingAddress(ctx, token.UID)
	if err != nil {
		return 0, err
	}
	if to == "" {
		log.Info("Нет адреса пересылки, письмо не отправлено")
		return ResetNoForwardingAddress, nil
	}

	account, err := n.book.Mail(ctx, token.UID)
	if err != nil {
		return 0, err
	}
	if account == "" {
		account = token.UID
	}

	base := strings.TrimRight(url, "/")
	m := helpers.ResetMail{
		Account: account,
		Link:    base + "/" + token.Slug,
		Reset:   base,
		Site:    n.site,
		From:    n.from,
		Phone:   n.phone,
		TTL:     humanizeTTL(n.ttl),
	}

	if err := n.sender.SendMultipart([]string{to}, helpers.BuildResetSubject(m), helpers.BuildResetText(m), helpers.BuildResetHTML(m)); err != nil {
		log.Error("Ошибка отправки письма для сброса пароля", zap.String("to", to), zap.Error(err))
		return 0, fmt.Errorf("%w: %v", ErrMailDelivery, err)
	}

	log.Info("Письмо со ссылкой на сброс пароля отправлено", zap.String("to", to))
	return ResetSuccess, nil
}

func humanizeTTL(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
