package services

import (
	"accountmanager/internal/config"
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailService struct {
	auth     smtp.Auth
	from     string
	host     string
	port     string
	sendMail sendMailFunc
}

func NewEmailService(cfg *config.Config) *EmailService {
	var auth smtp.Auth
	// без пароля сервер принимает письма без AUTH (локальный relay)
	if cfg.SMTPPassword != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &EmailService{
		auth:     auth,
		from:     cfg.MailFrom,
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		sendMail: smtp.SendMail,
	}
}

// SendMultipart отправляет письмо multipart/alternative с текстовой и HTML частями.
func (s *EmailService) SendMultipart(to []string, subject, textBody, htmlBody string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for _, part := range []struct{ contentType, content string }{
		{"text/plain; charset=\"utf-8\"", textBody},
		{"text/html; charset=\"utf-8\"", htmlBody},
	} {
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return err
		}
		if _, err := pw.Write([]byte(part.content)); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	var msg bytes.Buffer
	s.writeHeaders(&msg, to, subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())

	return s.deliver(to, msg.Bytes())
}

func (s *EmailService) writeHeaders(msg *bytes.Buffer, to []string, subject string) {
	msg.WriteString("From: " + s.from + "\r\n")
	msg.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	msg.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
}

func (s *EmailService) deliver(to []string, msg []byte) error {
	if s.host == "" {
		return fmt.Errorf("smtp host is not configured")
	}
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.sendMail(addr, s.auth, s.from, to, msg)
}
