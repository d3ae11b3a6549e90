package services

import (
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  []byte
}

func newTestEmailService(captured *capturedMail) *EmailService {
	cfg := testConfig()
	cfg.SMTPHost = "smtp.example.com"
	s := NewEmailService(cfg)
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*captured = capturedMail{addr: addr, auth: a, from: from, to: to, msg: msg}
		return nil
	}
	return s
}

func TestEmailService_SendMultipart(t *testing.T) {
	var got capturedMail
	s := newTestEmailService(&got)

	err := s.SendMultipart([]string{"aa729@example.org"}, "Password reset for aa729", "plain body", "<p>html body</p>")
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", got.addr)
	assert.Nil(t, got.auth)
	assert.Equal(t, "help@example.com", got.from)
	assert.Equal(t, []string{"aa729@example.org"}, got.to)

	msg, err := mail.ReadMessage(strings.NewReader(string(got.msg)))
	require.NoError(t, err)
	assert.Equal(t, "Password reset for aa729", msg.Header.Get("Subject"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])
	var parts []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(p)
		require.NoError(t, err)
		parts = append(parts, p.Header.Get("Content-Type")+"|"+string(body))
	}
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0], "text/plain"))
	assert.True(t, strings.HasSuffix(parts[0], "plain body"))
	assert.True(t, strings.HasPrefix(parts[1], "text/html"))
}

func TestEmailService_EncodesHeaders(t *testing.T) {
	var got capturedMail
	s := newTestEmailService(&got)

	require.NoError(t, s.SendMultipart([]string{"a@example.com", "b@example.com"}, "Привет", "body", "<p>body</p>"))
	msg, err := mail.ReadMessage(strings.NewReader(string(got.msg)))
	require.NoError(t, err)

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Привет", subject)
	assert.Equal(t, "a@example.com, b@example.com", msg.Header.Get("To"))
}

func TestEmailService_NoHost(t *testing.T) {
	s := NewEmailService(testConfig())
	assert.Error(t, s.SendMultipart([]string{"a@example.com"}, "s", "b", "<p>b</p>"))
}

func TestHumanizeTTL(t *testing.T) {
	assert.Equal(t, "24 hours", humanizeTTL(24*time.Hour))
	assert.Equal(t, "1 hour", humanizeTTL(time.Hour))
	assert.Equal(t, "30 minutes", humanizeTTL(30*time.Minute))
}
