package helpers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildResetMail(t *testing.T) {
	m := ResetMail{
		Account: "aa729@example.com",
		Link:    "https://accounts.example.com/reset/abc?x=1&y=2",
		Reset:   "https://accounts.example.com/reset",
		Site:    "https://example.com",
		From:    "help@example.com",
		Phone:   "(805) 555-0100",
		TTL:     "24 hours",
	}

	assert.Equal(t, "Password reset for aa729@example.com", BuildResetSubject(m))

	text := BuildResetText(m)
	assert.Contains(t, text, "account aa729@example.com be reset")
	assert.Contains(t, text, "    https://accounts.example.com/reset/abc?x=1&y=2\n")
	assert.Contains(t, text, "next 24 hours")

	body := BuildResetHTML(m)
	assert.Contains(t, body, `href="https://accounts.example.com/reset/abc?x=1&amp;y=2"`)
	assert.Contains(t, body, "mailto:help@example.com")
	assert.False(t, strings.Contains(body, "%!"), "format verbs must all be consumed")
}

func TestBuildResetHTML_StripsMarkup(t *testing.T) {
	body := BuildResetHTML(ResetMail{Account: `<script>alert(1)</script>aa729@example.com`, Phone: `<b>555</b>`})
	assert.NotContains(t, body, "<script>")
	assert.NotContains(t, body, "<b>555</b>")
	assert.Contains(t, body, "aa729@example.com")
	assert.Contains(t, body, "555")
}
