package helpers

import (
	"fmt"

	"github.com/microcosm-cc/bluemonday"
)

// в письмо попадают значения из каталога и конфига, разметку из них вырезаем
var strictPolicy = bluemonday.StrictPolicy()

// ResetMail — данные для письма со ссылкой на сброс пароля.
type ResetMail struct {
	Account string // адрес учётки, для которой запрошен сброс
	Link    string // одноразовая ссылка
	Reset   string // страница, где можно запросить новую ссылку
	Site    string
	From    string
	Phone   string
	TTL     string // например "24 hours"
}

func BuildResetSubject(m ResetMail) string {
	return "Password reset for " + m.Account
}

func BuildResetText(m ResetMail) string {
	return fmt.Sprintf(`Someone has requested that the password for your account %s be reset.

If you didn't make this request, you can disregard this email.

If you did make this request, you can reset your password any time in the next %s by following this link:

    %s

If you miss this window, don't worry. You can just request a new password reset here:

    %s

%s
%s
%s
`, m.Account, m.TTL, m.Link, m.Reset, m.Site, m.From, m.Phone)
}

func BuildResetHTML(m ResetMail) string {
	e := strictPolicy.Sanitize
	return fmt.Sprintf(`
<html>
  <body style="font-family:Arial,sans-serif; background:#f9f9f9;">
    <table width="100%%" cellpadding="0" cellspacing="0" bgcolor="#f9f9f9">
      <tr>
        <td align="center" style="padding:32px 0;">
          <table width="500" bgcolor="#fff" cellpadding="24" cellspacing="0" style="border-radius:8px; box-shadow:0 1px 6px #eee;">
            <tr>
              <td>
                <p style="font-size:16px; color:#222;">Someone has requested that the password for your account <strong>%s</strong> be reset.</p>
                <p style="font-size:16px; color:#222;">If you didn't make this request, you can disregard this email.</p>
                <p style="font-size:16px; color:#222; margin-top:40px;">
                  If you did make this request, you can <strong>reset your password</strong>
                  any time in the next <em>%s</em> by following this link:
                </p>
                <p><a href="%s" style="display:inline-block;padding:12px 24px;background:#2d74da;color:#fff;text-decoration:none;border-radius:6px;font-weight:600;">%s</a></p>
                <p style="font-style:italic; margin-top:40px;">
                  If you miss this window, don't worry. You can just request a new password reset <a href="%s">here</a>.
                </p>
                <hr style="margin:32px 0 16px 0; border:0; border-top:1px solid #eee;">
                <div style="font-size:12px; color:#999;">
                  <a href="%s">%s</a><br>
                  <a href="mailto:%s">%s</a><br>
                  %s
                </div>
              </td>
            </tr>
          </table>
        </td>
      </tr>
    </table>
  </body>
</html>
`, e(m.Account), e(m.TTL), e(m.Link), e(m.Link), e(m.Reset), e(m.Site), e(m.Site), e(m.From), e(m.From), e(m.Phone))
}
