package directory

import (
	"accountmanager/internal/config"
	"accountmanager/internal/logger"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// conn is the subset of *ldap.Conn we use; tests replace it.
type conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Modify(req *ldap.ModifyRequest) error
	Close()
}

type dialer func(ctx context.Context) (conn, error)

type LDAPClient struct {
	baseDN        string
	bindDNFormat  string
	adminDN       string
	adminPassword string
	dial          dialer
}

func NewLDAPClient(cfg *config.Config) *LDAPClient {
	url := cfg.LDAPURL()
	timeout := cfg.LDAPTimeoutDuration()

	return &LDAPClient{
		baseDN:        cfg.LDAPBaseDN,
		bindDNFormat:  cfg.LDAPBindDNFormat,
		adminDN:       cfg.LDAPAdminBindDN,
		adminPassword: cfg.LDAPAdminPassword,
		dial: func(ctx context.Context) (conn, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			c, err := ldap.DialURL(url, ldap.DialWithDialer(&net.Dialer{Timeout: timeout}))
			if err != nil {
				return nil, err
			}
			c.SetTimeout(timeout)
			return goLDAPConn{c: c}, nil
		},
	}
}

func (c *LDAPClient) BindDN(uid string) string {
	return fmt.Sprintf(c.bindDNFormat, uid)
}

func (c *LDAPClient) Bind(ctx context.Context, dn, password string) (bool, error) {
	// пустой пароль — это anonymous bind, он «успешен» всегда
	if password == "" {
		return false, nil
	}

	lc, err := c.open(ctx)
	if err != nil {
		return false, err
	}
	defer lc.Close()

	if err := lc.Bind(dn, password); err != nil {
		if isCredentialError(err) {
			logger.WithCtx(ctx).Debug("LDAP bind отклонён", zap.String("dn", dn), zap.Error(err))
			return false, nil
		}
		return false, mapError(err)
	}
	return true, nil
}

func (c *LDAPClient) Search(ctx context.Context, filter string, attributes ...string) ([]*Entry, error) {
	var entries []*Entry
	err := c.WithAdminSession(ctx, func(s Session) error {
		var err error
		entries, err = s.Search(ctx, filter, attributes...)
		return err
	})
	return entries, err
}

func (c *LDAPClient) Modify(ctx context.Context, dn string, ops []Operation) error {
	return c.WithAdminSession(ctx, func(s Session) error {
		return s.Modify(ctx, dn, ops)
	})
}

func (c *LDAPClient) WithAdminSession(ctx context.Context, fn func(Session) error) error {
	return c.WithSession(ctx, c.adminDN, c.adminPassword, fn)
}

func (c *LDAPClient) WithSession(ctx context.Context, dn, password string, fn func(Session) error) error {
	if password == "" {
		return ErrInvalidCredentials
	}

	lc, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer lc.Close()

	if err := lc.Bind(dn, password); err != nil {
		if isCredentialError(err) {
			return ErrInvalidCredentials
		}
		return mapError(err)
	}

	return fn(&ldapSession{conn: lc, baseDN: c.baseDN})
}

func (c *LDAPClient) open(ctx context.Context) (conn, error) {
	start := time.Now()
	lc, err := c.dial(ctx)
	if err != nil {
		logger.WithCtx(ctx).Error("Не удалось подключиться к LDAP", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return lc, nil
}

type ldapSession struct {
	conn   conn
	baseDN string
}

func (s *ldapSession) Search(ctx context.Context, filter string, attributes ...string) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := ldap.NewSearchRequest(
		s.baseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		attributes,
		nil,
	)
	res, err := s.conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, nil
		}
		return nil, mapError(err)
	}

	entries := make([]*Entry, 0, len(res.Entries))
	for _, e := range res.Entries {
		entries = append(entries, fromLDAP(e))
	}
	return entries, nil
}

func (s *ldapSession) Modify(ctx context.Context, dn string, ops []Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	return mapError(s.conn.Modify(toModifyRequest(dn, ops)))
}

func toModifyRequest(dn string, ops []Operation) *ldap.ModifyRequest {
	req := ldap.NewModifyRequest(dn, nil)
	for _, op := range ops {
		values := op.Values
		if values == nil {
			values = []string{}
		}
		switch op.Kind {
		case Delete:
			req.Delete(op.Attribute, values)
		default:
			req.Replace(op.Attribute, values)
		}
	}
	return req
}

func fromLDAP(e *ldap.Entry) *Entry {
	attrs := make(map[string][]string, len(e.Attributes))
	for _, a := range e.Attributes {
		attrs[a.Name] = a.Values
	}
	return NewEntry(e.DN, attrs)
}

func isCredentialError(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultUnwillingToPerform)
}

// mapError переводит *ldap.Error в наши типы: коды результата -> *ResultError,
// сетевые -> ErrUnavailable.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var lerr *ldap.Error
	if !errors.As(err, &lerr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if lerr.ResultCode == ldap.ErrorNetwork {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	msg := ldap.LDAPResultCodeMap[lerr.ResultCode]
	if lerr.Err != nil && lerr.Err.Error() != "" {
		msg = lerr.Err.Error()
	}
	return &ResultError{Code: int(lerr.ResultCode), Message: msg}
}

type goLDAPConn struct {
	c *ldap.Conn
}

func (g goLDAPConn) Bind(username, password string) error {
	return g.c.Bind(username, password)
}

func (g goLDAPConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	return g.c.Search(req)
}

func (g goLDAPConn) Modify(req *ldap.ModifyRequest) error {
	return g.c.Modify(req)
}

func (g goLDAPConn) Close() {
	g.c.Close()
}
