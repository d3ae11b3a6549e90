package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	bindErr   error
	searchRes *ldap.SearchResult
	searchErr error
	modifyErr error

	binds    []string
	searches []*ldap.SearchRequest
	modifies []*ldap.ModifyRequest
	closed   int
}

func (f *fakeConn) Bind(username, password string) error {
	f.binds = append(f.binds, username)
	return f.bindErr
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.searches = append(f.searches, req)
	return f.searchRes, f.searchErr
}

func (f *fakeConn) Modify(req *ldap.ModifyRequest) error {
	f.modifies = append(f.modifies, req)
	return f.modifyErr
}

func (f *fakeConn) Close() { f.closed++ }

func newFakeClient(fc *fakeConn) *LDAPClient {
	c := NewLDAPClient(testConfig())
	c.dial = func(ctx context.Context) (conn, error) { return fc, nil }
	return c
}

func TestLDAPClient_BindDN(t *testing.T) {
	c := NewLDAPClient(testConfig())
	assert.Equal(t, "uid=aa729,ou=people,dc=example,dc=com", c.BindDN("aa729"))
}

func TestLDAPClient_AdminSessionBindsAsServiceAccount(t *testing.T) {
	fc := &fakeConn{}
	c := newFakeClient(fc)

	require.NoError(t, c.WithAdminSession(context.Background(), func(Session) error { return nil }))
	assert.Equal(t, []string{"cn=admin,dc=example,dc=com"}, fc.binds)
	assert.Equal(t, 1, fc.closed)
}

func TestLDAPClient_Bind(t *testing.T) {
	fc := &fakeConn{}
	c := newFakeClient(fc)

	ok, err := c.Bind(context.Background(), c.BindDN("aa729"), "smada")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, fc.closed)

	fc.bindErr = ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("Invalid Credentials"))
	ok, err = c.Bind(context.Background(), c.BindDN("aa729"), "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, fc.closed)
}

func TestLDAPClient_Bind_EmptyPasswordNeverDials(t *testing.T) {
	c := NewLDAPClient(testConfig())
	c.dial = func(ctx context.Context) (conn, error) {
		t.Fatal("dial must not be called")
		return nil, nil
	}
	ok, err := c.Bind(context.Background(), c.BindDN("aa729"), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLDAPClient_DialFailure(t *testing.T) {
	c := NewLDAPClient(testConfig())
	c.dial = func(ctx context.Context) (conn, error) {
		return nil, ldap.NewError(ldap.ErrorNetwork, errors.New("connection refused"))
	}
	_, err := c.Bind(context.Background(), c.BindDN("aa729"), "smada")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLDAPClient_WithSession(t *testing.T) {
	fc := &fakeConn{bindErr: ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New(""))}
	c := newFakeClient(fc)

	err := c.WithSession(context.Background(), c.BindDN("aa729"), "wrong", func(Session) error {
		t.Fatal("callback must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, fc.closed)

	fc.bindErr = nil
	sentinel := errors.New("boom")
	err = c.WithAdminSession(context.Background(), func(Session) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 2, fc.closed)
	assert.Equal(t, "cn=admin,dc=example,dc=com", fc.binds[1])
}

func TestLDAPClient_Search(t *testing.T) {
	fc := &fakeConn{searchRes: &ldap.SearchResult{Entries: []*ldap.Entry{
		ldap.NewEntry("uid=aa729,ou=people,dc=example,dc=com", map[string][]string{
			"mailForwardingAddress": {"aa729@example.org"},
		}),
	}}}
	c := newFakeClient(fc)

	entries, err := c.Search(context.Background(), UIDFilter("aa729"), "mailForwardingAddress")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	v, ok := entries[0].FirstValue("mailforwardingaddress")
	assert.True(t, ok)
	assert.Equal(t, "aa729@example.org", v)

	require.Len(t, fc.searches, 1)
	assert.Equal(t, "dc=example,dc=com", fc.searches[0].BaseDN)
	assert.Equal(t, ldap.ScopeWholeSubtree, fc.searches[0].Scope)
	assert.Equal(t, "(uid=aa729)", fc.searches[0].Filter)

	fc.searchErr = ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
	entries, err = c.Search(context.Background(), UIDFilter("aa729"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLDAPClient_Modify_InsufficientAccess(t *testing.T) {
	fc := &fakeConn{modifyErr: ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("Insufficient 'write' privilege"))}
	c := newFakeClient(fc)

	err := c.Modify(context.Background(), c.BindDN("aa729"), []Operation{ReplaceOp("userPassword", "{SHA}x")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientAccess))

	var rerr *ResultError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, CodeInsufficientAccess, rerr.Code)
	assert.Contains(t, rerr.Message, "privilege")
}

func TestToModifyRequest(t *testing.T) {
	req := toModifyRequest("uid=aa729,ou=people,dc=example,dc=com", []Operation{
		ReplaceOp("userPassword", "{SHA}x"),
		DeleteOp("nsAccountLock"),
		DeleteOp("nsRoleDN", "cn=nsmanageddisabledrole,dc=example,dc=com"),
	})

	assert.Equal(t, "uid=aa729,ou=people,dc=example,dc=com", req.DN)
	require.Len(t, req.Changes, 3)
	assert.Equal(t, uint(ldap.ReplaceAttribute), req.Changes[0].Operation)
	assert.Equal(t, "userPassword", req.Changes[0].Modification.Type)
	assert.Equal(t, []string{"{SHA}x"}, req.Changes[0].Modification.Vals)
	assert.Equal(t, uint(ldap.DeleteAttribute), req.Changes[1].Operation)
	assert.Empty(t, req.Changes[1].Modification.Vals)
	assert.Equal(t, []string{"cn=nsmanageddisabledrole,dc=example,dc=com"}, req.Changes[2].Modification.Vals)
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(errors.New("eof")), ErrUnavailable)

	err := mapError(ldap.NewError(ldap.LDAPResultNoSuchAttribute, errors.New("")))
	var rerr *ResultError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, CodeNoSuchAttribute, rerr.Code)
	assert.Equal(t, "No Such Attribute", rerr.Message)
}
