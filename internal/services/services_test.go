package services

import (
	"accountmanager/internal/config"
	"accountmanager/internal/directory"
	"accountmanager/internal/hasher"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	adminDN       = "cn=admin,dc=example,dc=com"
	adminPassword = "secret"
	disabledRole  = "cn=nsmanageddisabledrole,dc=example,dc=com"
	acceptedAt    = "20120101000000Z"
)

var fixedNow = time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)

func testConfig() *config.Config {
	env := map[string]string{
		"ENV":                   "test",
		"LDAP_BASE_DN":          "dc=example,dc=com",
		"LDAP_ADMIN_BIND_DN":    adminDN,
		"LDAP_ADMIN_PASSWORD":   adminPassword,
		"LDAP_DISABLED_ROLE_DN": disabledRole,
		"MAIL_FROM":             "help@example.com",
		"MAIL_PHONE":            "(805) 555-0100",
		"MAIL_SITE":             "https://example.com",
	}
	return config.FromEnv(func(k string) string { return env[k] })
}

type fixture struct {
	cfg      *config.Config
	dir      *directory.Memory
	hasher   *hasher.Hasher
	accounts *AccountService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	dir := directory.NewMemory(cfg)
	h := hasher.New(hasher.DefaultScheme(cfg.Env), cfg.SaltLen(), "")
	return &fixture{
		cfg:      cfg,
		dir:      dir,
		hasher:   h,
		accounts: NewAccountService(dir, h, cfg).WithClock(func() time.Time { return fixedNow }),
	}
}

// putActive создаёт активированную учётку.
func (f *fixture) putActive(t *testing.T, uid, password string, extra map[string][]string) {
	t.Helper()
	f.put(t, uid, password, map[string][]string{AttrActivation: {acceptedAt}}, extra)
}

// putInactive создаёт учётку в состоянии «activation required» с блокировкой.
func (f *fixture) putInactive(t *testing.T, uid, password string, extra map[string][]string) {
	t.Helper()
	f.put(t, uid, password, map[string][]string{
		AttrActivation: {InactiveValue},
		AttrRole:       {disabledRole},
		AttrLock:       {"true"},
	}, extra)
}

func (f *fixture) put(t *testing.T, uid, password string, state, extra map[string][]string) {
	t.Helper()
	digest, err := f.hasher.Hash(password)
	require.NoError(t, err)

	attrs := map[string][]string{AttrPassword: {digest}}
	for k, v := range state {
		attrs[k] = v
	}
	for k, v := range extra {
		attrs[k] = v
	}
	f.dir.Put(uid, attrs)
}

func (f *fixture) canBind(t *testing.T, uid, password string) bool {
	t.Helper()
	ok, err := f.accounts.CanBind(context.Background(), uid, password)
	require.NoError(t, err)
	return ok
}

func (f *fixture) attr(uid, name string) string {
	v, _ := f.dir.Entry(uid).FirstValue(name)
	return v
}
