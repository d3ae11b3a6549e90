package directory

import (
	"accountmanager/internal/config"
	"accountmanager/internal/hasher"
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process directory. It is used by tests and by dev runs
// without LDAP_HOST. Binds are checked against the stored userpassword digest
// and a non-admin identity may only modify its own entry.
type Memory struct {
	mu            sync.Mutex
	bindDNFormat  string
	adminDN       string
	adminPassword string
	entries       map[string]*Entry // ключ — DN в нижнем регистре
	privileged    map[string]bool
	writes        int
	modifyHook    func(boundDN, dn string, ops []Operation) error
}

func NewMemory(cfg *config.Config) *Memory {
	return &Memory{
		bindDNFormat:  cfg.LDAPBindDNFormat,
		adminDN:       cfg.LDAPAdminBindDN,
		adminPassword: cfg.LDAPAdminPassword,
		entries:       make(map[string]*Entry),
		privileged:    make(map[string]bool),
	}
}

// Put stores (or overwrites) the entry for uid and returns its DN. A uid
// attribute is added when missing.
func (m *Memory) Put(uid string, attrs map[string][]string) string {
	dn := m.BindDN(uid)
	e := NewEntry(dn, attrs)
	if !e.Has("uid") {
		e.Attributes["uid"] = []string{uid}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[strings.ToLower(dn)] = e
	return dn
}

// Grant allows the identity of uid to modify any entry, the way a directory
// ACL grants an administrators group write access.
func (m *Memory) Grant(uid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.privileged[strings.ToLower(m.BindDN(uid))] = true
}

// Entry returns a copy of the entry for uid, or nil.
func (m *Memory) Entry(uid string) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[strings.ToLower(m.BindDN(uid))]
	if !ok {
		return nil
	}
	return e.clone()
}

// Writes returns the number of successful modify calls.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// OnModify installs a hook run before every modify; a non-nil error aborts it.
func (m *Memory) OnModify(hook func(boundDN, dn string, ops []Operation) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modifyHook = hook
}

func (m *Memory) BindDN(uid string) string {
	return fmt.Sprintf(m.bindDNFormat, uid)
}

func (m *Memory) Bind(ctx context.Context, dn, password string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkCredentials(dn, password)
}

func (m *Memory) Search(ctx context.Context, filter string, attributes ...string) ([]*Entry, error) {
	var out []*Entry
	err := m.WithAdminSession(ctx, func(s Session) error {
		var err error
		out, err = s.Search(ctx, filter, attributes...)
		return err
	})
	return out, err
}

func (m *Memory) Modify(ctx context.Context, dn string, ops []Operation) error {
	return m.WithAdminSession(ctx, func(s Session) error {
		return s.Modify(ctx, dn, ops)
	})
}

// WithAdminSession skips the bind: the service identity of an in-process
// directory is trusted even when no admin password is configured.
func (m *Memory) WithAdminSession(ctx context.Context, fn func(Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memorySession{dir: m, boundDN: m.adminDN})
}

func (m *Memory) WithSession(ctx context.Context, dn, password string, fn func(Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	ok, err := m.checkCredentials(dn, password)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return fn(&memorySession{dir: m, boundDN: dn})
}

// checkCredentials вызывается под m.mu.
func (m *Memory) checkCredentials(dn, password string) (bool, error) {
	if password == "" {
		return false, nil
	}
	if strings.EqualFold(dn, m.adminDN) {
		return m.adminPassword != "" && password == m.adminPassword, nil
	}

	e, ok := m.entries[strings.ToLower(dn)]
	if !ok {
		return false, nil
	}
	stored, ok := e.FirstValue("userpassword")
	if !ok {
		return false, nil
	}
	return hasher.Verify(password, stored)
}

// canWrite вызывается под m.mu.
func (m *Memory) canWrite(boundDN, dn string) bool {
	return strings.EqualFold(boundDN, m.adminDN) ||
		m.privileged[strings.ToLower(boundDN)] ||
		strings.EqualFold(boundDN, dn)
}

type memorySession struct {
	dir     *Memory
	boundDN string
}

func (s *memorySession) Search(ctx context.Context, filter string, attributes ...string) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	attr, value, err := parseEqualityFilter(filter)
	if err != nil {
		return nil, err
	}

	s.dir.mu.Lock()
	defer s.dir.mu.Unlock()

	var out []*Entry
	for _, e := range s.dir.entries {
		if (value == "*" && e.Has(attr)) || e.HasValue(attr, value) {
			out = append(out, project(e, attributes))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DN < out[j].DN })
	return out, nil
}

func (s *memorySession) Modify(ctx context.Context, dn string, ops []Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.dir.mu.Lock()
	defer s.dir.mu.Unlock()

	if s.dir.modifyHook != nil {
		if err := s.dir.modifyHook(s.boundDN, dn, ops); err != nil {
			return err
		}
	}

	if !s.dir.canWrite(s.boundDN, dn) {
		return &ResultError{Code: CodeInsufficientAccess, Message: "Insufficient Access Rights"}
	}

	current, ok := s.dir.entries[strings.ToLower(dn)]
	if !ok {
		return &ResultError{Code: CodeNoSuchObject, Message: "No Such Object"}
	}

	// изменения применяются к копии, чтобы запрос был атомарным
	next := current.clone()
	for _, op := range ops {
		name := strings.ToLower(op.Attribute)
		switch op.Kind {
		case Replace:
			if len(op.Values) == 0 {
				delete(next.Attributes, name)
			} else {
				next.Attributes[name] = append([]string(nil), op.Values...)
			}
		case Delete:
			if !next.Has(name) {
				return &ResultError{Code: CodeNoSuchAttribute, Message: "No Such Attribute"}
			}
			if len(op.Values) == 0 {
				delete(next.Attributes, name)
				continue
			}
			var kept []string
			for _, v := range next.Attributes[name] {
				if !containsFold(op.Values, v) {
					kept = append(kept, v)
				}
			}
			if len(kept) == len(next.Attributes[name]) {
				return &ResultError{Code: CodeNoSuchAttribute, Message: "No Such Attribute"}
			}
			if len(kept) == 0 {
				delete(next.Attributes, name)
			} else {
				next.Attributes[name] = kept
			}
		}
	}

	s.dir.entries[strings.ToLower(dn)] = next
	s.dir.writes++
	return nil
}

func project(e *Entry, attributes []string) *Entry {
	if len(attributes) == 0 {
		return e.clone()
	}
	attrs := make(map[string][]string, len(attributes))
	for _, a := range attributes {
		if v := e.Values(a); v != nil {
			attrs[a] = v
		}
	}
	return NewEntry(e.DN, attrs)
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// parseEqualityFilter понимает только (attr=value) и (attr=*), этого хватает сервисам.
func parseEqualityFilter(filter string) (string, string, error) {
	f := strings.TrimSpace(filter)
	if len(f) < 4 || f[0] != '(' || f[len(f)-1] != ')' {
		return "", "", fmt.Errorf("directory: unsupported filter %q", filter)
	}
	attr, value, ok := strings.Cut(f[1:len(f)-1], "=")
	if !ok || attr == "" || strings.ContainsAny(attr, "()&|!") {
		return "", "", fmt.Errorf("directory: unsupported filter %q", filter)
	}
	if value == "*" {
		return attr, value, nil
	}
	unescaped, err := unescapeFilterValue(value)
	if err != nil {
		return "", "", fmt.Errorf("directory: unsupported filter %q: %w", filter, err)
	}
	return attr, unescaped, nil
}

func unescapeFilterValue(v string) (string, error) {
	if !strings.Contains(v, `\`) {
		return v, nil
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] != '\\' {
			b.WriteByte(v[i])
			continue
		}
		if i+2 >= len(v) {
			return "", fmt.Errorf("truncated escape")
		}
		raw, err := hex.DecodeString(v[i+1 : i+3])
		if err != nil {
			return "", err
		}
		b.Write(raw)
		i += 2
	}
	return b.String(), nil
}
