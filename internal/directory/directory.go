// Package directory wraps bind/search/modify access to the LDAP account store.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Result codes the account logic cares about (RFC 4511).
const (
	CodeNoSuchAttribute    = 16
	CodeNoSuchObject       = 32
	CodeInvalidCredentials = 49
	CodeInsufficientAccess = 50
	CodeUnwillingToPerform = 53
)

var (
	// ErrInvalidCredentials is returned by WithSession when the bind is rejected.
	ErrInvalidCredentials = errors.New("directory: invalid credentials")
	// ErrInsufficientAccess matches a modify rejected by the directory ACLs.
	ErrInsufficientAccess = errors.New("directory: insufficient access rights")
	// ErrUnavailable wraps connectivity failures.
	ErrUnavailable = errors.New("directory: unavailable")
)

// ResultError is a non-success LDAP result returned by the directory.
type ResultError struct {
	Code    int
	Message string
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("directory: result code %d: %s", e.Code, e.Message)
}

func (e *ResultError) Is(target error) bool {
	switch target {
	case ErrInsufficientAccess:
		return e.Code == CodeInsufficientAccess
	case ErrInvalidCredentials:
		return e.Code == CodeInvalidCredentials
	}
	return false
}

// OpKind is the kind of a modify operation.
type OpKind int

const (
	Replace OpKind = iota
	Delete
)

func (k OpKind) String() string {
	if k == Delete {
		return "delete"
	}
	return "replace"
}

// Operation is one step of a modify request. A Delete without values removes
// the whole attribute; a Replace without values removes it as well.
type Operation struct {
	Kind      OpKind
	Attribute string
	Values    []string
}

func ReplaceOp(attr string, values ...string) Operation {
	return Operation{Kind: Replace, Attribute: attr, Values: values}
}

func DeleteOp(attr string, values ...string) Operation {
	return Operation{Kind: Delete, Attribute: attr, Values: values}
}

// Session is a bound connection. It is only valid inside the callback that
// received it.
type Session interface {
	Search(ctx context.Context, filter string, attributes ...string) ([]*Entry, error)
	Modify(ctx context.Context, dn string, ops []Operation) error
}

// Client is the capability the account services depend on.
//
// Bind reports false for rejected credentials and returns an error only when
// the directory cannot be reached. Search and Modify run in an administrative
// session. WithSession and WithAdminSession open a connection, bind, run fn
// and close the connection on every path.
type Client interface {
	BindDN(uid string) string
	Bind(ctx context.Context, dn, password string) (bool, error)
	Search(ctx context.Context, filter string, attributes ...string) ([]*Entry, error)
	Modify(ctx context.Context, dn string, ops []Operation) error
	WithSession(ctx context.Context, dn, password string, fn func(Session) error) error
	WithAdminSession(ctx context.Context, fn func(Session) error) error
}

// UIDFilter returns an equality filter on uid with the value escaped.
func UIDFilter(uid string) string {
	return "(uid=" + ldap.EscapeFilter(uid) + ")"
}

// Entry is a directory entry with case-insensitive attribute names.
type Entry struct {
	DN         string
	Attributes map[string][]string
}

func NewEntry(dn string, attrs map[string][]string) *Entry {
	e := &Entry{DN: dn, Attributes: make(map[string][]string, len(attrs))}
	for name, values := range attrs {
		e.Attributes[strings.ToLower(name)] = append([]string(nil), values...)
	}
	return e
}

// Values returns all values of attr; nil when the attribute is absent.
func (e *Entry) Values(attr string) []string {
	if e == nil {
		return nil
	}
	return e.Attributes[strings.ToLower(attr)]
}

// FirstValue returns the first value of attr. ok is false when the attribute
// is absent or has no values; an empty first value is returned with ok=true.
func (e *Entry) FirstValue(attr string) (value string, ok bool) {
	values := e.Values(attr)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Has reports whether attr is present with at least one value.
func (e *Entry) Has(attr string) bool {
	return len(e.Values(attr)) > 0
}

// HasValue reports whether attr contains value (case-insensitive, as DNs are).
func (e *Entry) HasValue(attr, value string) bool {
	for _, v := range e.Values(attr) {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

func (e *Entry) clone() *Entry {
	return NewEntry(e.DN, e.Attributes)
}
