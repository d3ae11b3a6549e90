package directory

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntry_FirstValue(t *testing.T) {
	e := NewEntry("uid=aa729,ou=people,dc=example,dc=com", map[string][]string{
		"ituseAgreementAcceptDate": {"20120101000000Z"},
		"mail":                     {""},
		"nsRoleDN":                 {"cn=a", "cn=b"},
		"empty":                    {},
	})

	v, ok := e.FirstValue("ituseagreementacceptdate")
	assert.True(t, ok)
	assert.Equal(t, "20120101000000Z", v)

	// пустое значение != отсутствующий атрибут
	v, ok = e.FirstValue("MAIL")
	assert.True(t, ok)
	assert.Equal(t, "", v)

	_, ok = e.FirstValue("mailforwardingaddress")
	assert.False(t, ok)

	_, ok = e.FirstValue("empty")
	assert.False(t, ok)

	v, ok = e.FirstValue("nsroledn")
	assert.True(t, ok)
	assert.Equal(t, "cn=a", v)
	assert.True(t, e.HasValue("nsroledn", "CN=B"))
	assert.False(t, e.Has("empty"))
}

func TestEntry_NilSafe(t *testing.T) {
	var e *Entry
	assert.Nil(t, e.Values("uid"))
	assert.False(t, e.Has("uid"))
	_, ok := e.FirstValue("uid")
	assert.False(t, ok)
}

func TestUIDFilter_Escapes(t *testing.T) {
	assert.Equal(t, "(uid=aa729)", UIDFilter("aa729"))
	assert.Equal(t, `(uid=\2a\29\28)`, UIDFilter("*)("))
}

func TestResultError_Is(t *testing.T) {
	err := fmt.Errorf("modify: %w", &ResultError{Code: CodeInsufficientAccess, Message: "Insufficient Access Rights"})
	assert.True(t, errors.Is(err, ErrInsufficientAccess))
	assert.False(t, errors.Is(err, ErrInvalidCredentials))

	other := &ResultError{Code: CodeNoSuchAttribute, Message: "No Such Attribute"}
	assert.False(t, errors.Is(other, ErrInsufficientAccess))
	assert.Contains(t, other.Error(), "16")
}
