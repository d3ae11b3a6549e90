// Package hasher produces and verifies self-describing password digests in
// the {SCHEME}payload format understood by LDAP directories.
package hasher

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Scheme identifies a supported digest scheme.
type Scheme int

const (
	// SSHA is salted SHA-1: base64(sha1(password + salt) + salt).
	SSHA Scheme = iota
	// SHA is unsalted SHA-1: base64(sha1(password)).
	SHA
	// MD5 is unsalted MD5: base64(md5(password)).
	MD5
	// CRYPT is a bcrypt digest in crypt(3) modular format.
	CRYPT
)

const (
	// DefaultSaltLength is the salt length used when none is configured.
	DefaultSaltLength = 31

	// AlphanumericAlphabet is the default salt alphabet.
	AlphanumericAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	// CryptAlphabet is the POSIX crypt(3) salt alphabet.
	CryptAlphabet = "./0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var schemeTags = map[Scheme]string{
	SSHA:  "SSHA",
	SHA:   "SHA",
	MD5:   "MD5",
	CRYPT: "CRYPT",
}

// String returns the bare scheme token, e.g. "SSHA".
func (s Scheme) String() string {
	if tag, ok := schemeTags[s]; ok {
		return tag
	}
	return fmt.Sprintf("Scheme(%d)", int(s))
}

// Tag returns the scheme prefix as it appears in a stored digest, e.g. "{SSHA}".
func (s Scheme) Tag() string {
	return "{" + s.String() + "}"
}

// Salted reports whether digests of this scheme embed a caller visible salt.
func (s Scheme) Salted() bool {
	return s == SSHA
}

// ParseScheme maps a scheme token (with or without braces, any case) to a Scheme.
func ParseScheme(token string) (Scheme, error) {
	t := strings.ToUpper(strings.Trim(strings.TrimSpace(token), "{}"))
	for s, tag := range schemeTags {
		if tag == t {
			return s, nil
		}
	}
	return 0, &UnsupportedSchemeError{Scheme: token}
}

// DefaultScheme returns the scheme used when a caller does not pick one:
// SSHA in production, SHA elsewhere (test directories cannot verify SSHA).
func DefaultScheme(env string) Scheme {
	switch strings.ToLower(env) {
	case "prod", "production":
		return SSHA
	default:
		return SHA
	}
}

// UnsupportedSchemeError is returned for a scheme token outside the closed set.
type UnsupportedSchemeError struct {
	Scheme string
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("hasher: unsupported hash type %q", e.Scheme)
}

// ErrPasswordTooLong is returned by the CRYPT scheme: bcrypt only digests the
// first 72 bytes of its input and refuses anything longer.
var ErrPasswordTooLong = errors.New("hasher: password is longer than 72 bytes")

// MaxCryptPasswordLength is the longest input the CRYPT scheme accepts.
const MaxCryptPasswordLength = 72

// MalformedHashError is returned when a stored digest has no {SCHEME} prefix
// or its payload cannot be decoded.
type MalformedHashError struct {
	Reason string
}

func (e *MalformedHashError) Error() string {
	return "hasher: malformed hash: " + e.Reason
}

// Hasher computes tagged digests with a configured default scheme and salt policy.
type Hasher struct {
	scheme     Scheme
	saltLength int
	alphabet   string
}

// New returns a Hasher. A non-positive saltLength falls back to
// DefaultSaltLength and an empty alphabet to AlphanumericAlphabet.
func New(scheme Scheme, saltLength int, alphabet string) *Hasher {
	if saltLength <= 0 {
		saltLength = DefaultSaltLength
	}
	if alphabet == "" {
		alphabet = AlphanumericAlphabet
	}
	return &Hasher{scheme: scheme, saltLength: saltLength, alphabet: alphabet}
}

// Scheme returns the default scheme of h.
func (h *Hasher) Scheme() Scheme {
	return h.scheme
}

type hashOptions struct {
	scheme    Scheme
	hasScheme bool
	salt      string
	hasSalt   bool
}

// Option customises a single Hash call.
type Option func(*hashOptions)

// WithScheme overrides the default scheme.
func WithScheme(s Scheme) Option {
	return func(o *hashOptions) {
		o.scheme = s
		o.hasScheme = true
	}
}

// WithSalt fixes the salt. Without WithScheme it implies SSHA.
func WithSalt(salt string) Option {
	return func(o *hashOptions) {
		o.salt = salt
		o.hasSalt = true
	}
}

// Hash digests input and returns the tagged result.
func (h *Hasher) Hash(input string, opts ...Option) (string, error) {
	var o hashOptions
	for _, opt := range opts {
		opt(&o)
	}

	scheme := h.scheme
	switch {
	case o.hasScheme:
		scheme = o.scheme
	case o.hasSalt:
		scheme = SSHA
	}

	if scheme.Salted() && !o.hasSalt {
		salt, err := NewSalt(h.saltLength, h.alphabet)
		if err != nil {
			return "", err
		}
		o.salt = salt
	}

	return compute(input, scheme, o.salt)
}

func compute(input string, scheme Scheme, salt string) (string, error) {
	switch scheme {
	case SSHA:
		sum := sha1.Sum([]byte(input + salt))
		data := make([]byte, 0, len(sum)+len(salt))
		data = append(data, sum[:]...)
		data = append(data, salt...)
		return SSHA.Tag() + base64.StdEncoding.EncodeToString(data), nil
	case SHA:
		sum := sha1.Sum([]byte(input))
		return SHA.Tag() + base64.StdEncoding.EncodeToString(sum[:]), nil
	case MD5:
		sum := md5.Sum([]byte(input))
		return MD5.Tag() + base64.StdEncoding.EncodeToString(sum[:]), nil
	case CRYPT:
		if len(input) > MaxCryptPasswordLength {
			return "", ErrPasswordTooLong
		}
		b, err := bcrypt.GenerateFromPassword([]byte(input), bcrypt.DefaultCost)
		if err != nil {
			return "", fmt.Errorf("hasher: bcrypt: %w", err)
		}
		return CRYPT.Tag() + string(b), nil
	default:
		return "", &UnsupportedSchemeError{Scheme: scheme.String()}
	}
}

// Verify reports whether input matches the tagged digest. It returns a
// *MalformedHashError when the digest has no scheme prefix and an
// *UnsupportedSchemeError for unknown schemes; both mean the stored data is
// unusable, not that the password is wrong.
func Verify(input, taggedHash string) (bool, error) {
	scheme, payload, err := split(taggedHash)
	if err != nil {
		return false, err
	}

	switch scheme {
	case SSHA:
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil || len(decoded) < sha1.Size {
			return false, &MalformedHashError{Reason: "invalid SSHA payload"}
		}
		// соль лежит после 20 байт SHA-1
		salt := string(decoded[sha1.Size:])
		recomputed, err := compute(input, SSHA, salt)
		if err != nil {
			return false, err
		}
		return equal(recomputed, SSHA.Tag()+payload), nil
	case SHA, MD5:
		recomputed, err := compute(input, scheme, "")
		if err != nil {
			return false, err
		}
		return equal(recomputed, scheme.Tag()+payload), nil
	case CRYPT:
		err := bcrypt.CompareHashAndPassword([]byte(payload), []byte(input))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, &MalformedHashError{Reason: err.Error()}
		}
	}
	return false, &UnsupportedSchemeError{Scheme: scheme.String()}
}

func split(taggedHash string) (Scheme, string, error) {
	if !strings.HasPrefix(taggedHash, "{") {
		return 0, "", &MalformedHashError{Reason: "no hash prefix, expected something like {SHA}"}
	}
	end := strings.Index(taggedHash, "}")
	if end < 2 {
		return 0, "", &MalformedHashError{Reason: "no hash prefix, expected something like {SHA}"}
	}
	scheme, err := ParseScheme(taggedHash[1:end])
	if err != nil {
		return 0, "", err
	}
	return scheme, taggedHash[end+1:], nil
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NewSalt returns a random string of length characters drawn from alphabet.
func NewSalt(length int, alphabet string) (string, error) {
	if length <= 0 {
		return "", nil
	}
	if alphabet == "" {
		alphabet = AlphanumericAlphabet
	}
	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("hasher: salt: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
