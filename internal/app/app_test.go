package app

import (
	"accountmanager/internal/config"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func devConfig(extra map[string]string) *config.Config {
	env := map[string]string{"ENV": "dev"}
	for k, v := range extra {
		env[k] = v
	}
	return config.FromEnv(func(k string) string { return env[k] })
}

func TestInitApp_DevInMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router, cleanup, err := InitApp(ctx, devConfig(nil))
	require.NoError(t, err)
	defer cleanup()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/password/strength", strings.NewReader(`{"password":"doodle"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"strong":false`)

	// пустой каталог в памяти: учётки нет
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/password/reset", strings.NewReader(`{"uid":"aa729"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInitApp_BadHashScheme(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _, err := InitApp(ctx, devConfig(map[string]string{"HASH_SCHEME": "md4"}))
	assert.Error(t, err)
}

func TestNewHasher(t *testing.T) {
	h, err := newHasher(devConfig(nil))
	require.NoError(t, err)
	assert.Equal(t, "SHA", h.Scheme().String())

	h, err = newHasher(devConfig(map[string]string{"HASH_SCHEME": "ssha"}))
	require.NoError(t, err)
	assert.Equal(t, "SSHA", h.Scheme().String())
}

func TestNewHasher_SaltAlphabet(t *testing.T) {
	h, err := newHasher(devConfig(map[string]string{"HASH_SCHEME": "ssha", "SALT_ALPHABET": "crypt", "SALT_LENGTH": "400"}))
	require.NoError(t, err)
	digest, err := h.Hash("doodle")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(digest, "{SSHA}"))
	require.NoError(t, err)
	salt := string(raw[sha1.Size:])
	require.Len(t, salt, 400)
	// в алфавите crypt(3) есть '.' и '/', на 400 символах они встречаются
	assert.True(t, strings.ContainsAny(salt, "./"), salt)

	_, err = newHasher(devConfig(map[string]string{"SALT_ALPHABET": "emoji"}))
	assert.Error(t, err)
}
