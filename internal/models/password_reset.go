package models

import (
	"time"

	"github.com/google/uuid"
)

// ResetToken — одноразовая ссылка на сброс пароля для учётки uid.
// Slug живёт только в памяти (уходит в письмо), в базе хранится его хеш.
type ResetToken struct {
	ID        uuid.UUID `json:"id"`
	UID       string    `json:"uid"`
	Slug      string    `json:"-"`
	SlugHash  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
