package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with an existing unique record.
var ErrConflict = errors.New("conflict")

// Document is one JSON object stored under (Collection, ID). Version grows by
// one on every committed write.
type Document struct {
	Collection string
	ID         string
	Data       []byte // JSON object
	Version    int64
	UpdatedAt  time.Time
}

type Account struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
