package internal

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below via errors.Is.
var (
	ErrDBConnection    = errors.New("database connection failed")
	ErrDBLocked        = errors.New("database is locked")
	ErrSessionNotFound = errors.New("session not found")
	ErrDataCorruption  = errors.New("data corruption")
)

// DBConnectionError represents a missing store file or a failed open
type DBConnectionError struct {
	Path string
	Err  error
}

func (e *DBConnectionError) Error() string {
	return fmt.Sprintf("database connection error: %s: %v", e.Path, e.Err)
}

func (e *DBConnectionError) Unwrap() error {
	return e.Err
}

func (e *DBConnectionError) Is(target error) bool {
	return target == ErrDBConnection
}

// DBLockedError is returned when a busy store stays busy after every retry
type DBLockedError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *DBLockedError) Error() string {
	return fmt.Sprintf("database locked: %s (after %d attempts): %v", e.Path, e.Attempts, e.Err)
}

func (e *DBLockedError) Unwrap() error {
	return e.Err
}

func (e *DBLockedError) Is(target error) bool {
	return target == ErrDBLocked
}

// SessionNotFoundError represents a lookup by id or nickname with no hit
type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.ID)
}

func (e *SessionNotFoundError) Is(target error) bool {
	return target == ErrSessionNotFound
}

// DataCorruptionError represents a record whose payload is not valid JSON
type DataCorruptionError struct {
	Key string // storage key
	Err error
}

func (e *DataCorruptionError) Error() string {
	return fmt.Sprintf("data corruption [%s]: %v", e.Key, e.Err)
}

func (e *DataCorruptionError) Unwrap() error {
	return e.Err
}

func (e *DataCorruptionError) Is(target error) bool {
	return target == ErrDataCorruption
}
