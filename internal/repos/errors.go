package repos

import (
	"errors"
	"strings"
)

var (
	// ErrNotReady is returned by every repo call before the store is opened.
	ErrNotReady = errors.New("local store not ready")
	// ErrDuplicate marks a unique-key clash (RFID tag, category name, email).
	ErrDuplicate = errors.New("duplicate")
	ErrNotFound  = errors.New("not found")
)

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
