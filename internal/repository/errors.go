// Package repository holds sentinels shared by the storage adapters.
package repository

import "errors"

// ErrNotFound is returned when a key or record is absent. Callers branch on
// it with errors.Is; it never carries storage details.
var ErrNotFound = errors.New("not found")
