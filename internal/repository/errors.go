// Package repository defines data access for the reservation engine. Methods
// with a Tx suffix run inside a caller supplied transaction; the caller
// commits or rolls back. Sentinel errors below let higher layers tell
// failure scenarios apart without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when a looked up row does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write collides with existing state, such as
// a duplicate hold on the same slot or a duplicate external payment id.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned by UserRepo.Create for a taken email.
var ErrEmailExists = errors.New("email already exists")
