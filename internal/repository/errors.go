// Package repository persists users, the auth config singleton,
// single-use tokens and sessions in MySQL. Sentinel errors let the
// service layer distinguish failure scenarios without inspecting SQL
// errors; anything else bubbling out of a repository is a store problem.
package repository

import "errors"

// ErrEmailExists is returned when creating a user with an email that is
// already registered.
var ErrEmailExists = errors.New("email already exists")

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyConsumed is returned when the conditional consume update
// matched no row because another caller consumed the token first.
var ErrAlreadyConsumed = errors.New("token already consumed")
