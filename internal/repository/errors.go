// Package repository implements the MySQL-backed identity store. Lookups
// that find nothing return a nil value and a nil error; only genuine
// faults are reported as errors.
package repository

import "errors"

// ErrEmailExists is returned by Create when the unique email index rejects
// the insert.
var ErrEmailExists = errors.New("email already exists")
