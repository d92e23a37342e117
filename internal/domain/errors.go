// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the entity already exists or was modified concurrently.
var ErrConflict = errors.New("conflict")

// ErrValidation indicates the caller supplied invalid input.
var ErrValidation = errors.New("validation failed")

// ErrUnsupportedFormat indicates an upload whose extension is not csv, xlsx or xls.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrNoAgentsAvailable indicates the agent roster was empty at distribution time.
var ErrNoAgentsAvailable = errors.New("no agents available")

// ErrParse indicates the uploaded file content is corrupt or unreadable.
var ErrParse = errors.New("parse failure")

// ErrStorage indicates the distribution store could not persist a snapshot.
// Unlike the other upload failures it may leave no usable snapshot behind,
// so callers must surface it distinctly and ask for a re-upload.
var ErrStorage = errors.New("storage failure")
