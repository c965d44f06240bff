package model

import "errors"

// Shared storage error taxonomy. Defined here so that every registry and
// queue backend returns the same sentinels without importing its consumers.
var (
	ErrNotFound      = errors.New("not found")
	ErrStreamDeleted = errors.New("stream is deleted")
)
