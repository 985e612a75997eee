package pebble

import "errors"

var (
	ErrClosed          = errors.New("kv: database is closed")
	ErrNotFound        = errors.New("kv: key not found")
	ErrBatchDone       = errors.New("kv: batch already committed or closed")
	ErrIteratorInvalid = errors.New("kv: iterator is not positioned")
)
