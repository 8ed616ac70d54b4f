package sqlite

import "errors"

// Sentinel errors returned by the repository functions. Callers match
// with errors.Is and translate to their own error taxonomy.
var (
	ErrColonyNotFound  = errors.New("colony not found")
	ErrCrabNotFound    = errors.New("crab not found")
	ErrMissionNotFound = errors.New("mission not found")
	ErrTaskNotFound    = errors.New("task not found")
	ErrRunNotFound     = errors.New("run not found")
)
