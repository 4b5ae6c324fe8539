package results

import "errors"

var (
	ErrNotFound         = errors.New("results: not found")
	ErrDuplicate        = errors.New("results: duplicate result")
	ErrRevisionConflict = errors.New("results: revision conflict")
	ErrInvalidInput     = errors.New("results: invalid input")
)
