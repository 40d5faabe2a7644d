package index

import "errors"

var (
	// ErrTermRepositoryRequired is returned when a term index repository is not provided.
	ErrTermRepositoryRequired = errors.New("term index repository required")

	// ErrMarkerRequired is returned when no metadata store is provided to flag indexed documents.
	ErrMarkerRequired = errors.New("indexed marker required")
)
