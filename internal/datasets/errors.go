package datasets

import "errors"

var (
	ErrConfigNotFound     = errors.New("config not found")
	ErrPipelineUnresolved = errors.New("dataset has no pipeline")
	ErrInvalidInput       = errors.New("invalid input")
	// ErrReadOnly means the dataset snapshot denies the viewer edit rights.
	ErrReadOnly = errors.New("dataset is read-only")
)
