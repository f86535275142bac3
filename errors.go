package doctran

import "errors"

var (
	// ErrUnsupportedFormat is returned for unrecognized input or output formats.
	ErrUnsupportedFormat = errors.New("doctran: unsupported format")

	// ErrParsingFailed is returned when reading the input document fails.
	ErrParsingFailed = errors.New("doctran: parsing failed")

	// ErrJobNotFound is returned when a checkpoint for the job id does not exist.
	ErrJobNotFound = errors.New("doctran: job not found")

	// ErrJobLocked is returned when another process holds the job's checkpoint lock.
	ErrJobLocked = errors.New("doctran: job is locked by another process")

	// ErrEmptyDocument is returned when the input yields no translatable text.
	ErrEmptyDocument = errors.New("doctran: document contains no translatable text")

	// ErrCancelled is returned when a job is stopped via its context.
	// The checkpoint is preserved so the job can be resumed.
	ErrCancelled = errors.New("doctran: job cancelled")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("doctran: invalid configuration")

	// ErrWriterFailed is returned when the output writer cannot produce the
	// final artifact. The checkpoint is untouched so the output phase can
	// be retried independently.
	ErrWriterFailed = errors.New("doctran: output writer failed")
)
