package domain

import "fmt"

// NetworkError is returned when a period could not be downloaded, either
// because every attempt failed at the transport level or because the source
// answered with a non-200 status. It is fatal to the period only.
type NetworkError struct {
	Period     Period
	URL        string
	StatusCode int // 0 when no response was received
	Attempts   int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("downloading %s: status code %d", e.Period, e.StatusCode)
	}
	return fmt.Sprintf("downloading %s: no response after %d attempts: %v", e.Period, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SchemaResolutionError is returned when no column of a raw file matches a
// required keyword, or when the matching column is already taken by another
// keyword (Column is then set).
type SchemaResolutionError struct {
	File    string
	Keyword string
	Column  string
}

func (e *SchemaResolutionError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s: column %q matched by %q is already resolved", e.File, e.Column, e.Keyword)
	}
	return fmt.Sprintf("%s: no column matches %q", e.File, e.Keyword)
}

// ValidationError is returned when a dataset is structurally unusable.
type ValidationError struct {
	File   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

// CacheStateError is returned when a staleness sentinel cannot be read or
// decoded. Callers treat it as "no cached count".
type CacheStateError struct {
	Path string
	Err  error
}

func (e *CacheStateError) Error() string {
	return fmt.Sprintf("sentinel %s: %v", e.Path, e.Err)
}

func (e *CacheStateError) Unwrap() error { return e.Err }

// StageError wraps the cause that terminated a pipeline stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
