package domain

// Result carries either the output of an enrichment stage or the error that prevented it.
// Callers decide how to recover; a Result never panics and never hides a partial value.
type Result[T any] struct {
	Value T
	Err   *EnrichmentError
}

// OK wraps a successful value.
func OK[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Failed wraps an enrichment failure for the named stage.
func Failed[T any](stage string, err error) Result[T] {
	return Result[T]{Err: &EnrichmentError{Stage: stage, Err: err}}
}

// IsOK reports whether the stage produced a value.
func (r Result[T]) IsOK() bool {
	return r.Err == nil
}
