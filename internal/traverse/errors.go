package traverse

import "fmt"

// The error taxonomy of the engine. Callers discriminate between the error
// types with errors.As. Stores are never left partially replaced: any error
// means the previous state is still serving.

// ValidationError reports rejected input: a map missing a required layer,
// a footprint with fewer than 3 vertices, or an empty path.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// NotInitializedError reports a query against a store before its first
// successful Set.
type NotInitializedError struct {
	Store string
}

func (e *NotInitializedError) Error() string {
	return e.Store + " store not initialized"
}

// PipelineError reports a failed derivation run or a failed chain reload.
// The previously derived traversability map remains queryable.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("pipeline stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("pipeline: %v", e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// GeometryError reports a footprint whose membership test is undefined:
// a degenerate or self-intersecting polygon, or a footprint/resolution
// mismatch. Surfaced immediately rather than silently approximated.
type GeometryError struct {
	Err error
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry: %v", e.Err)
}

func (e *GeometryError) Unwrap() error { return e.Err }
