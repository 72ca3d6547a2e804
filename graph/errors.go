package graph

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	// ErrBuilderFinalized is returned when a builder is used after ToEdgePartition.
	ErrBuilderFinalized = errors.ConstError("edge partition builder already finalized")
	// ErrAttributeMapping matches every error produced by a failing MapValues function.
	ErrAttributeMapping = errors.ConstError("attribute mapping failed")
	// ErrColumnLength indicates columns of differing lengths.
	ErrColumnLength = errors.ConstError("edge columns have different lengths")
	// ErrUnsorted indicates columns that are not sorted by (src, dst).
	ErrUnsorted = errors.ConstError("edge columns are not sorted by (src, dst)")
)

// MappingError reports the edge on which a MapValues function failed.
type MappingError struct {
	SrcID VertexID
	DstID VertexID
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("%v for edge (%d, %d): %v", ErrAttributeMapping, e.SrcID, e.DstID, e.Err)
}

func (e *MappingError) Unwrap() []error {
	return []error{ErrAttributeMapping, e.Err}
}
