package dataflow

import "github.com/juju/errors"

const (
	// ErrPartitionCount is returned when zipping datasets with different partition counts.
	ErrPartitionCount = errors.ConstError("datasets have different numbers of partitions")
	// ErrPartitionIndex is returned when a partitioner maps a key outside its range.
	ErrPartitionIndex = errors.ConstError("partitioner returned an index out of range")
)
