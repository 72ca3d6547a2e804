package edgerdd

import "github.com/juju/errors"

// ErrPartitioningMismatch is returned when joining collections that are not
// known to place equal edges in equal shards.
const ErrPartitioningMismatch = errors.ConstError("edge collections do not share partitioning")
