package dataflow

import (
	"strings"

	"github.com/juju/errors"
)

// StorageLevel tells the engine whether to retain computed partitions.
type StorageLevel int

const (
	StorageNone StorageLevel = iota
	MemoryOnly
)

func (l StorageLevel) String() string {
	switch l {
	case StorageNone:
		return "NONE"
	case MemoryOnly:
		return "MEMORY_ONLY"
	default:
		return "UNKNOWN"
	}
}

func ParseStorageLevel(s string) (StorageLevel, error) {
	switch strings.ToUpper(s) {
	case "", "NONE":
		return StorageNone, nil
	case "MEMORY_ONLY":
		return MemoryOnly, nil
	default:
		return StorageNone, errors.NotValidf("storage level %q", s)
	}
}

// State is the materialization state of a dataset.
type State int

const (
	Unmaterialized State = iota
	Materializing
	Materialized
)

func (s State) String() string {
	switch s {
	case Unmaterialized:
		return "Unmaterialized"
	case Materializing:
		return "Materializing"
	case Materialized:
		return "Materialized"
	default:
		return "Unknown"
	}
}
