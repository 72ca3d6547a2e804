package dataflow

import (
	"iter"

	"github.com/juju/errors"
)

// PartitionFunc transforms one partition. tc.PartitionIndex() tells which.
type PartitionFunc[T, U any] func(tc *TaskContext, in iter.Seq[T]) (iter.Seq[U], error)

type mappedDataset[T, U any] struct {
	id     GUID
	parent Dataset[T]
	f      PartitionFunc[T, U]
}

// MapPartitions applies f to every partition of parent. The result has the
// same partitions as the parent.
func MapPartitions[T, U any](parent Dataset[T], f PartitionFunc[T, U]) Dataset[U] {
	return &mappedDataset[T, U]{id: NewGUID(), parent: parent, f: f}
}

func (d *mappedDataset[T, U]) ID() GUID {
	return d.id
}

func (d *mappedDataset[T, U]) Partitions() []Partition {
	return d.parent.Partitions()
}

func (d *mappedDataset[T, U]) Compute(tc *TaskContext, p Partition) (iter.Seq[U], error) {
	in, err := Iterator(tc, d.parent, p)
	if err != nil {
		return nil, err
	}
	return d.f(tc, in)
}

func (d *mappedDataset[T, U]) StorageLevel() StorageLevel {
	return StorageNone
}

// ZipFunc combines the matching partitions of two datasets.
type ZipFunc[A, B, C any] func(tc *TaskContext, a iter.Seq[A], b iter.Seq[B]) (iter.Seq[C], error)

type zippedDataset[A, B, C any] struct {
	id GUID
	a  Dataset[A]
	b  Dataset[B]
	f  ZipFunc[A, B, C]
}

// ZipPartitions pairs partition i of a with partition i of b. Both datasets
// must have the same number of partitions.
func ZipPartitions[A, B, C any](a Dataset[A], b Dataset[B], f ZipFunc[A, B, C]) (Dataset[C], error) {
	na, nb := len(a.Partitions()), len(b.Partitions())
	if na != nb {
		return nil, errors.Annotatef(ErrPartitionCount, "zipping %d and %d partitions", na, nb)
	}
	return &zippedDataset[A, B, C]{id: NewGUID(), a: a, b: b, f: f}, nil
}

func (d *zippedDataset[A, B, C]) ID() GUID {
	return d.id
}

func (d *zippedDataset[A, B, C]) Partitions() []Partition {
	return d.a.Partitions()
}

func (d *zippedDataset[A, B, C]) Compute(tc *TaskContext, p Partition) (iter.Seq[C], error) {
	ia, err := Iterator(tc, d.a, p)
	if err != nil {
		return nil, err
	}
	ib, err := Iterator(tc, d.b, p)
	if err != nil {
		return nil, err
	}
	return d.f(tc, ia, ib)
}

func (d *zippedDataset[A, B, C]) StorageLevel() StorageLevel {
	return StorageNone
}

type persistedDataset[T any] struct {
	id     GUID
	parent Dataset[T]
	level  StorageLevel
}

// Persist returns a view of ds whose partitions the engine retains at the
// given level once computed. Nothing is computed here.
func Persist[T any](ds Dataset[T], level StorageLevel) Dataset[T] {
	if p, ok := ds.(*persistedDataset[T]); ok {
		ds = p.parent
	}
	if level == StorageNone {
		return ds
	}
	return &persistedDataset[T]{id: NewGUID(), parent: ds, level: level}
}

func (d *persistedDataset[T]) ID() GUID {
	return d.id
}

func (d *persistedDataset[T]) Partitions() []Partition {
	return d.parent.Partitions()
}

func (d *persistedDataset[T]) Compute(tc *TaskContext, p Partition) (iter.Seq[T], error) {
	return Iterator(tc, d.parent, p)
}

func (d *persistedDataset[T]) StorageLevel() StorageLevel {
	return d.level
}
