package graph

import "iter"

const (
	minCapacity = 8
	// The table grows when it is more than 70% full.
	loadFactorNum = 7
	loadFactorDen = 10
)

// VertexCountMap is an open-addressed hash map from vertex id to count,
// using linear probing. It accumulates degree counts for one partition.
// Not safe for concurrent use.
type VertexCountMap struct {
	keys     []VertexID
	values   []int
	occupied []bool
	size     int
	mask     uint64
}

func NewVertexCountMap(expected int) *VertexCountMap {
	capacity := minCapacity
	for capacity*loadFactorNum < expected*loadFactorDen {
		capacity <<= 1
	}
	m := &VertexCountMap{}
	m.allocate(capacity)
	return m
}

func (m *VertexCountMap) allocate(capacity int) {
	m.keys = make([]VertexID, capacity)
	m.values = make([]int, capacity)
	m.occupied = make([]bool, capacity)
	m.mask = uint64(capacity - 1)
	m.size = 0
}

// mix is the murmur3 64-bit finalizer. Vertex ids are often sequential,
// so the raw value makes a poor probe start.
func mix(k VertexID) uint64 {
	h := uint64(k)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

// slot returns the position of k, or the empty position where it belongs.
func (m *VertexCountMap) slot(k VertexID) int {
	pos := mix(k) & m.mask
	for m.occupied[pos] && m.keys[pos] != k {
		pos = (pos + 1) & m.mask
	}
	return int(pos)
}

// Update sets the count of k to v if k is new, and to merge(old, v) otherwise.
func (m *VertexCountMap) Update(k VertexID, v int, merge func(old, v int) int) {
	pos := m.slot(k)
	if m.occupied[pos] {
		m.values[pos] = merge(m.values[pos], v)
		return
	}
	m.keys[pos] = k
	m.values[pos] = v
	m.occupied[pos] = true
	m.size++
	if m.size*loadFactorDen > len(m.keys)*loadFactorNum {
		m.grow()
	}
}

func (m *VertexCountMap) Add(k VertexID, delta int) {
	m.Update(k, delta, sum)
}

// MergeMax keeps the larger of the stored count and v.
func (m *VertexCountMap) MergeMax(k VertexID, v int) {
	m.Update(k, v, larger)
}

func sum(a, b int) int { return a + b }

func larger(a, b int) int { return max(a, b) }

func (m *VertexCountMap) grow() {
	keys, values, occupied := m.keys, m.values, m.occupied
	m.allocate(2 * len(keys))
	for i, used := range occupied {
		if used {
			pos := m.slot(keys[i])
			m.keys[pos] = keys[i]
			m.values[pos] = values[i]
			m.occupied[pos] = true
			m.size++
		}
	}
}

func (m *VertexCountMap) Get(k VertexID) (int, bool) {
	pos := m.slot(k)
	if !m.occupied[pos] {
		return 0, false
	}
	return m.values[pos], true
}

func (m *VertexCountMap) Len() int {
	return m.size
}

// All yields the entries in table order.
func (m *VertexCountMap) All() iter.Seq2[VertexID, int] {
	return func(yield func(VertexID, int) bool) {
		for i, used := range m.occupied {
			if used && !yield(m.keys[i], m.values[i]) {
				return
			}
		}
	}
}
