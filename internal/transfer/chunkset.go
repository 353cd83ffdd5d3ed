package transfer

// ChunkSet is a compact bitset of chunk indices in [0, total).
type ChunkSet struct {
	total int
	data  []byte
}

// NewChunkSet allocates an empty set for total chunks.
func NewChunkSet(total int) *ChunkSet {
	if total < 0 {
		total = 0
	}
	return &ChunkSet{
		total: total,
		data:  make([]byte, (total+7)/8),
	}
}

// ChunkSetOf builds a set from indices. Out-of-range indices are ignored.
func ChunkSetOf(total int, indexes []int) *ChunkSet {
	s := NewChunkSet(total)
	for _, i := range indexes {
		s.Add(i)
	}
	return s
}

// Total returns the number of chunks the set ranges over.
func (s *ChunkSet) Total() int {
	if s == nil {
		return 0
	}
	return s.total
}

// Add marks index i as present.
func (s *ChunkSet) Add(i int) {
	if s == nil || i < 0 || i >= s.total {
		return
	}
	s.data[i/8] |= 1 << uint(i%8)
}

// Has reports whether index i is present.
func (s *ChunkSet) Has(i int) bool {
	if s == nil || i < 0 || i >= s.total {
		return false
	}
	return s.data[i/8]&(1<<uint(i%8)) != 0
}

// Count returns the number of present indices.
func (s *ChunkSet) Count() int {
	if s == nil {
		return 0
	}
	count := 0
	for _, v := range s.data {
		for v != 0 {
			v &= v - 1
			count++
		}
	}
	return count
}

// Complete reports whether every index in [0, total) is present.
func (s *ChunkSet) Complete() bool {
	return s.Count() == s.Total()
}

// Indexes returns present indices in ascending order.
func (s *ChunkSet) Indexes() []int {
	out := make([]int, 0, s.Count())
	for i := 0; i < s.Total(); i++ {
		if s.Has(i) {
			out = append(out, i)
		}
	}
	return out
}

// Missing returns absent indices in ascending order.
func (s *ChunkSet) Missing() []int {
	out := make([]int, 0, s.Total()-s.Count())
	for i := 0; i < s.Total(); i++ {
		if !s.Has(i) {
			out = append(out, i)
		}
	}
	return out
}

// Clone returns an independent copy.
func (s *ChunkSet) Clone() *ChunkSet {
	if s == nil {
		return NewChunkSet(0)
	}
	data := make([]byte, len(s.data))
	copy(data, s.data)
	return &ChunkSet{total: s.total, data: data}
}
