package permission

import "math/bits"

// MaxBits is the number of distinct permissions a Mask can hold.
const MaxBits = 512

// Mask is a fixed-width permission bitset.
type Mask [MaxBits / 64]uint64

// Has reports whether bit is set.
func (m *Mask) Has(bit int) bool {
	if bit < 0 || bit >= MaxBits {
		return false
	}
	return m[bit/64]&(1<<(bit%64)) != 0
}

// Set sets bit. Out-of-range bits are ignored.
func (m *Mask) Set(bit int) {
	if bit < 0 || bit >= MaxBits {
		return
	}
	m[bit/64] |= 1 << (bit % 64)
}

// Clear clears bit.
func (m *Mask) Clear(bit int) {
	if bit < 0 || bit >= MaxBits {
		return
	}
	m[bit/64] &^= 1 << (bit % 64)
}

// Union adds every bit of other to m.
func (m *Mask) Union(other Mask) {
	for i := range m {
		m[i] |= other[i]
	}
}

// Contains reports whether every bit of other is set in m.
func (m *Mask) Contains(other Mask) bool {
	for i := range m {
		if m[i]&other[i] != other[i] {
			return false
		}
	}
	return true
}

// Intersects reports whether m and other share a bit.
func (m *Mask) Intersects(other Mask) bool {
	for i := range m {
		if m[i]&other[i] != 0 {
			return true
		}
	}
	return false
}

// Count returns the number of set bits.
func (m *Mask) Count() int {
	n := 0
	for _, w := range m {
		n += bits.OnesCount64(w)
	}
	return n
}

// IsZero reports whether no bit is set.
func (m *Mask) IsZero() bool {
	return *m == Mask{}
}
