package ranking

// PairKey is an unordered pair of photo ids, normalized so that Low < High.
// (A, B) and (B, A) produce the same key.
type PairKey struct {
	Low  int64
	High int64
}

// NewPairKey normalizes two ids into a PairKey.
func NewPairKey(a, b int64) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// Contains reports whether id is one side of the pair.
func (k PairKey) Contains(id int64) bool {
	return k.Low == id || k.High == id
}

// PairCount returns n*(n-1)/2, the number of unordered pairs over n items.
func PairCount(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}

// PairSet is a set of normalized pairs.
type PairSet map[PairKey]struct{}

// NewPairSet builds a set from keys.
func NewPairSet(keys ...PairKey) PairSet {
	s := make(PairSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether the pair of a and b is in the set, regardless of order.
func (s PairSet) Has(a, b int64) bool {
	_, ok := s[NewPairKey(a, b)]
	return ok
}

// Add inserts the pair of a and b.
func (s PairSet) Add(a, b int64) {
	s[NewPairKey(a, b)] = struct{}{}
}
