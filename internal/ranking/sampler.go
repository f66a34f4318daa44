package ranking

import "math/rand/v2"

// maxRejections bounds the rejection sampling fast path before falling back to an indexed walk.
const maxRejections = 64

// Sampler draws photo pairs uniformly at random. Draws are not seeded and not reproducible.
type Sampler struct {
	intN func(n int) int
}

// NewSampler returns a sampler backed by math/rand/v2.
func NewSampler() *Sampler {
	return &Sampler{intN: rand.IntN}
}

// RandomPair draws two distinct ids uniformly from ids.
func (s *Sampler) RandomPair(ids []int64) (int64, int64, error) {
	if len(ids) < 2 {
		return 0, 0, ErrInsufficientItems
	}
	i := s.intN(len(ids))
	j := s.intN(len(ids) - 1)
	if j >= i {
		j++
	}
	return ids[i], ids[j], nil
}

// UnjudgedPair draws uniformly among the unordered pairs of ids that are not in judged.
// ids must be distinct. Pairs in judged that reference ids outside the list are ignored.
func (s *Sampler) UnjudgedPair(ids []int64, judged PairSet) (int64, int64, error) {
	n := len(ids)
	if n < 2 {
		return 0, 0, ErrInsufficientItems
	}

	total := PairCount(n)
	seen := countJudged(ids, judged)
	remaining := total - seen
	if remaining <= 0 {
		return 0, 0, ErrPairsExhausted
	}

	// While at most half of the pairs are judged a random draw hits a fresh pair
	// with probability >= 1/2, so this rarely loops more than a couple of times.
	if seen*2 <= total {
		for range maxRejections {
			a, b, _ := s.RandomPair(ids)
			if !judged.Has(a, b) {
				return a, b, nil
			}
		}
	}

	target := s.intN(remaining)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if judged.Has(ids[i], ids[j]) {
				continue
			}
			if target == 0 {
				return s.order(ids[i], ids[j])
			}
			target--
		}
	}
	return 0, 0, ErrPairsExhausted
}

// order randomizes which photo is shown first.
func (s *Sampler) order(a, b int64) (int64, int64, error) {
	if s.intN(2) == 0 {
		return b, a, nil
	}
	return a, b, nil
}

func countJudged(ids []int64, judged PairSet) int {
	if len(judged) == 0 {
		return 0
	}
	present := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		present[id] = struct{}{}
	}
	count := 0
	for k := range judged {
		_, lo := present[k.Low]
		_, hi := present[k.High]
		if lo && hi && k.Low != k.High {
			count++
		}
	}
	return count
}
