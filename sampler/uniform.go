// Package sampler implements the "sample k peers uniformly at random
// without replacement within a round" rule from §4.4, grounded in
// the index-sampling shape of utils/sampler/weighted_without_replacement_generic.go
// (Initialize once, then repeated Sample(count) draws), specialized to the
// unweighted case the engine actually needs.
package sampler

import (
	"crypto/rand"
	"encoding/binary"
	"errors"

	"github.com/qudag/qudag/ids"
)

var ErrNotEnoughItems = errors.New("sampler: fewer items than requested sample size")

// UniformWithoutReplacement draws k distinct elements from population using
// a Fisher-Yates partial shuffle seeded from crypto/rand.
func UniformWithoutReplacement(population []ids.NodeID, k int) ([]ids.NodeID, error) {
	if k > len(population) {
		return nil, ErrNotEnoughItems
	}
	if k <= 0 {
		return nil, nil
	}

	pool := make([]ids.NodeID, len(population))
	copy(pool, population)

	for i := 0; i < k; i++ {
		j, err := randIntN(len(pool) - i)
		if err != nil {
			return nil, err
		}
		j += i
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k], nil
}

func randIntN(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint64(buf[:]) % uint64(n)), nil
}
