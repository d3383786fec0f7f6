// Package keylock serializes work on shared keys with a fixed set of striped
// mutexes.
package keylock

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Striped maps keys onto a fixed number of mutexes. Two keys may share a
// stripe; that only costs parallelism, never correctness.
type Striped struct {
	stripes []sync.Mutex
}

// New returns a lock set with n stripes (at least 1).
func New(n int) *Striped {
	if n < 1 {
		n = 1
	}
	return &Striped{stripes: make([]sync.Mutex, n)}
}

func (s *Striped) stripe(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(s.stripes)))
}

// LockAll locks the stripes of every key and returns the function that
// releases them. Stripes are taken in ascending order so that callers
// locking overlapping key sets cannot deadlock.
func (s *Striped) LockAll(keys ...string) (unlock func()) {
	seen := make(map[int]bool, len(keys))
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		i := s.stripe(k)
		if !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)

	for _, i := range idx {
		s.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			s.stripes[idx[j]].Unlock()
		}
	}
}
