package keylock_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/serenissima/internal/keylock"
)

func TestLockAllSerializesSharedKeys(t *testing.T) {
	locks := keylock.New(8)
	counter := map[string]int{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys := []string{"citizen:anna", "building:bak-1"}
			if i%2 == 0 {
				keys = []string{"building:bak-1", "citizen:anna", "citizen:anna"}
			}
			unlock := locks.LockAll(keys...)
			defer unlock()
			counter["n"]++
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, counter["n"])
}

func TestLockAllWithNoKeys(t *testing.T) {
	unlock := keylock.New(0).LockAll()
	unlock()
}
