package jobs

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/colligo/internal/common"
)

func TestDedupSetMarkVisited(t *testing.T) {
	set := NewDedupSet()

	hashes := common.HashURL("https://example.com/docs")
	assert.True(t, set.MarkVisited(hashes))
	assert.False(t, set.MarkVisited(hashes))
	assert.Equal(t, 1, set.VisitedCount())

	// Scheme variant collapses onto the same primary hash
	httpVariant := common.HashURL("http://example.com/docs")
	assert.False(t, set.MarkVisited(httpVariant))
	assert.True(t, set.SeenSchemeVariant(hashes))
	assert.False(t, set.SeenSchemeVariant(httpVariant), "http variant itself was never visited")
}

func TestDedupSetMarkContent(t *testing.T) {
	set := NewDedupSet()

	hash := common.ContentHash("# Page\n\nbody")
	assert.True(t, set.MarkContent(hash))
	assert.False(t, set.MarkContent(hash))
	assert.True(t, set.MarkContent(common.ContentHash("# Other\n\nbody")))
}

func TestDedupSetAtomicUnderConcurrency(t *testing.T) {
	set := NewDedupSet()

	const goroutines = 16
	wins := make(chan bool, goroutines)
	hashes := common.HashURL("https://example.com/contested")

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- set.MarkVisited(hashes)
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one marker wins the insert")
}

func TestDedupSetDistinctURLs(t *testing.T) {
	set := NewDedupSet()
	for i := 0; i < 100; i++ {
		assert.True(t, set.MarkVisited(common.HashURL(fmt.Sprintf("https://example.com/p%d", i))))
	}
	assert.Equal(t, 100, set.VisitedCount())
}
