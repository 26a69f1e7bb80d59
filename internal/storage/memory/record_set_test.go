package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
)

func TestRecordSetFirstInsertWins(t *testing.T) {
	t.Parallel()

	set := NewRecordSet[crawler.PostKey, crawler.PostRecord]()
	first := crawler.PostRecord{Title: "t", PostedAt: "at", PostedBy: "by", KarmaPoints: "10"}
	second := first
	second.KarmaPoints = "99"
	second.NumComments = "4"

	require.True(t, set.InsertIfAbsent(first.Key(), first))
	require.False(t, set.InsertIfAbsent(second.Key(), second))
	require.False(t, set.InsertIfAbsent(first.Key(), first))

	got := set.Snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "10", got[0].KarmaPoints)
}

func TestRecordSetCommentKeys(t *testing.T) {
	t.Parallel()

	set := NewRecordSet[crawler.CommentKey, crawler.CommentRecord]()
	c1 := crawler.CommentRecord{PostTitle: "p", OriginalPoster: "op", Commenter: "me", CommentedAt: "at", NumReplies: "0", KarmaPoints: "1"}
	c2 := c1
	c2.NumReplies = "7"
	c3 := c1
	c3.CommentedAt = "later"

	set.InsertIfAbsent(c1.Key(), c1)
	set.InsertIfAbsent(c2.Key(), c2)
	set.InsertIfAbsent(c3.Key(), c3)

	assert.Equal(t, 2, set.Len())
	assert.ElementsMatch(t, []crawler.CommentRecord{c1, c3}, set.Snapshot())
}

func TestRecordSetConcurrentInsertKeepsOnePerKey(t *testing.T) {
	t.Parallel()

	set := NewRecordSet[string, int]()
	var wg sync.WaitGroup
	var mu sync.Mutex
	stored := 0
	for worker := 0; worker < 16; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if set.InsertIfAbsent(fmt.Sprintf("key-%d", i), worker) {
					mu.Lock()
					stored++
					mu.Unlock()
				}
			}
		}(worker)
	}
	wg.Wait()

	assert.Equal(t, 100, stored)
	assert.Equal(t, 100, set.Len())
}

func TestRecordSetSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	set := NewRecordSet[string, string]()
	set.InsertIfAbsent("a", "alpha")
	snap := set.Snapshot()
	snap[0] = "mutated"
	assert.Equal(t, []string{"alpha"}, set.Snapshot())
}
