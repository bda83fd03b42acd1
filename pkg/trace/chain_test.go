package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChainSequenceIsGapless(t *testing.T) {
	c := New(func() time.Time { return time.Unix(0, 0) })

	c.Append(KindFormulated, nil)
	c.Append(KindResonanceComputed, map[string]int{"selected": 3})
	c.Append(KindOfferReceived, "alice")

	entries := c.Entries()
	for i, e := range entries {
		assert.Equal(t, i, e.Sequence)
	}
	assert.Equal(t, 3, c.Len())
}

func TestChainEntriesIsASnapshot(t *testing.T) {
	c := New(nil)
	c.Append(KindFormulated, nil)

	snap := c.Entries()
	c.Append(KindPlanEmitted, nil)

	assert.Len(t, snap, 1, "earlier snapshot must not observe later appends")
	assert.Equal(t, 2, c.Len())
}
