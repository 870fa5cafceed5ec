package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/roleplay"
)

func TestQueueDeduplicatesOnSessionTail(t *testing.T) {
	q := NewQueue(8)
	task := roleplay.MemoryTask{SessionID: "s1", LastMessageID: "m1"}

	require.NoError(t, q.Publish(task))
	require.NoError(t, q.Publish(task)) // duplicate tail: dropped silently
	require.NoError(t, q.Publish(roleplay.MemoryTask{SessionID: "s1", LastMessageID: "m2"}))

	assert.Len(t, q.Tasks(), 2)
}

func TestQueueFullReportsError(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Publish(roleplay.MemoryTask{SessionID: "s1", LastMessageID: "m1"}))
	err := q.Publish(roleplay.MemoryTask{SessionID: "s2", LastMessageID: "m2"})
	assert.Error(t, err)
}
