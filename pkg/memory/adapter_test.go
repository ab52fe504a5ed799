package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineSourceAdaptsRecordsToMemories(t *testing.T) {
	s := New(t.TempDir(), 0, nil)
	_, err := s.Store("fact", "database connection pool exhausted", nil, nil, nil)
	require.NoError(t, err)

	adapter := PipelineSource{Store: s}
	hits, err := adapter.RetrieveBySimilarity(context.Background(), "session-1", "connection pool", 5, 0.1, false)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "fact", hits[0].Type)
}
