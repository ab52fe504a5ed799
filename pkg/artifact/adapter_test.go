package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineSourceGetHandleResolvesVersion(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Save("doc", map[string]any{"body": "v1"}, nil, nil, nil)
	require.NoError(t, err)
	_, err = s.Save("doc", map[string]any{"body": "v2"}, nil, nil, nil)
	require.NoError(t, err)

	adapter := PipelineSource{Store: s}
	a, err := adapter.GetHandle(context.Background(), "artifact://doc/v1")
	require.NoError(t, err)
	assert.Equal(t, "artifact://doc/v1", a.Handle)
	assert.Equal(t, map[string]any{"body": "v1"}, a.Content)
}

func TestPipelineSourceGetHandleRejectsMalformed(t *testing.T) {
	adapter := PipelineSource{Store: New(t.TempDir())}
	_, err := adapter.GetHandle(context.Background(), "not-a-handle")
	require.Error(t, err)
}
