package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAssignsIncrementingVersions(t *testing.T) {
	s := New(t.TempDir())
	v1, err := s.Save("evidence", map[string]any{"step": 1}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	v2, err := s.Save("evidence", map[string]any{"step": 2}, &v1, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v2)
}

func TestGetReturnsLatestByDefault(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Save("doc", "v1 content", nil, nil, nil)
	require.NoError(t, err)
	_, err = s.Save("doc", "v2 content", nil, nil, nil)
	require.NoError(t, err)

	content, meta, err := s.Get("doc", nil)
	require.NoError(t, err)
	assert.Equal(t, "v2 content", content)
	assert.Equal(t, 2, meta.Version)
}

func TestGetSpecificVersion(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Save("doc", "v1 content", nil, nil, nil)
	require.NoError(t, err)
	_, err = s.Save("doc", "v2 content", nil, nil, nil)
	require.NoError(t, err)

	one := 1
	content, _, err := s.Get("doc", &one)
	require.NoError(t, err)
	assert.Equal(t, "v1 content", content)
}

func TestGetUnknownArtifactReturnsNotFound(t *testing.T) {
	s := New(t.TempDir())
	_, _, err := s.Get("missing", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListVersionsAndAllArtifacts(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Save("a", "1", nil, nil, nil)
	require.NoError(t, err)
	_, err = s.Save("a", "2", nil, nil, nil)
	require.NoError(t, err)
	_, err = s.Save("b", "1", nil, nil, nil)
	require.NoError(t, err)

	versions, err := s.ListVersions("a")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)

	all, err := s.ListAllArtifacts()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, all)
}

func TestGetVersionLineageWalksToRoot(t *testing.T) {
	s := New(t.TempDir())
	v1, err := s.Save("chain", "root", nil, nil, nil)
	require.NoError(t, err)
	v2, err := s.Save("chain", "child", &v1, nil, nil)
	require.NoError(t, err)
	v3, err := s.Save("chain", "grandchild", &v2, nil, nil)
	require.NoError(t, err)

	lineage, err := s.GetVersionLineage("chain", v3)
	require.NoError(t, err)
	assert.Equal(t, []int{v1, v2, v3}, lineage)
}

func TestApplyVersionLimitKeepsParentsOfKeptVersions(t *testing.T) {
	s := New(t.TempDir())
	v1, _ := s.Save("chain", "root", nil, nil, nil)
	v2, _ := s.Save("chain", "child", &v1, nil, nil)
	v3, _ := s.Save("chain", "grandchild", &v2, nil, nil)
	_, _ = s.Save("chain", "orphan", nil, nil, nil) // v4, unrelated root

	deleted, err := s.ApplyVersionLimit("chain", 1)
	require.NoError(t, err)
	// only v4 (most recent, no parent) survives; v1-v3 all fall outside
	// the kept-1 window and none of them is an ancestor of v4.
	assert.ElementsMatch(t, []int{v1, v2, v3}, deleted)

	remaining, err := s.ListVersions("chain")
	require.NoError(t, err)
	assert.Equal(t, []int{4}, remaining)
}

func TestApplyVersionLimitPreservesAncestryOfKeptVersion(t *testing.T) {
	s := New(t.TempDir())
	v1, _ := s.Save("chain", "root", nil, nil, nil)
	v2, _ := s.Save("chain", "child", &v1, nil, nil)
	v3, _ := s.Save("chain", "grandchild", &v2, nil, nil)

	deleted, err := s.ApplyVersionLimit("chain", 1)
	require.NoError(t, err)
	// keeping only v3 (the most recent) must still keep its ancestors v1,v2.
	assert.Empty(t, deleted)

	remaining, err := s.ListVersions("chain")
	require.NoError(t, err)
	assert.Equal(t, []int{v1, v2, v3}, remaining)
}

func TestApplyVersionLimitNoOpWhenUnderLimit(t *testing.T) {
	s := New(t.TempDir())
	_, _ = s.Save("chain", "v1", nil, nil, nil)
	deleted, err := s.ApplyVersionLimit("chain", 5)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}
