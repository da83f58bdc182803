package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftlab/sift/errors"
)

func TestAncestorsWalksToRoot(t *testing.T) {
	s := newTestStore(t)
	m1, s1, m2, s2 := buildChain(t, s)

	walk, err := s.Ancestors(s2)
	require.NoError(t, err)

	want := []NodeRef{
		{Kind: NodeSubset, ID: s2},
		{Kind: NodeMethod, ID: m2},
		{Kind: NodeSubset, ID: s1},
		{Kind: NodeMethod, ID: m1},
		{Kind: NodeSubset, ID: RootSubsetID},
	}
	assert.Equal(t, want, walk.Collect())
}

func TestDescendantsVisitsEverythingOnce(t *testing.T) {
	s := newTestStore(t)
	m1, s1, m2, s2 := buildChain(t, s)

	walk, err := s.Descendants(RootSubsetID)
	require.NoError(t, err)

	refs := walk.Collect()
	assert.Len(t, refs, 5)
	assert.Contains(t, refs, NodeRef{Kind: NodeSubset, ID: RootSubsetID})
	assert.Contains(t, refs, NodeRef{Kind: NodeMethod, ID: m1})
	assert.Contains(t, refs, NodeRef{Kind: NodeSubset, ID: s1})
	assert.Contains(t, refs, NodeRef{Kind: NodeMethod, ID: m2})
	assert.Contains(t, refs, NodeRef{Kind: NodeSubset, ID: s2})
}

func TestWalkOnMissingSubset(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Ancestors(99)
	assert.True(t, errors.IsNotFound(err))
	_, err = s.Descendants(99)
	assert.True(t, errors.IsNotFound(err))
}

func TestWalkSkipsNodesDeletedMidWalk(t *testing.T) {
	s := newTestStore(t)
	_, s1, m2, s2 := buildChain(t, s)

	walk, err := s.Descendants(RootSubsetID)
	require.NoError(t, err)

	// Take the first step, then delete the tail of the chain
	first, ok := walk.Next()
	require.True(t, ok)
	assert.Equal(t, NodeRef{Kind: NodeSubset, ID: RootSubsetID}, first)

	require.NoError(t, s.DeleteSubset(s1))

	var rest []NodeRef
	for ref, ok := walk.Next(); ok; ref, ok = walk.Next() {
		rest = append(rest, ref)
	}
	assert.NotContains(t, rest, NodeRef{Kind: NodeSubset, ID: s1})
	assert.NotContains(t, rest, NodeRef{Kind: NodeMethod, ID: m2})
	assert.NotContains(t, rest, NodeRef{Kind: NodeSubset, ID: s2})
}

func TestWalkIsSingleUse(t *testing.T) {
	s := newTestStore(t)
	buildChain(t, s)

	walk, err := s.Descendants(RootSubsetID)
	require.NoError(t, err)
	walk.Collect()

	_, ok := walk.Next()
	assert.False(t, ok)
}
