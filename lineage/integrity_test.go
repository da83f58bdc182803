package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckIntegrityCleanGraph(t *testing.T) {
	s := newTestStore(t)
	buildChain(t, s)
	assert.NoError(t, s.CheckIntegrity())
}

func TestCheckIntegrityDanglingProducer(t *testing.T) {
	s := newTestStore(t)
	_, s1, _, _ := buildChain(t, s)

	// Point the subset at a method that does not exist
	s.mu.Lock()
	bogus := int64(99)
	s.subsets[s1].ResultedIn = &bogus
	s.mu.Unlock()

	assert.Error(t, s.CheckIntegrity())
}

func TestCheckIntegrityMissingBackEdge(t *testing.T) {
	s := newTestStore(t)
	m1, s1, _, _ := buildChain(t, s)

	// Drop the produced entry so the method no longer points back
	s.mu.Lock()
	s.removeProduced(m1, s1)
	s.mu.Unlock()

	assert.Error(t, s.CheckIntegrity())
}

func TestCheckIntegrityUnreachableSubset(t *testing.T) {
	s := newTestStore(t)
	m1, _, _, _ := buildChain(t, s)

	// Detach the first method from the root; its subtree becomes unreachable
	s.mu.Lock()
	s.removeUsedBy(RootSubsetID, m1)
	s.mu.Unlock()

	require.Error(t, s.CheckIntegrity())
}

func TestCheckIntegrityRootWithProducer(t *testing.T) {
	s := newTestStore(t)
	m1, _, _, _ := buildChain(t, s)

	s.mu.Lock()
	s.subsets[RootSubsetID].ResultedIn = &m1
	s.mu.Unlock()

	assert.Error(t, s.CheckIntegrity())
}
