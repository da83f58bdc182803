package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftlab/sift/errors"
)

// buildChain derives root → m1 → s1 → m2 → s2 and returns the ids
func buildChain(t *testing.T, s *Store) (m1, s1, m2, s2 int64) {
	t.Helper()

	method1, err := s.CreateMethod(RootSubsetID, MethodFilterManual, nil)
	require.NoError(t, err)
	subset1, err := s.CreateSubset(method1.ID, "first", "", SelectIDs(1, 2, 3, 4))
	require.NoError(t, err)
	method2, err := s.CreateMethod(subset1.ID, MethodFilterManual, nil)
	require.NoError(t, err)
	subset2, err := s.CreateSubset(method2.ID, "second", "", SelectIDs(1, 2))
	require.NoError(t, err)
	return method1.ID, subset1.ID, method2.ID, subset2.ID
}

func TestDeleteMethodCascades(t *testing.T) {
	s := newTestStore(t)
	m1, s1, m2, s2 := buildChain(t, s)

	require.NoError(t, s.DeleteMethod(m1))

	for _, subsetID := range []int64{s1, s2} {
		_, err := s.Subset(subsetID)
		assert.True(t, errors.IsNotFound(err), "subset %d should be gone", subsetID)
	}
	for _, methodID := range []int64{m1, m2} {
		_, err := s.Method(methodID)
		assert.True(t, errors.IsNotFound(err), "method %d should be gone", methodID)
	}

	// The root survives with its usedBy pruned
	onRoot, err := s.MethodsOn(RootSubsetID)
	require.NoError(t, err)
	assert.Empty(t, onRoot)

	require.NoError(t, s.CheckIntegrity())
}

func TestDeleteSubsetCascades(t *testing.T) {
	s := newTestStore(t)
	m1, s1, m2, s2 := buildChain(t, s)

	require.NoError(t, s.DeleteSubset(s1))

	_, err := s.Method(m2)
	assert.True(t, errors.IsNotFound(err))
	_, err = s.Subset(s2)
	assert.True(t, errors.IsNotFound(err))

	// The producing method survives with its produced list pruned
	produced, err := s.ProducedBy(m1)
	require.NoError(t, err)
	assert.Empty(t, produced)

	require.NoError(t, s.CheckIntegrity())
}

func TestDeleteIsIdempotentlyNotFound(t *testing.T) {
	s := newTestStore(t)
	m1, s1, _, _ := buildChain(t, s)

	require.NoError(t, s.DeleteMethod(m1))
	assert.True(t, errors.IsNotFound(s.DeleteMethod(m1)))
	// Nodes removed by the cascade are equally gone
	assert.True(t, errors.IsNotFound(s.DeleteSubset(s1)))
}

func TestDeleteRootRejected(t *testing.T) {
	s := newTestStore(t)

	err := s.DeleteSubset(RootSubsetID)
	assert.True(t, errors.Is(err, errors.ErrInvariantViolation))
}

func TestDeleteEmitsEventPerNode(t *testing.T) {
	s := newTestStore(t)
	m1, _, _, _ := buildChain(t, s)

	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	require.NoError(t, s.DeleteMethod(m1))

	var methodDeletes, subsetDeletes int
	for i := 0; i < 4; i++ {
		switch ev := <-ch; ev.Kind {
		case EventMethodDeleted:
			methodDeletes++
		case EventSubsetDeleted:
			subsetDeletes++
		default:
			t.Fatalf("unexpected event kind %q", ev.Kind)
		}
	}
	assert.Equal(t, 2, methodDeletes)
	assert.Equal(t, 2, subsetDeletes)
}
