package session_test

import (
	"testing"

	"github.com/randalmurphal/traveops/pkg/turnflow/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Len(t *testing.T) {
	st := session.NewMemoryStore()
	defer st.Close()

	assert.Equal(t, 0, st.Len())

	require.NoError(t, st.Save("trip-alpha", "classify_intent", []byte("a")))
	require.NoError(t, st.Save("trip-alpha", "extract_constraints", []byte("b")))
	require.NoError(t, st.Save("trip-beta", "classify_intent", []byte("c")))
	assert.Equal(t, 3, st.Len())

	// Re-saving an existing key replaces, not grows.
	require.NoError(t, st.Save("trip-alpha", "classify_intent", []byte("a2")))
	assert.Equal(t, 3, st.Len())

	require.NoError(t, st.DeleteRun("trip-beta"))
	assert.Equal(t, 2, st.Len())
}
