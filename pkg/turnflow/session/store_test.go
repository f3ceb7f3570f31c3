package session_test

import (
	"os"
	"testing"

	"github.com/randalmurphal/traveops/pkg/turnflow/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviors every Store backend must
// share. Each subtest gets a fresh store from newStore.
func runStoreContract(t *testing.T, newStore func(t *testing.T) session.Store) {
	open := func(t *testing.T) session.Store {
		st := newStore(t)
		t.Cleanup(func() { st.Close() })
		return st
	}

	t.Run("save and load round-trips", func(t *testing.T) {
		st := open(t)

		payload := []byte(`{"city":"Tokyo"}`)
		require.NoError(t, st.Save("trip-alpha", "classify_intent", payload))

		got, err := st.Load("trip-alpha", "classify_intent")
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("load of missing snapshot", func(t *testing.T) {
		st := open(t)

		_, err := st.Load("no-such-run", "no-such-node")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("re-save replaces data", func(t *testing.T) {
		st := open(t)

		require.NoError(t, st.Save("trip-alpha", "classify_intent", []byte("draft")))
		require.NoError(t, st.Save("trip-alpha", "classify_intent", []byte("final")))

		got, err := st.Load("trip-alpha", "classify_intent")
		require.NoError(t, err)
		assert.Equal(t, []byte("final"), got)
	})

	t.Run("re-save moves snapshot to latest", func(t *testing.T) {
		st := open(t)

		require.NoError(t, st.Save("trip-alpha", "classify_intent", []byte("a1")))
		require.NoError(t, st.Save("trip-alpha", "extract_constraints", []byte("b1")))
		require.NoError(t, st.Save("trip-alpha", "classify_intent", []byte("a2")))

		infos, err := st.List("trip-alpha")
		require.NoError(t, err)
		require.Len(t, infos, 2)
		assert.Equal(t, "extract_constraints", infos[0].NodeID)
		assert.Equal(t, "classify_intent", infos[1].NodeID)
		assert.Greater(t, infos[1].Sequence, infos[0].Sequence)
	})

	t.Run("list of unknown run is empty", func(t *testing.T) {
		st := open(t)

		infos, err := st.List("no-such-run")
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run("list follows save order", func(t *testing.T) {
		st := open(t)

		nodes := []string{"classify_intent", "extract_constraints", "human_approval"}
		payloads := [][]byte{[]byte("a"), []byte("ab"), []byte("abc")}
		for i, node := range nodes {
			require.NoError(t, st.Save("trip-alpha", node, payloads[i]))
		}

		infos, err := st.List("trip-alpha")
		require.NoError(t, err)
		require.Len(t, infos, len(nodes))
		for i, info := range infos {
			assert.Equal(t, nodes[i], info.NodeID)
			assert.Equal(t, i+1, info.Sequence)
			assert.Equal(t, int64(len(payloads[i])), info.Size)
		}
	})

	t.Run("delete removes one snapshot", func(t *testing.T) {
		st := open(t)

		require.NoError(t, st.Save("trip-alpha", "classify_intent", []byte("data")))
		require.NoError(t, st.Delete("trip-alpha", "classify_intent"))

		_, err := st.Load("trip-alpha", "classify_intent")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("delete of missing snapshot succeeds", func(t *testing.T) {
		st := open(t)

		assert.NoError(t, st.Delete("no-such-run", "no-such-node"))
	})

	t.Run("delete run leaves other runs alone", func(t *testing.T) {
		st := open(t)

		require.NoError(t, st.Save("trip-alpha", "classify_intent", []byte("a")))
		require.NoError(t, st.Save("trip-alpha", "extract_constraints", []byte("b")))
		require.NoError(t, st.Save("trip-beta", "classify_intent", []byte("other")))

		require.NoError(t, st.DeleteRun("trip-alpha"))

		infos, err := st.List("trip-alpha")
		require.NoError(t, err)
		assert.Empty(t, infos)

		infos, err = st.List("trip-beta")
		require.NoError(t, err)
		assert.Len(t, infos, 1)
	})

	t.Run("sequences restart after delete run", func(t *testing.T) {
		st := open(t)

		require.NoError(t, st.Save("trip-alpha", "classify_intent", []byte("a")))
		require.NoError(t, st.Save("trip-alpha", "extract_constraints", []byte("b")))
		require.NoError(t, st.DeleteRun("trip-alpha"))

		require.NoError(t, st.Save("trip-alpha", "classify_intent", []byte("fresh")))
		infos, err := st.List("trip-alpha")
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, 1, infos[0].Sequence)
	})

	t.Run("runs are isolated", func(t *testing.T) {
		st := open(t)

		require.NoError(t, st.Save("trip-alpha", "classify_intent", []byte("alpha")))
		require.NoError(t, st.Save("trip-alpha", "extract_constraints", []byte("alpha-2")))
		require.NoError(t, st.Save("trip-beta", "classify_intent", []byte("beta")))

		got, err := st.Load("trip-alpha", "classify_intent")
		require.NoError(t, err)
		assert.Equal(t, []byte("alpha"), got)

		got, err = st.Load("trip-beta", "classify_intent")
		require.NoError(t, err)
		assert.Equal(t, []byte("beta"), got)

		infosAlpha, err := st.List("trip-alpha")
		require.NoError(t, err)
		infosBeta, err := st.List("trip-beta")
		require.NoError(t, err)
		assert.Len(t, infosAlpha, 2)
		assert.Len(t, infosBeta, 1)
	})

	t.Run("stored bytes are detached from callers", func(t *testing.T) {
		st := open(t)

		payload := []byte("pristine payload")
		require.NoError(t, st.Save("trip-alpha", "classify_intent", payload))
		payload[0] = 'X'

		first, err := st.Load("trip-alpha", "classify_intent")
		require.NoError(t, err)
		assert.Equal(t, []byte("pristine payload"), first)

		first[0] = 'Y'
		second, err := st.Load("trip-alpha", "classify_intent")
		require.NoError(t, err)
		assert.Equal(t, []byte("pristine payload"), second)
	})

	t.Run("operations after close fail", func(t *testing.T) {
		st := open(t)
		require.NoError(t, st.Close())

		assert.ErrorIs(t, st.Save("trip-alpha", "classify_intent", []byte("data")), session.ErrStoreClosed)
		_, err := st.Load("trip-alpha", "classify_intent")
		assert.ErrorIs(t, err, session.ErrStoreClosed)
		_, err = st.List("trip-alpha")
		assert.ErrorIs(t, err, session.ErrStoreClosed)
		assert.ErrorIs(t, st.Delete("trip-alpha", "classify_intent"), session.ErrStoreClosed)
		assert.ErrorIs(t, st.DeleteRun("trip-alpha"), session.ErrStoreClosed)
	})

	t.Run("load latest picks the newest snapshot", func(t *testing.T) {
		st := open(t)

		first := session.New("trip-alpha", "classify_intent", 1, []byte(`{"q":1}`), "extract_constraints")
		data, err := first.Marshal()
		require.NoError(t, err)
		require.NoError(t, st.Save("trip-alpha", "classify_intent", data))

		second := session.New("trip-alpha", "extract_constraints", 2, []byte(`{"q":2}`), "__end__").
			WithStatus(session.StatusCompleted)
		data, err = second.Marshal()
		require.NoError(t, err)
		require.NoError(t, st.Save("trip-alpha", "extract_constraints", data))

		snap, err := session.LoadLatest(st, "trip-alpha")
		require.NoError(t, err)
		assert.Equal(t, "extract_constraints", snap.NodeID)
		assert.Equal(t, session.StatusCompleted, snap.Status)
	})

	t.Run("load latest of unknown run", func(t *testing.T) {
		st := open(t)

		_, err := session.LoadLatest(st, "no-such-run")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) session.Store {
		return session.NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) session.Store {
		st, err := session.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return st
	})
}

// TestPostgresStore needs TEST_POSTGRES_DSN pointing at a scratch
// database.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	runStoreContract(t, func(t *testing.T) session.Store {
		st, err := session.NewPostgresStore(dsn)
		require.NoError(t, err)
		require.NoError(t, st.DeleteRun("trip-alpha"))
		require.NoError(t, st.DeleteRun("trip-beta"))
		return st
	})
}

// TestRedisStore needs TEST_REDIS_ADDR pointing at a scratch Redis
// instance.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	runStoreContract(t, func(t *testing.T) session.Store {
		st, err := session.NewRedisStore(addr, session.WithRedisKeyPrefix("traveops:test:"))
		require.NoError(t, err)
		require.NoError(t, st.DeleteRun("trip-alpha"))
		require.NoError(t, st.DeleteRun("trip-beta"))
		return st
	})
}
