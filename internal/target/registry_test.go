package target

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cminor-lang/cc64/internal/ir"
)

type nullTarget struct{ runs int }

func (t *nullTarget) RunPipeline(m *ir.Module, out io.Writer) error { t.runs++; return nil }

func TestRegistry_GetInstantiatesOnceAndCaches(t *testing.T) {
	created := 0
	Register("test-null", func() BackendTarget {
		created++
		return &nullTarget{}
	})

	a, err := Get("test-null")
	require.NoError(t, err)
	b, err := Get("test-null")
	require.NoError(t, err)
	require.Same(t, a, b)
	require.Equal(t, 1, created)
}

func TestRegistry_UnknownTripleIsARecoverableError(t *testing.T) {
	_, err := Get("no-such-arch")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no-such-arch")
}

func TestRegistry_ListIsSorted(t *testing.T) {
	Register("test-zzz", func() BackendTarget { return &nullTarget{} })
	Register("test-aaa", func() BackendTarget { return &nullTarget{} })
	keys := List()
	require.Contains(t, keys, "test-aaa")
	require.Contains(t, keys, "test-zzz")
	for i := 1; i < len(keys); i++ {
		require.LessOrEqual(t, keys[i-1], keys[i])
	}
}
