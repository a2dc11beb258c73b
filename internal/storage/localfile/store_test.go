package localfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grocerygo/syncstore/internal/kv"
)

func TestGet_MissingKey(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get("cart_items")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestPutGet_RoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put("cart_items", []byte(`[{"product_id":"p1"}]`)))
	got, err := s.Get("cart_items")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[{"product_id":"p1"}]`), got)
}

func TestPut_OverwritesPreviousValue(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put("k", []byte("one")))
	require.NoError(t, s.Put("k", []byte("two")))

	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)
}

func TestValue_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put("cart_items", []byte("blob")))

	reopened, err := New(dir)
	require.NoError(t, err)
	got, err := reopened.Get("cart_items")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got)
}

func TestNew_CreatesNestedDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	_, err := New(dir)
	require.NoError(t, err)
}
