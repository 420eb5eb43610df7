package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgekernel/core/pkg/coreerr"
	"github.com/edgekernel/core/pkg/symtab"
)

func TestMapPutGetFold(t *testing.T) {
	syms := symtab.New()
	m := NewMap(syms)

	require.NoError(t, m.Put("Name", Box("edge")))
	v, ok := m.Get("Name")
	require.True(t, ok)
	assert.Equal(t, "edge", v.(Boxed).UnboxString())

	assert.Equal(t, "Name", m.FoldKey("name"))
	assert.Equal(t, "other", m.FoldKey("other"))
}

func TestListInsertGetNegativeIndex(t *testing.T) {
	syms := symtab.New()
	l := NewList(syms)

	require.NoError(t, l.Insert(-1, Box(int64(1))))
	require.NoError(t, l.Insert(-1, Box(int64(2))))
	require.NoError(t, l.Insert(0, Box(int64(0))))

	got, err := l.Get(-1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.(Boxed).UnboxInt64())

	err = l.Insert(-2, Box(int64(9)))
	assert.Error(t, err)
}

func TestBufferGetPutInsertResize(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.Put(0, []byte("hello")))
	assert.Equal(t, uint32(5), b.Size())

	dst := make([]byte, 5)
	n := b.Get(0, dst)
	assert.Equal(t, uint32(5), n)
	assert.Equal(t, "hello", string(dst))

	require.NoError(t, b.Insert(5, []byte(" world")))
	assert.Equal(t, "hello world", string(b.Bytes()))

	require.NoError(t, b.Resize(5))
	assert.Equal(t, "hello", string(b.Bytes()))

	require.NoError(t, b.Resize(8))
	assert.Len(t, b.Bytes(), 8)
}

func TestCycleDetectionLeavesContainerUnchanged(t *testing.T) {
	syms := symtab.New()
	a := NewMap(syms)
	b := NewMap(syms)

	require.NoError(t, a.Put("x", b))

	err := b.Put("y", a)
	require.Error(t, err)
	assert.True(t, coreerr.As(err, coreerr.CycleError))
	assert.False(t, b.HasKey("y"))
}

func TestSelfCycleRejected(t *testing.T) {
	syms := symtab.New()
	a := NewMap(syms)
	err := a.Put("self", a)
	require.Error(t, err)
	assert.True(t, coreerr.As(err, coreerr.CycleError))
}

func TestCloneIsIndependentStructureSharedLeaves(t *testing.T) {
	syms := symtab.New()
	m := NewMap(syms)
	require.NoError(t, m.Put("k", Box(int64(1))))

	clone := m.Clone().(*Map)
	require.NoError(t, clone.Put("k", Box(int64(2))))

	v, _ := m.Get("k")
	assert.Equal(t, int64(1), v.(Boxed).UnboxInt64())
}

func TestJSONRoundTrip(t *testing.T) {
	syms := symtab.New()
	m := NewMap(syms)
	require.NoError(t, m.Put("name", Box("edge")))
	require.NoError(t, m.Put("count", Box(int64(3))))

	data, err := ToJSON(m)
	require.NoError(t, err)

	decoded, err := FromJSON(syms, data)
	require.NoError(t, err)
	decodedMap := decoded.(*Map)

	v, ok := decodedMap.Get("name")
	require.True(t, ok)
	assert.Equal(t, "edge", v.(Boxed).UnboxString())
}

func TestYAMLRoundTrip(t *testing.T) {
	syms := symtab.New()
	m := NewMap(syms)
	require.NoError(t, m.Put("enabled", Box(true)))

	data, err := ToYAML(m)
	require.NoError(t, err)

	decoded, err := FromYAML(syms, data)
	require.NoError(t, err)
	v, ok := decoded.(*Map).Get("enabled")
	require.True(t, ok)
	assert.True(t, v.(Boxed).UnboxBool())
}

func TestUnboxNumericNarrowingWraps(t *testing.T) {
	big := Box(int64(1) << 40)
	assert.Equal(t, int32(0), big.UnboxInt32())
}

func TestUnboxStringToBool(t *testing.T) {
	assert.True(t, Box("TRUE").UnboxBool())
	assert.False(t, Box("false").UnboxBool())
	assert.True(t, Box("1").UnboxBool())
}
