package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLookupRelease(t *testing.T) {
	tab := New()
	root := tab.CreateRoot()

	obj := "some-object"
	h := tab.Create(obj, root)

	got, ok := tab.Lookup(h)
	require.True(t, ok)
	assert.Equal(t, obj, got)

	tab.ReleaseRoot(root)

	_, ok = tab.Lookup(h)
	assert.False(t, ok)
}

func TestReleaseIsNoOpOnStaleHandle(t *testing.T) {
	tab := New()
	root := tab.CreateRoot()

	h := tab.Create("a", root)
	tab.Release(h, root)

	// Releasing again must not panic or affect anything else.
	tab.Release(h, root)
	_, ok := tab.Lookup(h)
	assert.False(t, ok)
}

func TestMultiRootAnchoringRequiresAllReleases(t *testing.T) {
	tab := New()
	rootA := tab.CreateRoot()
	rootB := tab.CreateRoot()

	h := tab.Create("shared", rootA)
	tab.Anchor(h, rootB)

	tab.Release(h, rootA)
	_, ok := tab.Lookup(h)
	require.True(t, ok, "object must survive while rootB still anchors it")

	tab.Release(h, rootB)
	_, ok = tab.Lookup(h)
	assert.False(t, ok)
}

func TestHandleReuseAdvancesGeneration(t *testing.T) {
	tab := New()
	root := tab.CreateRoot()

	h1 := tab.Create("first", root)
	tab.Release(h1, root)

	// Force reuse of the just-freed slot by exhausting the never-used range
	// (indices 2..growthBy), so the next Create must take h1's freed slot.
	for i := 0; i < growthBy-1; i++ {
		tab.Create(i, root)
	}

	h2 := tab.Create("second", root)
	if h1.index() == h2.index() {
		assert.NotEqual(t, h1.gen(), h2.gen())
		assert.NotEqual(t, h1, h2)
	}
}

func TestNullHandleAlwaysInvalid(t *testing.T) {
	tab := New()
	_, ok := tab.Lookup(Null)
	assert.False(t, ok)
}
