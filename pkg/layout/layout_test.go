package layout

import (
	"bytes"
	"io"
	"testing"

	"github.com/rstms/hybridiso/pkg/fstree"
	"github.com/rstms/hybridiso/pkg/isoerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sizedSource int64

func (s sizedSource) Size() int64                  { return int64(s) }
func (s sizedSource) Open() (io.ReadCloser, error) { return nil, io.EOF }

func TestAllocateNestedDirectories(t *testing.T) {
	tree := fstree.New()
	require.NoError(t, tree.AddFile("A/B/C.txt", fstree.BytesSource("hello")))

	end, err := Allocate(20, tree.Root())
	require.NoError(t, err)

	a, _ := tree.Resolve("A")
	b, _ := tree.Resolve("A/B")
	c, _ := tree.Resolve("A/B/C.txt")

	assert.Equal(t, uint32(20), tree.Root().LBA)
	assert.Equal(t, uint32(21), a.Location())
	assert.Equal(t, uint32(22), b.Location())
	assert.Equal(t, uint32(23), c.Location())
	assert.Equal(t, uint32(24), end)
}

func TestAllocateFileSizes(t *testing.T) {
	tree := fstree.New()
	require.NoError(t, tree.AddFile("a", sizedSource(1)))
	require.NoError(t, tree.AddFile("b", sizedSource(2048)))
	require.NoError(t, tree.AddFile("c", sizedSource(2049)))
	require.NoError(t, tree.AddFile("d", sizedSource(0)))
	require.NoError(t, tree.AddFile("e", sizedSource(10)))

	end, err := Allocate(100, tree.Root())
	require.NoError(t, err)

	lba := func(p string) uint32 {
		n, err := tree.Resolve(p)
		require.NoError(t, err)
		return n.Location()
	}
	assert.Equal(t, uint32(101), lba("a"))
	assert.Equal(t, uint32(102), lba("b"))
	assert.Equal(t, uint32(103), lba("c"))
	assert.Equal(t, uint32(105), lba("d"))
	assert.Equal(t, uint32(105), lba("e"))
	assert.Equal(t, uint32(106), end)
}

func TestAllocateMonotonic(t *testing.T) {
	tree := fstree.New()
	paths := []string{"z/1", "m/n/o", "a", "m/b", "EFI/BOOT/BOOTX64.EFI", "EFI/BOOT/grub.cfg", "m/n/p/q"}
	for i, p := range paths {
		require.NoError(t, tree.AddFile(p, sizedSource(int64(i+1)*3000)))
	}

	const start = 20
	end, err := Allocate(start, tree.Root())
	require.NoError(t, err)

	var total uint64
	prev := int64(-1)
	require.NoError(t, tree.Walk(func(n fstree.Node) error {
		assert.Greater(t, int64(n.Location()), prev, n.Name())
		prev = int64(n.Location())
		if n.IsDir() {
			total++
		} else {
			total += (uint64(n.DataLength()) + 2047) / 2048
		}
		return nil
	}))
	assert.Equal(t, uint64(start)+total, uint64(end))
}

func TestAllocateSkipsFixedExtents(t *testing.T) {
	tree := fstree.New()
	require.NoError(t, tree.AddExtent("boot.cat", 19, 2048))
	require.NoError(t, tree.AddFile("kernel", sizedSource(4096)))

	end, err := Allocate(20, tree.Root())
	require.NoError(t, err)

	cat, _ := tree.ResolveFile("boot.cat")
	kernel, _ := tree.ResolveFile("kernel")
	assert.Equal(t, uint32(19), cat.LBA)
	assert.Equal(t, uint32(21), kernel.LBA)
	assert.Equal(t, uint32(23), end)
}

func TestAllocateTwice(t *testing.T) {
	tree := fstree.New()
	_, err := Allocate(20, tree.Root())
	require.NoError(t, err)
	_, err = Allocate(20, tree.Root())
	require.ErrorIs(t, err, isoerr.ErrInvalidData)
}

func TestAllocateOverflow(t *testing.T) {
	tree := fstree.New()
	require.NoError(t, tree.AddFile("a", sizedSource(1<<32-1)))
	require.NoError(t, tree.AddFile("b", sizedSource(1<<32-1)))
	_, err := Allocate(0xFFFFF000, tree.Root())
	require.ErrorIs(t, err, isoerr.ErrInvalidInput)
}

func TestRegionMap(t *testing.T) {
	m := NewRegionMap()
	require.NoError(t, m.Add("system area", CategorySystemArea, 0, 16))
	require.NoError(t, m.Add("boot catalog", CategoryBoot, 19, 1))
	require.NoError(t, m.Add("pvd", CategoryDescriptor, 16, 1))
	require.NoError(t, m.Add("empty.txt", CategoryFile, 19, 0))

	err := m.Add("clash", CategoryFile, 15, 2)
	require.ErrorIs(t, err, isoerr.ErrInvalidData)

	regions := m.Regions()
	require.Len(t, regions, 4)
	assert.Equal(t, "system area", regions[0].Name)
	assert.Equal(t, "pvd", regions[1].Name)
	assert.Equal(t, uint64(20), m.End())

	var buf bytes.Buffer
	m.Report(&buf, false)
	out := buf.String()
	assert.Contains(t, out, "=== Image Layout ===")
	assert.Contains(t, out, "boot catalog")
	assert.Contains(t, out, "=== 20 sectors ===")
	assert.NotContains(t, out, "\x1b[")
}
