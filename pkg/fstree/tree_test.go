package fstree

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rstms/hybridiso/pkg/isoerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sizedSource int64

func (s sizedSource) Size() int64                  { return int64(s) }
func (s sizedSource) Open() (io.ReadCloser, error) { return nil, io.EOF }

func TestAddFileCreatesIntermediateDirectories(t *testing.T) {
	tree := New()
	require.NoError(t, tree.AddFile("EFI/BOOT/BOOTX64.EFI", BytesSource("payload")))

	n, err := tree.Resolve("/EFI/BOOT")
	require.NoError(t, err)
	require.True(t, n.IsDir())
	assert.Equal(t, "/EFI/BOOT", n.(*Directory).Path())

	f, err := tree.ResolveFile("EFI/BOOT/BOOTX64.EFI")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), f.Size)
	assert.Equal(t, "BOOTX64.EFI;1", f.Identifier())
	assert.Equal(t, "/EFI/BOOT/BOOTX64.EFI", f.Path())
	assert.Equal(t, n, f.Parent())
}

func TestAddFileConflicts(t *testing.T) {
	tree := New()
	require.NoError(t, tree.AddFile("a/b.txt", BytesSource("x")))

	t.Run("LeafExists", func(t *testing.T) {
		err := tree.AddFile("a/b.txt", BytesSource("y"))
		require.ErrorIs(t, err, isoerr.ErrAlreadyExists)
	})

	t.Run("LeafExistsDifferentCase", func(t *testing.T) {
		err := tree.AddFile("A/B.TXT", BytesSource("y"))
		require.ErrorIs(t, err, isoerr.ErrAlreadyExists)
	})

	t.Run("IntermediateIsFile", func(t *testing.T) {
		err := tree.AddFile("a/b.txt/c", BytesSource("y"))
		require.ErrorIs(t, err, isoerr.ErrAlreadyExists)
	})

	t.Run("DirectoryExists", func(t *testing.T) {
		err := tree.AddFile("a", BytesSource("y"))
		require.ErrorIs(t, err, isoerr.ErrAlreadyExists)
	})
}

func TestAddFileInvalidPaths(t *testing.T) {
	for _, p := range []string{"", "/", "a//b", "a/./b", "../b", "caf\xc3\xa9", "bad\xff", "x;1", "tab\tname"} {
		t.Run(p, func(t *testing.T) {
			err := New().AddFile(p, BytesSource("x"))
			require.ErrorIs(t, err, isoerr.ErrInvalidInput)
		})
	}
}

func TestAddFileTooLarge(t *testing.T) {
	err := New().AddFile("big.img", sizedSource(1<<32))
	require.ErrorIs(t, err, isoerr.ErrInvalidInput)

	require.NoError(t, New().AddFile("max.img", sizedSource(1<<32-1)))
}

func TestResolveNotFound(t *testing.T) {
	tree := New()
	require.NoError(t, tree.AddFile("a/b.txt", BytesSource("x")))

	_, err := tree.Resolve("a/missing")
	require.ErrorIs(t, err, isoerr.ErrNotFound)

	_, err = tree.Resolve("a/b.txt/deeper")
	require.ErrorIs(t, err, isoerr.ErrNotFound)

	root, err := tree.Resolve("/")
	require.NoError(t, err)
	assert.Equal(t, tree.Root(), root)
}

func TestAddExtent(t *testing.T) {
	tree := New()
	require.NoError(t, tree.AddExtent("boot/boot.cat", 19, 2048))
	f, err := tree.ResolveFile("boot/boot.cat")
	require.NoError(t, err)
	assert.True(t, f.Fixed)
	assert.Equal(t, uint32(19), f.LBA)
	assert.Nil(t, f.Source)
}

func TestChildrenSortedAndWalkPreOrder(t *testing.T) {
	tree := New()
	for _, p := range []string{"zeta", "b/two", "b/One", "a", "C/x"} {
		require.NoError(t, tree.AddFile(p, BytesSource("x")))
	}

	var names []string
	for _, c := range tree.Root().Children() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"a", "b", "C", "zeta"}, names)

	var visited []string
	require.NoError(t, tree.Walk(func(n Node) error {
		visited = append(visited, n.Name())
		return nil
	}))
	assert.Equal(t, []string{"", "a", "b", "One", "two", "C", "x", "zeta"}, visited)

	assert.Len(t, tree.Files(), 5)
	assert.Len(t, tree.Directories(), 3)
}

func TestMkdirAll(t *testing.T) {
	tree := New()
	grub, err := tree.MkdirAll("/boot/grub")
	require.NoError(t, err)
	assert.Equal(t, "grub", grub.Name())
	assert.Equal(t, "/boot/grub", grub.Path())
	assert.Empty(t, grub.Children())
	assert.Len(t, tree.Directories(), 3)

	again, err := tree.MkdirAll("BOOT/GRUB")
	require.NoError(t, err)
	assert.Same(t, grub, again)
	assert.Len(t, tree.Directories(), 3)

	require.NoError(t, tree.AddFile("boot/grub/grub.cfg", BytesSource("menu")))
	_, err = tree.MkdirAll("boot/grub/grub.cfg/x")
	assert.ErrorIs(t, err, isoerr.ErrAlreadyExists)
	_, err = tree.MkdirAll("")
	assert.ErrorIs(t, err, isoerr.ErrInvalidInput)
	_, err = tree.MkdirAll("boot/../etc")
	assert.ErrorIs(t, err, isoerr.ErrInvalidInput)
}

func TestRootIsItsOwnParent(t *testing.T) {
	tree := New()
	assert.True(t, tree.Root().IsRoot())
	assert.Equal(t, tree.Root(), tree.Root().Parent())
	assert.Equal(t, "/", tree.Root().Path())
}

func TestPathSource(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "kernel")
	require.NoError(t, os.WriteFile(p, []byte("vmlinuz"), 0o644))

	src, err := NewPathSource(p)
	require.NoError(t, err)
	assert.Equal(t, int64(7), src.Size())

	rc, err := src.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "vmlinuz", string(data))

	_, err = NewPathSource(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, isoerr.ErrNotFound)

	_, err = NewPathSource(dir)
	require.ErrorIs(t, err, isoerr.ErrInvalidInput)
}
