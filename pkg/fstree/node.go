package fstree

import (
	"sort"
	"strings"

	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/helpers"
)

// Node is an entry of the tree, either a *File or a *Directory.
type Node interface {
	// Name is the name the node was added under.
	Name() string
	// Identifier is the on-disc file identifier: upper-cased, with a version suffix for files.
	Identifier() string
	// Location is the first sector of the node's extent, 0 until allocated.
	Location() uint32
	// DataLength is the size of the node's extent in bytes.
	DataLength() uint32
	IsDir() bool
	Parent() *Directory
}

// File is a leaf of the tree.
type File struct {
	name   string
	parent *Directory

	// Source supplies the file data. Nil for fixed extents.
	Source Source
	Size   uint32
	LBA    uint32
	// Fixed marks an extent whose location is decided by the builder rather than the allocator.
	Fixed bool
}

func (f *File) Name() string {
	return f.name
}

func (f *File) Identifier() string {
	return helpers.IdentifierName(f.name) + consts.ISO9660_FILE_VERSION
}

func (f *File) Location() uint32 {
	return f.LBA
}

func (f *File) DataLength() uint32 {
	return f.Size
}

func (f *File) IsDir() bool {
	return false
}

func (f *File) Parent() *Directory {
	return f.parent
}

// Path returns the slash separated path of the file inside the image.
func (f *File) Path() string {
	return joinPath(f.parent, f.name)
}

// Directory holds uniquely named children. Its extent is always exactly one sector.
type Directory struct {
	name     string
	parent   *Directory
	children map[string]Node

	LBA uint32
}

func newDirectory(name string, parent *Directory) *Directory {
	return &Directory{name: name, parent: parent, children: make(map[string]Node)}
}

func (d *Directory) Name() string {
	return d.name
}

func (d *Directory) Identifier() string {
	return helpers.IdentifierName(d.name)
}

func (d *Directory) Location() uint32 {
	return d.LBA
}

func (d *Directory) DataLength() uint32 {
	return consts.ISO9660_SECTOR_SIZE
}

func (d *Directory) IsDir() bool {
	return true
}

// Parent returns the parent directory. The root is its own parent, as in its ".." record.
func (d *Directory) Parent() *Directory {
	if d.parent == nil {
		return d
	}
	return d.parent
}

// IsRoot reports whether d is the root of its tree.
func (d *Directory) IsRoot() bool {
	return d.parent == nil
}

// Path returns the slash separated path of the directory inside the image, "/" for the root.
func (d *Directory) Path() string {
	if d.parent == nil {
		return "/"
	}
	return joinPath(d.parent, d.name)
}

// Children returns the children sorted byte-wise by their upper-cased names. The order is the order of the
// directory records and of the sector allocation.
func (d *Directory) Children() []Node {
	keys := make([]string, 0, len(d.children))
	for k := range d.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Node, 0, len(keys))
	for _, k := range keys {
		out = append(out, d.children[k])
	}
	return out
}

// Child looks a name up case-insensitively.
func (d *Directory) Child(name string) (Node, bool) {
	n, ok := d.children[helpers.IdentifierName(name)]
	return n, ok
}

func joinPath(parent *Directory, name string) string {
	if parent == nil || parent.parent == nil {
		return "/" + name
	}
	return strings.TrimSuffix(parent.Path(), "/") + "/" + name
}
