// Package fstree models the directory hierarchy of an image before any bytes are written. The tree is append-only:
// entries are added while composing and only their LBAs change afterwards.
package fstree

import (
	"strings"
	"unicode/utf8"

	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/helpers"
	"github.com/rstms/hybridiso/pkg/isoerr"
)

// Tree is the in-memory directory hierarchy of an image.
type Tree struct {
	root *Directory
}

// New returns an empty tree holding only the root directory.
func New() *Tree {
	return &Tree{root: newDirectory("", nil)}
}

// Root returns the root directory.
func (t *Tree) Root() *Directory {
	return t.root
}

// AddFile inserts a file leaf at path, creating missing intermediate directories.
func (t *Tree) AddFile(path string, src Source) error {
	if src == nil {
		return isoerr.InvalidInput("file %s has no source", path)
	}
	size := src.Size()
	if size < 0 || size > consts.ISO9660_MAX_FILE_SIZE {
		return isoerr.InvalidInput("file %s is %d bytes, larger than a single extent can hold", path, size)
	}
	return t.insert(path, &File{Source: src, Size: uint32(size)})
}

// AddExtent inserts a file leaf whose extent is already placed at lba. The allocator leaves it alone.
func (t *Tree) AddExtent(path string, lba uint32, size uint32) error {
	return t.insert(path, &File{Size: size, LBA: lba, Fixed: true})
}

// MkdirAll creates the directory at path and any missing parents.
func (t *Tree) MkdirAll(path string) (*Directory, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	return t.mkdirs(path, segments)
}

// Resolve returns the node at path. The empty path and "/" resolve to the root.
func (t *Tree) Resolve(path string) (Node, error) {
	if strings.Trim(path, "/") == "" {
		return t.root, nil
	}
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	var cur Node = t.root
	for _, seg := range segments {
		dir, ok := cur.(*Directory)
		if !ok {
			return nil, isoerr.NotFound("path %s", path)
		}
		next, ok := dir.Child(seg)
		if !ok {
			return nil, isoerr.NotFound("path %s", path)
		}
		cur = next
	}
	return cur, nil
}

// ResolveFile resolves path and requires the result to be a file.
func (t *Tree) ResolveFile(path string) (*File, error) {
	n, err := t.Resolve(path)
	if err != nil {
		return nil, err
	}
	f, ok := n.(*File)
	if !ok {
		return nil, isoerr.InvalidInput("path %s is a directory", path)
	}
	return f, nil
}

// Walk visits every node in pre-order with children in Children order, starting with the root.
func (t *Tree) Walk(fn func(n Node) error) error {
	return walk(t.root, fn)
}

func walk(n Node, fn func(n Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	dir, ok := n.(*Directory)
	if !ok {
		return nil
	}
	for _, child := range dir.Children() {
		if err := walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}

// Files returns every file in pre-order.
func (t *Tree) Files() []*File {
	var files []*File
	_ = t.Walk(func(n Node) error {
		if f, ok := n.(*File); ok {
			files = append(files, f)
		}
		return nil
	})
	return files
}

// Directories returns every directory in pre-order, the root first.
func (t *Tree) Directories() []*Directory {
	var dirs []*Directory
	_ = t.Walk(func(n Node) error {
		if d, ok := n.(*Directory); ok {
			dirs = append(dirs, d)
		}
		return nil
	})
	return dirs
}

func (t *Tree) insert(path string, f *File) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	parent, err := t.mkdirs(path, segments[:len(segments)-1])
	if err != nil {
		return err
	}
	leaf := segments[len(segments)-1]
	if _, exists := parent.Child(leaf); exists {
		return isoerr.AlreadyExists("path %s", path)
	}
	f.name = leaf
	f.parent = parent
	parent.children[helpers.IdentifierName(leaf)] = f
	return nil
}

func (t *Tree) mkdirs(path string, segments []string) (*Directory, error) {
	cur := t.root
	for _, seg := range segments {
		next, ok := cur.Child(seg)
		if !ok {
			dir := newDirectory(seg, cur)
			cur.children[helpers.IdentifierName(seg)] = dir
			cur = dir
			continue
		}
		dir, isDir := next.(*Directory)
		if !isDir {
			return nil, isoerr.AlreadyExists("segment %q of %s is a file", seg, path)
		}
		cur = dir
	}
	return cur, nil
}

// splitPath breaks an image path into validated segments. A single leading slash is allowed.
func splitPath(path string) ([]string, error) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return nil, isoerr.InvalidInput("empty path")
	}
	segments := strings.Split(trimmed, "/")
	for _, seg := range segments {
		if reason := invalidSegment(seg); reason != "" {
			return nil, isoerr.InvalidInput("path %q: %s", path, reason)
		}
	}
	return segments, nil
}

// invalidSegment returns why seg cannot be represented as a file identifier, or "" when it can.
func invalidSegment(seg string) string {
	switch {
	case seg == "":
		return "empty segment"
	case seg == "." || seg == "..":
		return "relative segment " + seg
	case !utf8.ValidString(seg):
		return "segment is not valid text"
	case !helpers.IsPrintableASCII(seg):
		return "segment " + seg + " is not printable ASCII"
	case strings.ContainsRune(seg, ';'):
		return "segment " + seg + " contains a version separator"
	}
	return ""
}
