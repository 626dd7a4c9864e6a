// Package layout assigns sector addresses to the tree and keeps track of which sectors of the image are in use.
package layout

import (
	"math"

	"github.com/rstms/hybridiso/pkg/fstree"
	"github.com/rstms/hybridiso/pkg/helpers"
	"github.com/rstms/hybridiso/pkg/isoerr"
)

// Allocate walks the tree below root in pre-order and assigns every directory and file its LBA, starting at start.
// A directory takes one sector, a file takes ceil(size/2048) sectors; an empty file is given the cursor but
// consumes nothing. Children are visited in byte-wise order of their upper-cased names so that identical trees
// always get identical addresses. Fixed extents keep the LBA they were created with.
//
// The returned cursor is the first sector after the last allocated extent.
func Allocate(start uint32, root *fstree.Directory) (uint32, error) {
	if root == nil {
		return 0, isoerr.InvalidInput("no root directory to allocate")
	}
	if root.LBA != 0 {
		return 0, isoerr.InvalidData("directory tree is already allocated at LBA %d", root.LBA)
	}
	a := &allocator{cursor: uint64(start)}
	if err := a.directory(root); err != nil {
		return 0, err
	}
	return uint32(a.cursor), nil
}

type allocator struct {
	cursor uint64
}

func (a *allocator) take(sectors uint64) (uint32, error) {
	lba := a.cursor
	if lba+sectors > math.MaxUint32 {
		return 0, isoerr.InvalidInput("image exceeds %d sectors", uint64(math.MaxUint32))
	}
	a.cursor += sectors
	return uint32(lba), nil
}

func (a *allocator) directory(d *fstree.Directory) error {
	lba, err := a.take(1)
	if err != nil {
		return err
	}
	d.LBA = lba

	for _, child := range d.Children() {
		switch n := child.(type) {
		case *fstree.Directory:
			if err := a.directory(n); err != nil {
				return err
			}
		case *fstree.File:
			if n.Fixed {
				continue
			}
			lba, err := a.take(helpers.ISOSectors(uint64(n.Size)))
			if err != nil {
				return err
			}
			n.LBA = lba
		}
	}
	return nil
}
