// Package builder turns a composed tree into an image. A Builder runs a fixed sequence of steps: compose the boot
// layout, allocate sectors, write the volume descriptors, the boot catalog, the directories and the file data, patch
// the final size and, for hybrid images, lay the MBR and GPT over the result.
package builder

import (
	"fmt"
	"io"

	"github.com/rstms/hybridiso/pkg/eltorito"
	"github.com/rstms/hybridiso/pkg/esp"
	"github.com/rstms/hybridiso/pkg/fstree"
	"github.com/rstms/hybridiso/pkg/hybrid"
	"github.com/rstms/hybridiso/pkg/isoerr"
	"github.com/rstms/hybridiso/pkg/layout"
	"github.com/rstms/hybridiso/pkg/logging"
	"github.com/rstms/hybridiso/pkg/options"
)

// BiosBoot describes the legacy BIOS boot image.
type BiosBoot struct {
	// CatalogPath, when set, exposes the boot catalog in the tree at this path.
	CatalogPath string
	// ImagePath is the host file holding the boot image.
	ImagePath string
	// Destination is the path of the boot image in the tree.
	Destination string
}

// UefiBoot describes the UEFI boot image.
type UefiBoot struct {
	// ImagePath is the host file holding the EFI application or FAT image.
	ImagePath string
	// KernelPath is an optional host file placed next to the image.
	KernelPath string
	// Destination is the path of the image in the tree.
	Destination string
}

// BootInfo selects the boot methods of an image. Either may be nil.
type BootInfo struct {
	Bios *BiosBoot
	Uefi *UefiBoot
}

// Builder writes one image. It cannot be reused.
type Builder struct {
	tree     *fstree.Tree
	opts     *options.Options
	log      *logging.Logger
	boot     BootInfo
	isHybrid bool
	state    State

	out     io.WriterAt
	espImg  *esp.Image
	espExt  *hybrid.ESPExtent
	catalog *eltorito.Catalog
	regions *layout.RegionMap
	// first sector after the allocated content
	contentEnd   uint32
	totalSectors uint32
	gpt          *hybrid.Table
}

// New returns a builder for tree.
func New(tree *fstree.Tree, opts ...options.Option) *Builder {
	o := options.Apply(opts...)
	return &Builder{
		tree:    tree,
		opts:    o,
		log:     logging.NewLogger(o.Logger).WithName("builder"),
		state:   StateInit,
		regions: layout.NewRegionMap(),
	}
}

// SetBootInfo selects the boot images. It must be called before Build.
func (b *Builder) SetBootInfo(info BootInfo) error {
	if b.state != StateInit {
		return isoerr.InvalidData("boot info cannot change in state %s", b.state)
	}
	b.boot = info
	return nil
}

// SetHybrid enables the MBR and GPT overlay. It must be called before Build.
func (b *Builder) SetHybrid(enabled bool) error {
	if b.state != StateInit {
		return isoerr.InvalidData("hybrid mode cannot change in state %s", b.state)
	}
	b.isHybrid = enabled
	return nil
}

// Build writes the image to out. espImage is the FAT image of the EFI System Partition of a hybrid image and may be
// nil. Any error leaves out incomplete and the builder failed; the caller discards the output.
func (b *Builder) Build(out io.WriterAt, espImage *esp.Image) error {
	if b.state != StateInit {
		return isoerr.InvalidData("builder is single use, already in state %s", b.state)
	}
	if out == nil {
		return isoerr.InvalidInput("no output to write to")
	}
	if b.tree == nil {
		return isoerr.InvalidInput("no tree to build")
	}
	b.out = out
	b.espImg = espImage

	steps := []struct {
		state State
		run   func() error
	}{
		{StateCompose, b.compose},
		{StateAllocate, b.allocate},
		{StateWriteDescriptors, b.writeDescriptors},
		{StateWriteBootCatalog, b.writeBootCatalog},
		{StateWriteDirectories, b.writeDirectories},
		{StateCopyFileData, b.copyFileData},
		{StateFinalize, b.finalize},
		{StateWriteHybridStructures, b.writeHybridStructures},
	}
	for _, step := range steps {
		b.state = step.state
		b.log.Debug("Entering state", "state", step.state.String())
		if err := step.run(); err != nil {
			b.state = StateFailed
			b.log.Error(err, "Build failed", "state", step.state.String())
			return fmt.Errorf("failed in state %s: %w", step.state, err)
		}
	}
	b.state = StateDone
	b.log.Info("Image complete", "sectors", b.totalSectors, "hybrid", b.isHybrid)
	return nil
}

// State returns the current state.
func (b *Builder) State() State {
	return b.state
}

// Regions returns the sector map of the image.
func (b *Builder) Regions() *layout.RegionMap {
	return b.regions
}

// TotalSectors returns the volume space size written to the Primary Volume Descriptor, 0 before Finalize.
func (b *Builder) TotalSectors() uint32 {
	return b.totalSectors
}

// ESPExtent returns the ESP region, nil when the image has none.
func (b *Builder) ESPExtent() *hybrid.ESPExtent {
	return b.espExt
}

// Catalog returns the boot catalog written to the image.
func (b *Builder) Catalog() *eltorito.Catalog {
	return b.catalog
}

// PartitionTable returns the MBR and GPT of a hybrid image.
func (b *Builder) PartitionTable() *hybrid.Table {
	return b.gpt
}
