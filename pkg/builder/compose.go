package builder

import (
	"fmt"

	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/eltorito"
	"github.com/rstms/hybridiso/pkg/fstree"
	"github.com/rstms/hybridiso/pkg/helpers"
	"github.com/rstms/hybridiso/pkg/hybrid"
	"github.com/rstms/hybridiso/pkg/isoerr"
	"github.com/rstms/hybridiso/pkg/layout"
)

// compose checks the configuration, reserves the fixed regions at the start of the image and links the boot catalog
// into the tree.
func (b *Builder) compose() error {
	if err := b.checkIdentifiers(); err != nil {
		return err
	}
	if b.espImg != nil && !b.isHybrid {
		return isoerr.InvalidInput("an ESP image needs a hybrid image")
	}

	fixed := []struct {
		name     string
		category layout.Category
		start    uint64
		count    uint64
	}{
		{"System Area", layout.CategorySystemArea, 0, consts.ISO9660_SYSTEM_AREA_SECTORS},
		{"Primary Volume Descriptor", layout.CategoryDescriptor, consts.PRIMARY_VOLUME_DESCRIPTOR_LBA, 1},
		{"Boot Record", layout.CategoryDescriptor, consts.BOOT_RECORD_LBA, 1},
		{"Volume Descriptor Set Terminator", layout.CategoryDescriptor, consts.TERMINATOR_LBA, 1},
		{"Boot Catalog", layout.CategoryBoot, consts.BOOT_CATALOG_LBA, 1},
	}
	for _, r := range fixed {
		if err := b.regions.Add(r.name, r.category, r.start, r.count); err != nil {
			return err
		}
	}

	if bios := b.boot.Bios; bios != nil {
		if bios.Destination == "" {
			return isoerr.InvalidInput("BIOS boot needs the image destination")
		}
		if _, err := b.tree.ResolveFile(bios.Destination); err != nil {
			return fmt.Errorf("failed to find BIOS boot image: %w", err)
		}
		if bios.CatalogPath != "" {
			if err := b.tree.AddExtent(bios.CatalogPath, consts.BOOT_CATALOG_LBA, consts.ISO9660_SECTOR_SIZE); err != nil {
				return fmt.Errorf("failed to add boot catalog to the tree: %w", err)
			}
			b.log.Debug("Boot catalog linked into tree", "path", bios.CatalogPath)
		}
	}

	if uefi := b.boot.Uefi; uefi != nil && b.espImg == nil {
		if uefi.Destination == "" {
			return isoerr.InvalidInput("UEFI boot needs the image destination or an ESP image")
		}
		if _, err := b.tree.ResolveFile(uefi.Destination); err != nil {
			return fmt.Errorf("failed to find UEFI boot image: %w", err)
		}
	}

	b.contentEnd = consts.FIRST_CONTENT_LBA
	if b.espImg != nil {
		ext, err := hybrid.NewESPExtent(consts.ESP_START_LBA, b.espImg.Sectors512)
		if err != nil {
			return err
		}
		if err := b.regions.Add("EFI System Partition", layout.CategoryESP, uint64(ext.Start),
			uint64(ext.Sectors())); err != nil {
			return err
		}
		b.espExt = &ext
		b.contentEnd = ext.End + 1
		b.log.Debug("ESP reserved", "start", ext.Start, "end", ext.End, "sectors512", ext.Sectors512)
	}
	return nil
}

func (b *Builder) checkIdentifiers() error {
	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"volume identifier", b.opts.VolumeIdentifier, 32},
		{"system identifier", b.opts.SystemIdentifier, 32},
		{"publisher identifier", b.opts.PublisherIdentifier, 128},
		{"application identifier", b.opts.ApplicationIdentifier, 128},
	}
	for _, f := range fields {
		if len(f.value) > f.max {
			return isoerr.InvalidInput("%s %q is longer than %d characters", f.name, f.value, f.max)
		}
		if !helpers.IsPrintableASCII(f.value) {
			return isoerr.InvalidInput("%s %q is not printable ASCII", f.name, f.value)
		}
	}
	return nil
}

// allocate assigns every directory and file its extent after the reserved regions and builds the boot catalog from
// the resulting addresses.
func (b *Builder) allocate() error {
	start := b.contentEnd
	end, err := layout.Allocate(start, b.tree.Root())
	if err != nil {
		return err
	}
	b.contentEnd = end
	b.log.Debug("Tree allocated", "start", start, "end", end)

	err = b.tree.Walk(func(n fstree.Node) error {
		switch node := n.(type) {
		case *fstree.Directory:
			return b.regions.Add(node.Path(), layout.CategoryDirectory, uint64(node.LBA), 1)
		case *fstree.File:
			if node.Fixed {
				return nil
			}
			return b.regions.Add(node.Path(), layout.CategoryFile, uint64(node.LBA),
				helpers.ISOSectors(uint64(node.Size)))
		}
		return nil
	})
	if err != nil {
		return err
	}

	return b.buildCatalog()
}

// buildCatalog adds the BIOS entry first and the UEFI entry second.
func (b *Builder) buildCatalog() error {
	b.catalog = eltorito.NewCatalog(consts.EL_TORITO_MANUFACTURER_ID)

	if bios := b.boot.Bios; bios != nil {
		f, err := b.tree.ResolveFile(bios.Destination)
		if err != nil {
			return err
		}
		e, err := eltorito.NewEntry(eltorito.BIOS, f.LBA, uint64(f.Size))
		if err != nil {
			return err
		}
		b.catalog.Add(e)
		b.log.Debug("BIOS boot entry", "lba", e.LBA, "sectors", e.SectorCount)
	}

	if uefi := b.boot.Uefi; uefi != nil {
		var (
			e   *eltorito.Entry
			err error
		)
		if b.espExt != nil {
			e, err = eltorito.NewEntry(eltorito.EFI, b.espExt.Start, uint64(b.espImg.Size()))
		} else {
			var f *fstree.File
			if f, err = b.tree.ResolveFile(uefi.Destination); err != nil {
				return err
			}
			e, err = eltorito.NewEntry(eltorito.EFI, f.LBA, uint64(f.Size))
		}
		if err != nil {
			return err
		}
		b.catalog.Add(e)
		b.log.Debug("UEFI boot entry", "lba", e.LBA, "sectors", e.SectorCount)
	}
	return nil
}
