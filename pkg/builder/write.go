package builder

import (
	"fmt"
	"io"

	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/descriptor"
	"github.com/rstms/hybridiso/pkg/directory"
	"github.com/rstms/hybridiso/pkg/fstree"
	"github.com/rstms/hybridiso/pkg/hybrid"
	"github.com/rstms/hybridiso/pkg/isoerr"
	"github.com/rstms/hybridiso/pkg/layout"
)

const copyBufferSize = 16 * consts.ISO9660_SECTOR_SIZE

// writeDescriptors clears the system area and writes the Primary Volume Descriptor, the Boot Record and the set
// terminator. The volume space size stays zero until finalize patches it.
func (b *Builder) writeDescriptors() error {
	zero := make([]byte, consts.ISO9660_SYSTEM_AREA_SECTORS*consts.ISO9660_SECTOR_SIZE)
	if _, err := b.out.WriteAt(zero, 0); err != nil {
		return fmt.Errorf("failed to clear system area: %w", err)
	}

	pvd := descriptor.NewPrimaryVolumeDescriptor(b.opts.VolumeIdentifier, b.tree.Root().LBA)
	pvd.SystemIdentifier = b.opts.SystemIdentifier
	pvd.PublisherIdentifier = b.opts.PublisherIdentifier
	pvd.ApplicationIdentifier = b.opts.ApplicationIdentifier
	pvd.SetRecordingTime(b.opts.RecordingTime)
	pvdData, err := pvd.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal primary volume descriptor: %w", err)
	}
	if err := descriptor.WriteAt(b.out, consts.PRIMARY_VOLUME_DESCRIPTOR_LBA, pvdData); err != nil {
		return err
	}

	brvd, err := descriptor.NewBootRecordDescriptor(consts.BOOT_CATALOG_LBA).Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal boot record: %w", err)
	}
	if err := descriptor.WriteAt(b.out, consts.BOOT_RECORD_LBA, brvd); err != nil {
		return err
	}

	term, err := descriptor.NewVolumeDescriptorSetTerminator().Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal set terminator: %w", err)
	}
	if err := descriptor.WriteAt(b.out, consts.TERMINATOR_LBA, term); err != nil {
		return err
	}
	b.log.Debug("Volume descriptors written", "volume", b.opts.VolumeIdentifier,
		"root", pvd.RootDirectoryRecord.LocationOfExtent)
	return nil
}

func (b *Builder) writeBootCatalog() error {
	data, err := b.catalog.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal boot catalog: %w", err)
	}
	if _, err := b.out.WriteAt(data, consts.BOOT_CATALOG_LBA*consts.ISO9660_SECTOR_SIZE); err != nil {
		return fmt.Errorf("failed to write boot catalog: %w", err)
	}
	b.log.Debug("Boot catalog written", "entries", len(b.catalog.Entries))
	return nil
}

// writeDirectories writes one sector per directory: ".", "..", then the children in allocation order.
func (b *Builder) writeDirectories() error {
	for _, dir := range b.tree.Directories() {
		records := []*directory.Record{
			directory.Self(dir.LBA),
			directory.Parent(dir.Parent().LBA),
		}
		for _, child := range dir.Children() {
			switch n := child.(type) {
			case *fstree.Directory:
				records = append(records, directory.ForDirectory(n.Name(), n.LBA))
			case *fstree.File:
				records = append(records, directory.ForFile(n.Name(), n.LBA, n.Size))
			}
		}
		for _, r := range records {
			r.RecordingDateAndTime = b.opts.RecordingTime
		}

		sector, err := directory.MarshalSector(records)
		if err != nil {
			return fmt.Errorf("failed to write directory %s: %w", dir.Path(), err)
		}
		if _, err := b.out.WriteAt(sector, int64(dir.LBA)*consts.ISO9660_SECTOR_SIZE); err != nil {
			return fmt.Errorf("failed to write directory %s: %w", dir.Path(), err)
		}
		b.log.Trace("Directory written", "path", dir.Path(), "lba", dir.LBA, "records", len(records))
	}
	return nil
}

// copyFileData streams the ESP image and every file into its extent, zero filling the last partial sector.
func (b *Builder) copyFileData() error {
	type job struct {
		name string
		lba  uint32
		src  fstree.Source
		size int64
	}
	var jobs []job
	if b.espExt != nil {
		jobs = append(jobs, job{"EFI System Partition", b.espExt.Start, b.espImg.Source(), b.espImg.Size()})
	}
	for _, f := range b.tree.Files() {
		if f.Fixed {
			continue
		}
		jobs = append(jobs, job{f.Path(), f.LBA, f.Source, int64(f.Size)})
	}

	buffer := make([]byte, copyBufferSize)
	for i, j := range jobs {
		if err := b.copyExtent(j.name, j.lba, j.src, j.size, buffer, i+1, len(jobs)); err != nil {
			return err
		}
	}
	b.log.Info("File data copied", "files", len(jobs))
	return nil
}

func (b *Builder) copyExtent(name string, lba uint32, src fstree.Source, size int64, buffer []byte,
	number, count int) error {
	if src.Size() != size {
		return isoerr.InvalidData("source of %s changed size from %d to %d bytes", name, size, src.Size())
	}
	r, err := src.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer r.Close()

	offset := int64(lba) * consts.ISO9660_SECTOR_SIZE
	var bytesTransferred int64
	for bytesTransferred < size {
		chunk := buffer
		if remaining := size - bytesTransferred; remaining < int64(len(buffer)) {
			chunk = buffer[:remaining]
		}
		n, err := io.ReadFull(r, chunk)
		if err != nil {
			return isoerr.InvalidData("source of %s ended after %d of %d bytes: %v", name, bytesTransferred+int64(n),
				size, err)
		}
		if _, err := b.out.WriteAt(chunk, offset+bytesTransferred); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		bytesTransferred += int64(n)

		if b.opts.ProgressCallback != nil {
			b.opts.ProgressCallback(name, bytesTransferred, size, number, count)
		}
	}

	if tail := size % consts.ISO9660_SECTOR_SIZE; tail != 0 {
		pad := make([]byte, consts.ISO9660_SECTOR_SIZE-tail)
		if _, err := b.out.WriteAt(pad, offset+size); err != nil {
			return fmt.Errorf("failed to pad %s: %w", name, err)
		}
	}
	b.log.Trace("File copied", "path", name, "lba", lba, "size", size)
	return nil
}

type truncater interface {
	Truncate(size int64) error
}

// finalize reserves the backup GPT sectors of a hybrid image, fixes the image length and patches the volume space
// size of the Primary Volume Descriptor with the final sector count.
func (b *Builder) finalize() error {
	total := uint64(b.contentEnd)
	if b.isHybrid {
		tail := make([]byte, consts.GPT_BACKUP_ISO_SECTORS*consts.ISO9660_SECTOR_SIZE)
		if _, err := b.out.WriteAt(tail, int64(total)*consts.ISO9660_SECTOR_SIZE); err != nil {
			return fmt.Errorf("failed to reserve backup GPT: %w", err)
		}
		if err := b.regions.Add("Backup GPT", layout.CategoryGPT, total, consts.GPT_BACKUP_ISO_SECTORS); err != nil {
			return err
		}
		total += consts.GPT_BACKUP_ISO_SECTORS
	}
	if total > uint64(^uint32(0)) {
		return isoerr.InvalidInput("image of %d sectors is too large", total)
	}
	if end := b.regions.End(); end != total {
		return isoerr.InvalidData("region map ends at sector %d, image at %d", end, total)
	}

	if t, ok := b.out.(truncater); ok {
		if err := t.Truncate(int64(total) * consts.ISO9660_SECTOR_SIZE); err != nil {
			return fmt.Errorf("failed to set image size: %w", err)
		}
	}
	if err := descriptor.PatchVolumeSpaceSize(b.out, uint32(total)); err != nil {
		return err
	}
	b.totalSectors = uint32(total)
	b.log.Debug("Volume space size patched", "sectors", total, "bytes", total*consts.ISO9660_SECTOR_SIZE)
	return nil
}

// writeHybridStructures lays the MBR and the GPT over the finished image. With an ESP the MBR entry is the active
// EFI System type, otherwise it only protects the GPT.
func (b *Builder) writeHybridStructures() error {
	if !b.isHybrid {
		return nil
	}
	bootable := b.espExt != nil
	table, err := hybrid.NewWriter(b.opts.GUIDSource, bootable).Write(b.out, b.totalSectors, b.espExt)
	if err != nil {
		return fmt.Errorf("failed to write partition tables: %w", err)
	}
	b.gpt = table
	b.log.Debug("Partition tables written", "disk_guid", table.Primary.DiskGUID.String(),
		"partitions", len(table.Entries), "last_usable", table.Layout.LastUsableLBA)
	return nil
}
