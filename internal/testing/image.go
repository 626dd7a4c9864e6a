package testing

import (
	"fmt"
	"io"
	"strings"

	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/descriptor"
	"github.com/rstms/hybridiso/pkg/directory"
	"github.com/rstms/hybridiso/pkg/eltorito"
	"github.com/rstms/hybridiso/pkg/hybrid"
)

// Image is a written image read back for assertions.
type Image struct {
	r          io.ReaderAt
	PVD        *descriptor.PrimaryVolumeDescriptor
	BootRecord *descriptor.BootRecordDescriptor
	Catalog    *eltorito.Catalog
}

// Entry is a directory record found while walking the image, with its path built from the on-disc identifiers.
type Entry struct {
	FullPath string
	Record   *directory.Record
}

// Name returns the last path element.
func (e *Entry) Name() string {
	return e.FullPath[strings.LastIndex(e.FullPath, "/")+1:]
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.Record.FileFlags.Directory
}

// Open parses the volume descriptors and the boot catalog of an image.
func Open(r io.ReaderAt) (*Image, error) {
	img := &Image{r: r}

	sector, err := img.ReadSector(consts.PRIMARY_VOLUME_DESCRIPTOR_LBA)
	if err != nil {
		return nil, err
	}
	img.PVD = &descriptor.PrimaryVolumeDescriptor{}
	if err := img.PVD.Unmarshal(sector); err != nil {
		return nil, err
	}

	if sector, err = img.ReadSector(consts.BOOT_RECORD_LBA); err != nil {
		return nil, err
	}
	img.BootRecord = &descriptor.BootRecordDescriptor{}
	if err := img.BootRecord.Unmarshal(sector); err != nil {
		return nil, err
	}

	if sector, err = img.ReadSector(img.BootRecord.BootCatalogLBA); err != nil {
		return nil, err
	}
	img.Catalog = &eltorito.Catalog{}
	if err := img.Catalog.Unmarshal(sector); err != nil {
		return nil, err
	}
	return img, nil
}

// ReadSector returns the 2048-byte sector at lba.
func (img *Image) ReadSector(lba uint32) ([]byte, error) {
	return img.ReadAt(int64(lba)*consts.ISO9660_SECTOR_SIZE, consts.ISO9660_SECTOR_SIZE)
}

// ReadAt returns n bytes at offset.
func (img *Image) ReadAt(offset int64, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := img.r.ReadAt(b, offset); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes at %d: %w", n, offset, err)
	}
	return b, nil
}

// Entries walks the directory hierarchy from the root record of the Primary Volume Descriptor and returns every
// record except "." and "..", parents before children. File paths drop the ";1" version.
func (img *Image) Entries() ([]*Entry, error) {
	var entries []*Entry
	var walk func(prefix string, lba uint32, depth int) error
	walk = func(prefix string, lba uint32, depth int) error {
		if depth > 64 {
			return fmt.Errorf("directory hierarchy below %s is too deep", prefix)
		}
		sector, err := img.ReadSector(lba)
		if err != nil {
			return err
		}
		records, err := directory.UnmarshalSector(sector)
		if err != nil {
			return err
		}
		for _, r := range records {
			if r.IsSpecial() {
				continue
			}
			name := strings.TrimSuffix(r.FileIdentifier, consts.ISO9660_FILE_VERSION)
			e := &Entry{FullPath: prefix + name, Record: r}
			entries = append(entries, e)
			if e.IsDir() {
				if err := walk(e.FullPath+"/", r.LocationOfExtent, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk("", img.PVD.RootDirectoryRecord.LocationOfExtent, 0); err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadFile returns the contents of the file at path, matched against the on-disc names.
func (img *Image) ReadFile(path string) ([]byte, error) {
	entries, err := img.Entries()
	if err != nil {
		return nil, err
	}
	want := strings.ToUpper(strings.Trim(path, "/"))
	for _, e := range entries {
		if e.FullPath == want && !e.IsDir() {
			return img.ReadAt(int64(e.Record.LocationOfExtent)*consts.ISO9660_SECTOR_SIZE, int(e.Record.DataLength))
		}
	}
	return nil, fmt.Errorf("file %s not found", path)
}

// MBR parses the partition table of sector 0.
func (img *Image) MBR() (*hybrid.MBR, error) {
	sector, err := img.ReadAt(0, consts.DISK_SECTOR_SIZE)
	if err != nil {
		return nil, err
	}
	mbr := &hybrid.MBR{}
	if err := mbr.Unmarshal(sector); err != nil {
		return nil, err
	}
	return mbr, nil
}

// GPT parses the GPT header at the 512-byte sector lba, checks its array CRC and returns the used entries.
func (img *Image) GPT(lba uint64) (*hybrid.Header, []*hybrid.PartitionEntry, error) {
	sector, err := img.ReadAt(int64(lba)*consts.DISK_SECTOR_SIZE, consts.DISK_SECTOR_SIZE)
	if err != nil {
		return nil, nil, err
	}
	h := &hybrid.Header{}
	if err := h.Unmarshal(sector); err != nil {
		return nil, nil, err
	}
	array, err := img.ReadAt(int64(h.ArrayLBA)*consts.DISK_SECTOR_SIZE, int(h.EntryCount*h.EntrySize))
	if err != nil {
		return nil, nil, err
	}
	if err := h.CheckArray(array); err != nil {
		return nil, nil, err
	}
	entries, err := hybrid.UnmarshalPartitionArray(array, h.EntryCount, h.EntrySize)
	if err != nil {
		return nil, nil, err
	}
	return h, entries, nil
}
