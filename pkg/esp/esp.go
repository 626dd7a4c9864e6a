// Package esp builds the FAT image of an EFI System Partition. The filesystem itself is written by go-diskfs; this
// package sizes the image, lays out its files and keeps it in a temporary file until the builder has copied it.
package esp

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/diskfs/go-diskfs/filesystem/fat32"
	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/fstree"
	"github.com/rstms/hybridiso/pkg/helpers"
	"github.com/rstms/hybridiso/pkg/isoerr"
	"github.com/rstms/hybridiso/pkg/logging"
)

const (
	// Sectors go-diskfs reserves ahead of the FATs.
	FAT_RESERVED_SECTORS = 32
	// Smallest image handed to go-diskfs.
	MIN_IMAGE_SECTORS = 2048
	// Longest FAT volume label.
	MAX_LABEL_LENGTH = 11
	// Offset of the volume serial number in a FAT32 boot sector.
	FAT32_VOLUME_ID_OFFSET = 0x43
	// Sector of the boot sector copy go-diskfs writes.
	FAT32_BACKUP_BOOT_SECTOR = 6

	// Directory entries per 512-byte cluster, each name costing up to three entries with its long name parts.
	dirEntriesPerCluster = consts.DISK_SECTOR_SIZE / 32
	entriesPerName       = 3
)

// Image is a FAT image on disk, sized to a whole number of ISO sectors.
type Image struct {
	File       *os.File
	Path       string
	Sectors512 uint32
	temporary  bool
}

// Create writes files into a new FAT image. Keys of files are slash separated paths inside the filesystem. Images
// larger than 65535 512-byte sectors cannot be described by a boot catalog entry and are ErrInvalidInput.
func Create(files map[string]fstree.Source, label string, log *logging.Logger) (*Image, error) {
	if log == nil {
		log = logging.DefaultLogger()
	}
	if len(label) > MAX_LABEL_LENGTH {
		return nil, isoerr.InvalidInput("ESP label %q is longer than %d characters", label, MAX_LABEL_LENGTH)
	}

	paths, dirs, err := plan(files)
	if err != nil {
		return nil, err
	}
	if err := checkLabel(label, paths); err != nil {
		return nil, err
	}
	sectors := imageSectors(files, paths, dirs)
	if sectors > consts.EL_TORITO_MAX_SECTOR_COUNT {
		return nil, isoerr.InvalidInput("ESP needs %d sectors of %d bytes, limit is %d", sectors,
			consts.DISK_SECTOR_SIZE, consts.EL_TORITO_MAX_SECTOR_COUNT)
	}
	log.Debug("Creating ESP image", "files", len(paths), "directories", len(dirs), "sectors", sectors)

	f, err := os.CreateTemp("", "hybridiso-esp-*.img")
	if err != nil {
		return nil, fmt.Errorf("failed to create ESP temp file: %w", err)
	}
	img := &Image{File: f, Path: f.Name(), Sectors512: uint32(sectors), temporary: true}

	if err := img.populate(files, paths, dirs, label, log); err != nil {
		img.Close()
		return nil, err
	}
	log.Info("ESP image created", "path", img.Path, "sectors", img.Sectors512)
	return img, nil
}

func (img *Image) populate(files map[string]fstree.Source, paths, dirs []string, label string,
	log *logging.Logger) error {
	size := int64(img.Sectors512) * consts.DISK_SECTOR_SIZE
	if err := img.File.Truncate(size); err != nil {
		return fmt.Errorf("failed to size ESP image: %w", err)
	}
	fs, err := fat32.Create(img.File, size, 0, consts.DISK_SECTOR_SIZE, label)
	if err != nil {
		return fmt.Errorf("failed to create FAT filesystem: %w", err)
	}

	for _, dir := range dirs {
		log.Trace("Creating ESP directory", "path", dir)
		if err := fs.Mkdir(dir); err != nil {
			return fmt.Errorf("failed to create ESP directory %s: %w", dir, err)
		}
	}

	for _, p := range paths {
		src := files[p]
		log.Trace("Writing ESP file", "path", p, "size", src.Size())
		if err := copyInto(fs, "/"+p, src); err != nil {
			return err
		}
	}
	return nil
}

func copyInto(fs *fat32.FileSystem, p string, src fstree.Source) error {
	dst, err := fs.OpenFile(p, os.O_CREATE|os.O_RDWR)
	if err != nil {
		return fmt.Errorf("failed to create ESP file %s: %w", p, err)
	}
	r, err := src.Open()
	if err != nil {
		return fmt.Errorf("failed to open source of ESP file %s: %w", p, err)
	}
	defer r.Close()
	if _, err := io.Copy(dst, r); err != nil {
		return fmt.Errorf("failed to write ESP file %s: %w", p, err)
	}
	return nil
}

// checkLabel rejects a label naming a top-level entry. The FAT volume label is itself a root directory entry, so
// the two would collide.
func checkLabel(label string, paths []string) error {
	name := strings.TrimSpace(label)
	if name == "" {
		return nil
	}
	for _, p := range paths {
		top, _, _ := strings.Cut(p, "/")
		if strings.EqualFold(top, name) {
			return isoerr.InvalidInput("ESP label %q collides with the top-level entry %q", label, top)
		}
	}
	return nil
}

// plan normalizes and sorts the file paths and returns every directory they need, parents first.
func plan(files map[string]fstree.Source) ([]string, []string, error) {
	paths := make([]string, 0, len(files))
	seen := map[string]bool{}
	for p, src := range files {
		clean := strings.Trim(p, "/")
		if clean == "" || path.Clean(clean) != clean || clean == ".." || strings.HasPrefix(clean, "../") {
			return nil, nil, isoerr.InvalidInput("invalid ESP path %q", p)
		}
		if src == nil {
			return nil, nil, isoerr.InvalidInput("ESP file %q has no source", p)
		}
		if seen[strings.ToUpper(clean)] {
			return nil, nil, isoerr.AlreadyExists("ESP file %q given twice", p)
		}
		seen[strings.ToUpper(clean)] = true
		paths = append(paths, clean)
	}
	sort.Strings(paths)

	dirSet := map[string]bool{}
	for _, p := range paths {
		for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
			dirSet["/"+dir] = true
		}
	}
	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return paths, dirs, nil
}

// imageSectors estimates the 512-byte sectors of a FAT32 filesystem holding the files: one sector per cluster of
// data, directory clusters for the entries, two FATs of 4 bytes per cluster and a tenth as slack. The result is a
// whole number of ISO sectors.
func imageSectors(files map[string]fstree.Source, paths, dirs []string) uint64 {
	var clusters uint64
	for _, p := range paths {
		clusters += helpers.DiskSectors(uint64(files[p].Size()))
	}
	// root plus one cluster per directory, grown by the names each holds
	clusters += 1 + uint64(len(dirs))
	clusters += helpers.CeilDiv(uint64(len(paths)+len(dirs))*entriesPerName, dirEntriesPerCluster)

	fat := helpers.CeilDiv((clusters+2)*4, consts.DISK_SECTOR_SIZE)
	sectors := FAT_RESERVED_SECTORS + 2*fat + clusters
	sectors += sectors / 10
	if sectors < MIN_IMAGE_SECTORS {
		sectors = MIN_IMAGE_SECTORS
	}
	return helpers.ISOSectors(sectors*consts.DISK_SECTOR_SIZE) * consts.DISK_SECTORS_PER_ISO_SECTOR
}

// FromBytes wraps an already built FAT image. The data is written to a temporary file, zero padded to a whole ISO
// sector.
func FromBytes(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, isoerr.InvalidInput("ESP image is empty")
	}
	sectors := helpers.ISOSectors(uint64(len(data))) * consts.DISK_SECTORS_PER_ISO_SECTOR
	if sectors > consts.EL_TORITO_MAX_SECTOR_COUNT {
		return nil, isoerr.InvalidInput("ESP image of %d bytes exceeds %d sectors", len(data),
			consts.EL_TORITO_MAX_SECTOR_COUNT)
	}
	f, err := os.CreateTemp("", "hybridiso-esp-*.img")
	if err != nil {
		return nil, fmt.Errorf("failed to create ESP temp file: %w", err)
	}
	img := &Image{File: f, Path: f.Name(), Sectors512: uint32(sectors), temporary: true}
	if _, err := f.Write(data); err != nil {
		img.Close()
		return nil, fmt.Errorf("failed to write ESP image: %w", err)
	}
	if err := f.Truncate(int64(sectors) * consts.DISK_SECTOR_SIZE); err != nil {
		img.Close()
		return nil, fmt.Errorf("failed to pad ESP image: %w", err)
	}
	return img, nil
}

// Open uses an existing FAT image file. Close leaves the file in place.
func Open(p string) (*Image, error) {
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, isoerr.NotFound("ESP image %s does not exist", p)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open ESP image: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat ESP image: %w", err)
	}
	sectors := helpers.DiskSectors(uint64(info.Size()))
	if sectors == 0 || sectors > consts.EL_TORITO_MAX_SECTOR_COUNT {
		f.Close()
		return nil, isoerr.InvalidInput("ESP image %s of %d bytes must hold 1 to %d sectors", p, info.Size(),
			consts.EL_TORITO_MAX_SECTOR_COUNT)
	}
	return &Image{File: f, Path: p, Sectors512: uint32(sectors)}, nil
}

// SetVolumeID replaces the clock derived volume serial number go-diskfs writes into both boot sectors of a FAT32
// image made by Create.
func (img *Image) SetVolumeID(id uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], id)
	for _, sector := range []int64{0, FAT32_BACKUP_BOOT_SECTOR} {
		offset := sector*consts.DISK_SECTOR_SIZE + FAT32_VOLUME_ID_OFFSET
		if _, err := img.File.WriteAt(b[:], offset); err != nil {
			return fmt.Errorf("failed to set ESP volume ID: %w", err)
		}
	}
	return nil
}

// Size returns the image size in bytes.
func (img *Image) Size() int64 {
	return int64(img.Sectors512) * consts.DISK_SECTOR_SIZE
}

// Source returns the image as a file source. Bytes past the end of the file read as zeros.
func (img *Image) Source() fstree.Source {
	return imageSource{img}
}

// Close closes the image and removes it when it is a temporary file.
func (img *Image) Close() error {
	if img.File == nil {
		return nil
	}
	err := img.File.Close()
	img.File = nil
	if img.temporary {
		if rmErr := os.Remove(img.Path); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}

type imageSource struct {
	img *Image
}

func (s imageSource) Size() int64 {
	return s.img.Size()
}

func (s imageSource) Open() (io.ReadCloser, error) {
	if s.img.File == nil {
		return nil, fmt.Errorf("ESP image %s is closed", s.img.Path)
	}
	info, err := s.img.File.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat ESP image: %w", err)
	}
	data := io.NewSectionReader(s.img.File, 0, info.Size())
	pad := io.LimitReader(zeros{}, s.img.Size()-info.Size())
	return io.NopCloser(io.MultiReader(data, pad)), nil
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
