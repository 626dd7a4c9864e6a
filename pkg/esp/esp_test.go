package esp

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/diskfs/go-diskfs/filesystem/fat32"
	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/fstree"
	"github.com/rstms/hybridiso/pkg/isoerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate(t *testing.T) {
	loader := bytes.Repeat([]byte{0x4D, 0x5A}, 3000)
	files := map[string]fstree.Source{
		"EFI/BOOT/BOOTX64.EFI": fstree.BytesSource(loader),
		"vmlinuz":              fstree.BytesSource([]byte("kernel")),
	}
	img, err := Create(files, "ESP", nil)
	require.NoError(t, err)
	defer img.Close()

	assert.Zero(t, img.Sectors512%4)
	assert.GreaterOrEqual(t, img.Sectors512, uint32(MIN_IMAGE_SECTORS))
	info, err := os.Stat(img.Path)
	require.NoError(t, err)
	assert.Equal(t, img.Size(), info.Size())

	fs, err := fat32.Read(img.File, img.Size(), 0, 512)
	require.NoError(t, err)
	f, err := fs.OpenFile("/EFI/BOOT/BOOTX64.EFI", os.O_RDONLY)
	require.NoError(t, err)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, loader, got)

	r, err := img.Source().Open()
	require.NoError(t, err)
	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, all, int(img.Size()))

	path := img.Path
	require.NoError(t, img.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, img.Close())
}

func TestCreateErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]fstree.Source
		label string
		err   error
	}{
		{"LongLabel", map[string]fstree.Source{"a": fstree.BytesSource("x")}, "TWELVECHARSX", isoerr.ErrInvalidInput},
		{"DotDot", map[string]fstree.Source{"../a": fstree.BytesSource("x")}, "EFI", isoerr.ErrInvalidInput},
		{"Empty", map[string]fstree.Source{"/": fstree.BytesSource("x")}, "EFI", isoerr.ErrInvalidInput},
		{"Duplicate", map[string]fstree.Source{"a": fstree.BytesSource("x"), "A": fstree.BytesSource("y")}, "EFI",
			isoerr.ErrAlreadyExists},
		{"LabelNamesTopDirectory", map[string]fstree.Source{"EFI/BOOT/BOOTX64.EFI": fstree.BytesSource("x")}, "efi",
			isoerr.ErrInvalidInput},
		{"LabelNamesTopFile", map[string]fstree.Source{"KERNEL": fstree.BytesSource("x")}, "Kernel",
			isoerr.ErrInvalidInput},
		{"TooLarge", map[string]fstree.Source{"big": fstree.BytesSource(make([]byte, 40<<20))}, "EFI",
			isoerr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Create(tt.files, tt.label, nil)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDefaultLabelAcceptsLoaderTree(t *testing.T) {
	files := map[string]fstree.Source{"EFI/BOOT/BOOTX64.EFI": fstree.BytesSource("loader")}
	img, err := Create(files, consts.DEFAULT_ESP_LABEL, nil)
	require.NoError(t, err)
	defer img.Close()

	fs, err := fat32.Read(img.File, img.Size(), 0, 512)
	require.NoError(t, err)
	f, err := fs.OpenFile("/EFI/BOOT/BOOTX64.EFI", os.O_RDONLY)
	require.NoError(t, err)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "loader", string(got))
}

func TestSetVolumeID(t *testing.T) {
	bootSectors := func() []byte {
		img, err := Create(map[string]fstree.Source{"a.txt": fstree.BytesSource("a")}, "ESP", nil)
		require.NoError(t, err)
		defer img.Close()
		require.NoError(t, img.SetVolumeID(0x12345678))

		_, err = fat32.Read(img.File, img.Size(), 0, 512)
		require.NoError(t, err)

		b := make([]byte, (FAT32_BACKUP_BOOT_SECTOR+1)*512)
		_, err = img.File.ReadAt(b, 0)
		require.NoError(t, err)
		return b
	}

	first := bootSectors()
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, first[FAT32_VOLUME_ID_OFFSET:FAT32_VOLUME_ID_OFFSET+4])
	backup := FAT32_BACKUP_BOOT_SECTOR*512 + FAT32_VOLUME_ID_OFFSET
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, first[backup:backup+4])

	// directory timestamps still come from the clock, the boot sectors do not
	second := bootSectors()
	assert.Equal(t, first[:512], second[:512])
	assert.Equal(t, first[FAT32_BACKUP_BOOT_SECTOR*512:], second[FAT32_BACKUP_BOOT_SECTOR*512:])
}

func TestFromBytesPadsToISOSector(t *testing.T) {
	img, err := FromBytes([]byte("FAT"))
	require.NoError(t, err)
	defer img.Close()

	assert.Equal(t, uint32(4), img.Sectors512)
	r, err := img.Source().Open()
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Len(t, data, 2048)
	assert.Equal(t, []byte("FAT"), data[:3])
	assert.Equal(t, make([]byte, 2045), data[3:])

	_, err = FromBytes(nil)
	require.ErrorIs(t, err, isoerr.ErrInvalidInput)
}

func TestOpen(t *testing.T) {
	p := filepath.Join(t.TempDir(), "esp.img")
	require.NoError(t, os.WriteFile(p, make([]byte, 1000), 0o644))

	img, err := Open(p)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), img.Sectors512)
	require.NoError(t, img.Close())
	_, err = os.Stat(p)
	require.NoError(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "missing.img"))
	require.ErrorIs(t, err, isoerr.ErrNotFound)
}
