package builder

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	isotest "github.com/rstms/hybridiso/internal/testing"
	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/eltorito"
	"github.com/rstms/hybridiso/pkg/esp"
	"github.com/rstms/hybridiso/pkg/fstree"
	"github.com/rstms/hybridiso/pkg/hybrid"
	"github.com/rstms/hybridiso/pkg/isoerr"
	"github.com/rstms/hybridiso/pkg/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zeroSource is a source of the given size whose data is never read.
type zeroSource int64

func (z zeroSource) Size() int64 { return int64(z) }
func (z zeroSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(make([]byte, int64(z)))), nil
}

func outputFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "image.iso"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func fakeESP(t *testing.T, sectors512 int) *esp.Image {
	t.Helper()
	data := bytes.Repeat([]byte{0xEB, 0x3C, 0x90, 0x46}, sectors512*consts.DISK_SECTOR_SIZE/4)
	img, err := esp.FromBytes(data)
	require.NoError(t, err)
	t.Cleanup(func() { img.Close() })
	return img
}

func TestScenarioUefiOnly(t *testing.T) {
	loader := bytes.Repeat([]byte{0xAA}, 1000)
	tree := fstree.New()
	require.NoError(t, tree.AddFile("EFI/BOOT/BOOTX64.EFI", fstree.BytesSource(loader)))

	b := New(tree)
	require.NoError(t, b.SetBootInfo(BootInfo{Uefi: &UefiBoot{Destination: "EFI/BOOT/BOOTX64.EFI"}}))
	require.NoError(t, b.SetHybrid(false))

	out := outputFile(t)
	require.NoError(t, b.Build(out, nil))
	assert.Equal(t, StateDone, b.State())

	img, err := isotest.Open(out)
	require.NoError(t, err)
	assert.Equal(t, consts.DEFAULT_VOLUME_IDENTIFIER, img.PVD.VolumeIdentifier)
	assert.True(t, img.BootRecord.IsElTorito())
	assert.Equal(t, uint32(consts.BOOT_CATALOG_LBA), img.BootRecord.BootCatalogLBA)

	file, err := tree.ResolveFile("EFI/BOOT/BOOTX64.EFI")
	require.NoError(t, err)
	require.Len(t, img.Catalog.Entries, 1)
	assert.Equal(t, eltorito.EFI, img.Catalog.Entries[0].Platform)
	assert.Equal(t, file.LBA, img.Catalog.Entries[0].LBA)
	assert.Equal(t, uint16(2), img.Catalog.Entries[0].SectorCount)

	got, err := img.ReadFile("EFI/BOOT/BOOTX64.EFI")
	require.NoError(t, err)
	assert.Equal(t, loader, got)

	info, err := out.Stat()
	require.NoError(t, err)
	assert.Zero(t, info.Size()%consts.ISO9660_SECTOR_SIZE)
	assert.Equal(t, uint32(info.Size()/consts.ISO9660_SECTOR_SIZE), img.PVD.VolumeSpaceSize)
	assert.Equal(t, b.TotalSectors(), img.PVD.VolumeSpaceSize)
	assert.Nil(t, b.PartitionTable())
}

func TestScenarioHybridBiosAndUefi(t *testing.T) {
	tree := fstree.New()
	require.NoError(t, tree.AddFile("isolinux/isolinux.bin", fstree.BytesSource(bytes.Repeat([]byte{0xFA}, 2048))))
	espImg := fakeESP(t, 2880)

	b := New(tree, options.WithGUIDSource(hybrid.SeededGUIDs("scenario-b")))
	require.NoError(t, b.SetBootInfo(BootInfo{
		Bios: &BiosBoot{CatalogPath: "isolinux/boot.cat", Destination: "isolinux/isolinux.bin"},
		Uefi: &UefiBoot{},
	}))
	require.NoError(t, b.SetHybrid(true))

	out := outputFile(t)
	require.NoError(t, b.Build(out, espImg))

	img, err := isotest.Open(out)
	require.NoError(t, err)

	// boot catalog: BIOS first, UEFI on the ESP second
	require.Len(t, img.Catalog.Entries, 2)
	assert.Equal(t, eltorito.BIOS, img.Catalog.Entries[0].Platform)
	assert.Equal(t, eltorito.EFI, img.Catalog.Entries[1].Platform)
	assert.Equal(t, uint32(consts.ESP_START_LBA), img.Catalog.Entries[1].LBA)
	assert.Equal(t, uint16(2880), img.Catalog.Entries[1].SectorCount)

	// the catalog is visible in the tree at its fixed sector
	entries, err := img.Entries()
	require.NoError(t, err)
	var catalog *isotest.Entry
	for _, e := range entries {
		if e.FullPath == "ISOLINUX/BOOT.CAT" {
			catalog = e
		}
	}
	require.NotNil(t, catalog)
	assert.Equal(t, uint32(consts.BOOT_CATALOG_LBA), catalog.Record.LocationOfExtent)
	assert.Equal(t, uint32(consts.ISO9660_SECTOR_SIZE), catalog.Record.DataLength)

	// MBR
	mbr, err := img.MBR()
	require.NoError(t, err)
	assert.Equal(t, hybrid.EFISystem, mbr.Partitions[0].Type)
	assert.True(t, mbr.Partitions[0].Bootable())
	assert.Equal(t, uint32(1), mbr.Partitions[0].StartLBA)

	// GPT
	total512 := uint64(b.TotalSectors()) * consts.DISK_SECTORS_PER_ISO_SECTOR
	primary, parts, err := img.GPT(1)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, hybrid.ESPTypeGUID, parts[0].Type)
	assert.Equal(t, uint64(consts.GPT_FIRST_USABLE_LBA), parts[0].StartLBA)
	espEnd := uint64(consts.ESP_START_LBA) + (2880+3)/4 - 1
	assert.Equal(t, uint32(espEnd), b.ESPExtent().End)
	assert.Equal(t, (espEnd+1)*4-1, parts[0].EndLBA)
	assert.Equal(t, total512-1, primary.BackupLBA)

	backup, backupParts, err := img.GPT(primary.BackupLBA)
	require.NoError(t, err)
	assert.Equal(t, primary.ArrayCRC, backup.ArrayCRC)
	assert.Equal(t, primary.DiskGUID, backup.DiskGUID)
	assert.Equal(t, parts, backupParts)
	assert.Equal(t, total512-1-32, backup.ArrayLBA)

	// ESP bytes land at its extent
	espData, err := img.ReadAt(int64(consts.ESP_START_LBA)*consts.ISO9660_SECTOR_SIZE, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEB, 0x3C, 0x90, 0x46, 0xEB, 0x3C, 0x90, 0x46}, espData)

	// volume size includes the backup GPT
	info, err := out.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(b.TotalSectors())*consts.ISO9660_SECTOR_SIZE, info.Size())
	assert.Equal(t, b.TotalSectors(), img.PVD.VolumeSpaceSize)
}

func TestScenarioOversizedBootImage(t *testing.T) {
	tree := fstree.New()
	require.NoError(t, tree.AddFile("boot/big.img", zeroSource(65535*512+1)))

	b := New(tree)
	require.NoError(t, b.SetBootInfo(BootInfo{Bios: &BiosBoot{Destination: "boot/big.img"}}))
	err := b.Build(outputFile(t), nil)
	require.ErrorIs(t, err, isoerr.ErrInvalidInput)
	assert.Equal(t, StateFailed, b.State())
}

func TestScenarioNestedDirectories(t *testing.T) {
	tree := fstree.New()
	require.NoError(t, tree.AddFile("A/B/C.txt", fstree.BytesSource("hello")))
	require.NoError(t, tree.AddFile("readme.txt", fstree.BytesSource("hello world\n")))

	b := New(tree)
	out := outputFile(t)
	require.NoError(t, b.Build(out, nil))

	a, err := tree.Resolve("A")
	require.NoError(t, err)
	bDir, err := tree.Resolve("A/B")
	require.NoError(t, err)
	c, err := tree.Resolve("A/B/C.txt")
	require.NoError(t, err)

	root := tree.Root().LBA
	assert.Equal(t, uint32(consts.FIRST_CONTENT_LBA), root)
	assert.Equal(t, root+1, a.Location())
	assert.Equal(t, a.Location()+1, bDir.Location())
	assert.Equal(t, bDir.Location()+1, c.Location())

	img, err := isotest.Open(out)
	require.NoError(t, err)
	entries, err := img.Entries()
	require.NoError(t, err)
	folders, files := isotest.GetFileAndFolderCounts(entries)
	assert.Equal(t, 2, folders)
	assert.Equal(t, 2, files)
	require.NoError(t, isotest.Validate(entries, filepath.Join("testdata", "nested.json")))

	assert.Empty(t, img.Catalog.Entries)
}

func TestDeterministicBuild(t *testing.T) {
	build := func() []byte {
		tree := fstree.New()
		require.NoError(t, tree.AddFile("isolinux/isolinux.bin", fstree.BytesSource(bytes.Repeat([]byte{1}, 3000))))
		require.NoError(t, tree.AddFile("docs/a.txt", fstree.BytesSource("a")))
		b := New(tree, options.WithGUIDSource(hybrid.SeededGUIDs("same")))
		require.NoError(t, b.SetBootInfo(BootInfo{
			Bios: &BiosBoot{CatalogPath: "isolinux/boot.cat", Destination: "isolinux/isolinux.bin"},
			Uefi: &UefiBoot{},
		}))
		require.NoError(t, b.SetHybrid(true))
		out := outputFile(t)
		require.NoError(t, b.Build(out, fakeESP(t, 64)))
		data, err := os.ReadFile(out.Name())
		require.NoError(t, err)
		return data
	}
	first, second := build(), build()
	assert.True(t, bytes.Equal(first, second), "two builds of the same input differ")
}

func TestBuilderIsSingleUse(t *testing.T) {
	b := New(fstree.New())
	require.NoError(t, b.Build(outputFile(t), nil))

	require.ErrorIs(t, b.Build(outputFile(t), nil), isoerr.ErrInvalidData)
	require.ErrorIs(t, b.SetBootInfo(BootInfo{}), isoerr.ErrInvalidData)
	require.ErrorIs(t, b.SetHybrid(true), isoerr.ErrInvalidData)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, tree *fstree.Tree, b *Builder) *esp.Image
		opts   []options.Option
		target error
	}{
		{
			name: "ESPWithoutHybrid",
			setup: func(t *testing.T, tree *fstree.Tree, b *Builder) *esp.Image {
				return fakeESP(t, 4)
			},
			target: isoerr.ErrInvalidInput,
		},
		{
			name: "MissingBiosImage",
			setup: func(t *testing.T, tree *fstree.Tree, b *Builder) *esp.Image {
				require.NoError(t, b.SetBootInfo(BootInfo{Bios: &BiosBoot{Destination: "nope.bin"}}))
				return nil
			},
			target: isoerr.ErrNotFound,
		},
		{
			name: "UefiWithoutImage",
			setup: func(t *testing.T, tree *fstree.Tree, b *Builder) *esp.Image {
				require.NoError(t, b.SetBootInfo(BootInfo{Uefi: &UefiBoot{}}))
				return nil
			},
			target: isoerr.ErrInvalidInput,
		},
		{
			name: "CatalogPathTaken",
			setup: func(t *testing.T, tree *fstree.Tree, b *Builder) *esp.Image {
				require.NoError(t, tree.AddFile("boot.bin", fstree.BytesSource("x")))
				require.NoError(t, b.SetBootInfo(BootInfo{Bios: &BiosBoot{CatalogPath: "boot.bin", Destination: "boot.bin"}}))
				return nil
			},
			target: isoerr.ErrAlreadyExists,
		},
		{
			name:   "LongVolumeIdentifier",
			setup:  func(t *testing.T, tree *fstree.Tree, b *Builder) *esp.Image { return nil },
			opts:   []options.Option{options.WithVolumeIdentifier(strings.Repeat("V", 33))},
			target: isoerr.ErrInvalidInput,
		},
		{
			name: "DirectoryOverflow",
			setup: func(t *testing.T, tree *fstree.Tree, b *Builder) *esp.Image {
				for i := 0; i < 40; i++ {
					name := fmt.Sprintf("a_rather_long_file_name_%06d.txt", i)
					require.NoError(t, tree.AddFile(name, fstree.BytesSource("x")))
				}
				return nil
			},
			target: isoerr.ErrInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := fstree.New()
			b := New(tree, tt.opts...)
			espImg := tt.setup(t, tree, b)
			err := b.Build(outputFile(t), espImg)
			require.ErrorIs(t, err, tt.target)
			assert.Equal(t, StateFailed, b.State())
		})
	}
}

func TestProgressAndRegions(t *testing.T) {
	tree := fstree.New()
	require.NoError(t, tree.AddFile("one.bin", fstree.BytesSource(bytes.Repeat([]byte{1}, 70000))))
	require.NoError(t, tree.AddFile("two.bin", fstree.BytesSource("2")))
	require.NoError(t, tree.AddFile("empty.bin", fstree.BytesSource(nil)))

	type call struct {
		name        string
		transferred int64
		total       int64
		number      int
		count       int
	}
	var calls []call
	progress := func(name string, transferred, total int64, number, count int) {
		calls = append(calls, call{name, transferred, total, number, count})
	}

	b := New(tree, options.WithProgress(progress))
	require.NoError(t, b.SetHybrid(true))
	require.NoError(t, b.Build(outputFile(t), nil))

	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, "/two.bin", last.name)
	assert.Equal(t, int64(1), last.transferred)
	assert.Equal(t, 3, last.count)
	for _, c := range calls {
		if c.name == "/one.bin" && c.transferred == c.total {
			assert.Equal(t, int64(70000), c.total)
		}
	}

	regions := b.Regions().Regions()
	assert.Equal(t, "System Area", regions[0].Name)
	assert.Equal(t, "Backup GPT", regions[len(regions)-1].Name)
	assert.Equal(t, uint64(b.TotalSectors()), b.Regions().End())

	var report bytes.Buffer
	b.Regions().Report(&report, false)
	assert.Contains(t, report.String(), "/one.bin")
	assert.Contains(t, report.String(), "Backup GPT")

	table := b.PartitionTable()
	require.NotNil(t, table)
	assert.Empty(t, table.Entries)
	assert.Equal(t, hybrid.GPTProtective, table.MBR.Partitions[0].Type)
}
