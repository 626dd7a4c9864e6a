package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rstms/hybridiso/pkg/isoerr"
	"github.com/rstms/hybridiso/pkg/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
volume: INSTALLER
hybrid: true
seed: installer-1.0
files:
  - source: build/readme.txt
    path: README.TXT
  - source: /opt/abs/license
    path: DOCS/LICENSE.TXT
directories:
  - BOOT/GRUB
bios:
  catalog: ISOLINUX/BOOT.CAT
  image: build/isolinux.bin
  destination: ISOLINUX/ISOLINUX.BIN
uefi:
  image: build/bootx64.efi
  kernel: build/vmlinuz
`

func TestLoadResolvesRelativeSources(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "image.yaml")
	require.NoError(t, os.WriteFile(p, []byte(sample), 0o644))

	m, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "INSTALLER", m.Volume)
	assert.True(t, m.Hybrid)

	spec := m.ImageSpec()
	require.Len(t, spec.Files, 2)
	assert.Equal(t, filepath.Join(dir, "build/readme.txt"), spec.Files[0].Source)
	assert.Equal(t, "README.TXT", spec.Files[0].Path)
	assert.Equal(t, "/opt/abs/license", spec.Files[1].Source)
	assert.Equal(t, []string{"BOOT/GRUB"}, spec.Directories)

	require.NotNil(t, spec.Boot.Bios)
	assert.Equal(t, "ISOLINUX/BOOT.CAT", spec.Boot.Bios.CatalogPath)
	assert.Equal(t, filepath.Join(dir, "build/isolinux.bin"), spec.Boot.Bios.ImagePath)
	assert.Equal(t, "ISOLINUX/ISOLINUX.BIN", spec.Boot.Bios.Destination)

	require.NotNil(t, spec.Boot.Uefi)
	assert.Equal(t, filepath.Join(dir, "build/bootx64.efi"), spec.Boot.Uefi.ImagePath)
	assert.Equal(t, filepath.Join(dir, "build/vmlinuz"), spec.Boot.Uefi.KernelPath)
	assert.Empty(t, spec.Boot.Uefi.Destination)
}

func TestOptions(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)

	o := options.Apply(m.Options()...)
	assert.Equal(t, "INSTALLER", o.VolumeIdentifier)

	// the same seed yields the same GUIDs
	again := options.Apply(m.Options()...)
	a, err := o.GUIDSource.NewGUID()
	require.NoError(t, err)
	b, err := again.GUIDSource.NewGUID()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseEmpty(t *testing.T) {
	m, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, m.ImageSpec().Files)
	assert.Empty(t, m.Options())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"UnknownKey", "volumes: X\n"},
		{"FileWithoutPath", "files:\n  - source: a\n"},
		{"BiosWithoutImage", "bios:\n  destination: A.BIN\n"},
		{"EmptyUefi", "uefi:\n  kernel: vmlinuz\n"},
		{"NotYAML", "files: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, isoerr.ErrInvalidInput)
		})
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorIs(t, err, isoerr.ErrNotFound)
}
