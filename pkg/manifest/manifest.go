// Package manifest reads the YAML description of an image used by the isobuild command.
//
//	volume: INSTALLER
//	hybrid: true
//	seed: installer-1.0
//	files:
//	  - source: build/readme.txt
//	    path: README.TXT
//	directories:
//	  - BOOT/GRUB
//	bios:
//	  catalog: ISOLINUX/BOOT.CAT
//	  image: build/isolinux.bin
//	  destination: ISOLINUX/ISOLINUX.BIN
//	uefi:
//	  image: build/bootx64.efi
//	  kernel: build/vmlinuz
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	iso "github.com/rstms/hybridiso"
	"github.com/rstms/hybridiso/pkg/builder"
	"github.com/rstms/hybridiso/pkg/hybrid"
	"github.com/rstms/hybridiso/pkg/isoerr"
	"github.com/rstms/hybridiso/pkg/options"
	"gopkg.in/yaml.v3"
)

// File maps a host file to a path in the image.
type File struct {
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
}

// Bios is the BIOS boot section.
type Bios struct {
	Catalog     string `yaml:"catalog"`
	Image       string `yaml:"image"`
	Destination string `yaml:"destination"`
}

// Uefi is the UEFI boot section.
type Uefi struct {
	Image       string `yaml:"image"`
	Kernel      string `yaml:"kernel"`
	Destination string `yaml:"destination"`
}

// Manifest is a parsed image description.
type Manifest struct {
	Volume string `yaml:"volume"`
	Hybrid bool   `yaml:"hybrid"`
	// Seed makes the GPT GUIDs reproducible when set.
	Seed  string `yaml:"seed"`
	Files       []File   `yaml:"files"`
	Directories []string `yaml:"directories"`
	Bios        *Bios    `yaml:"bios"`
	Uefi        *Uefi    `yaml:"uefi"`

	// directory relative sources are resolved against
	dir string
}

// Load reads the manifest at path. Relative sources are resolved against the directory of the manifest.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, isoerr.NotFound("manifest %s", path)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	m.dir = filepath.Dir(abs)
	return m, nil
}

// Parse decodes a manifest. Unknown keys and incomplete entries are ErrInvalidInput. Relative sources stay relative
// to the working directory.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil && !errors.Is(err, io.EOF) {
		return nil, isoerr.InvalidInput("malformed manifest: %v", err)
	}

	for i, f := range m.Files {
		if f.Source == "" || f.Path == "" {
			return nil, isoerr.InvalidInput("file %d needs both source and path", i+1)
		}
	}
	if m.Bios != nil && m.Bios.Image == "" {
		return nil, isoerr.InvalidInput("bios section needs an image")
	}
	if m.Uefi != nil && m.Uefi.Image == "" && m.Uefi.Destination == "" {
		return nil, isoerr.InvalidInput("uefi section needs an image or a destination")
	}
	return m, nil
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.dir == "" {
		return p
	}
	return filepath.Join(m.dir, p)
}

// ImageSpec returns the content of the image with host paths resolved.
func (m *Manifest) ImageSpec() iso.ImageSpec {
	spec := iso.ImageSpec{Directories: m.Directories}
	for _, f := range m.Files {
		spec.Files = append(spec.Files, iso.FileSpec{Source: m.resolve(f.Source), Path: f.Path})
	}
	if m.Bios != nil {
		spec.Boot.Bios = &builder.BiosBoot{
			CatalogPath: m.Bios.Catalog,
			ImagePath:   m.resolve(m.Bios.Image),
			Destination: m.Bios.Destination,
		}
	}
	if m.Uefi != nil {
		spec.Boot.Uefi = &builder.UefiBoot{
			ImagePath:   m.resolve(m.Uefi.Image),
			KernelPath:  m.resolve(m.Uefi.Kernel),
			Destination: m.Uefi.Destination,
		}
	}
	return spec
}

// Options returns the build options the manifest sets.
func (m *Manifest) Options() []options.Option {
	var opts []options.Option
	if m.Volume != "" {
		opts = append(opts, options.WithVolumeIdentifier(m.Volume))
	}
	if m.Seed != "" {
		opts = append(opts, options.WithGUIDSource(hybrid.SeededGUIDs(m.Seed)))
	}
	return opts
}
