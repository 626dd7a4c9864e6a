// Package iso builds hybrid bootable ISO9660 images from host files in one call.
package iso

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/rstms/hybridiso/pkg/builder"
	"github.com/rstms/hybridiso/pkg/esp"
	"github.com/rstms/hybridiso/pkg/fstree"
	"github.com/rstms/hybridiso/pkg/isoerr"
	"github.com/rstms/hybridiso/pkg/logging"
	"github.com/rstms/hybridiso/pkg/options"
)

const (
	// ESP_LOADER_PATH is where UEFI firmware looks for the x86-64 loader on removable media.
	ESP_LOADER_PATH = "EFI/BOOT/BOOTX64.EFI"
)

// FileSpec places the host file Source at Path in the image.
type FileSpec struct {
	Source string
	Path   string
}

// ImageSpec is the content of an image. Directories are created even when no file is placed in them.
type ImageSpec struct {
	Files       []FileSpec
	Directories []string
	Boot        builder.BootInfo
}

// Result describes a written image. File is left open at the start of the image; Close releases it together with
// the ESP image.
type Result struct {
	Path       string
	File       *os.File
	ESP        *esp.Image
	ESPSectors *uint32
	Builder    *builder.Builder
}

// Close closes the image file and removes a temporary ESP image.
func (r *Result) Close() error {
	var errs []error
	if r.File != nil {
		errs = append(errs, r.File.Close())
		r.File = nil
	}
	if r.ESP != nil {
		errs = append(errs, r.ESP.Close())
	}
	return errors.Join(errs...)
}

// BuildImage writes the image described by spec to outputPath. The boot images named in spec.Boot are added to the
// tree at their destinations. A hybrid image with UEFI boot also gets an EFI System Partition holding the loader at
// EFI/BOOT/BOOTX64.EFI and the kernel, if any. On error the output file is removed.
func BuildImage(outputPath string, spec ImageSpec, isHybrid bool, opts ...options.Option) (*Result, error) {
	o := options.Apply(opts...)
	log := logging.NewLogger(o.Logger).WithName("iso")

	// 1. Collect the tree
	tree, err := buildTree(spec)
	if err != nil {
		return nil, err
	}

	// 2. Create the ESP of a hybrid UEFI image
	var espImg *esp.Image
	if uefi := spec.Boot.Uefi; isHybrid && uefi != nil && uefi.ImagePath != "" {
		files, err := espFiles(uefi)
		if err != nil {
			return nil, err
		}
		espImg, err = esp.Create(files, o.ESPLabel, log.WithName("esp"))
		if err != nil {
			return nil, fmt.Errorf("failed to create ESP: %w", err)
		}
		// the volume ID comes from the GUID source so seeded builds stay reproducible
		guid, err := o.GUIDSource.NewGUID()
		if err != nil {
			closeESP(espImg)
			return nil, fmt.Errorf("failed to generate ESP volume ID: %w", err)
		}
		if err := espImg.SetVolumeID(binary.LittleEndian.Uint32(guid[:4])); err != nil {
			closeESP(espImg)
			return nil, err
		}
	}

	// 3. Build the image
	f, err := os.Create(outputPath)
	if err != nil {
		closeESP(espImg)
		return nil, fmt.Errorf("failed to create image file: %w", err)
	}
	discard := func(err error) (*Result, error) {
		f.Close()
		os.Remove(outputPath)
		closeESP(espImg)
		return nil, err
	}

	b := builder.New(tree, opts...)
	if err := b.SetBootInfo(spec.Boot); err != nil {
		return discard(err)
	}
	if err := b.SetHybrid(isHybrid); err != nil {
		return discard(err)
	}
	if err := b.Build(f, espImg); err != nil {
		return discard(fmt.Errorf("failed to build %s: %w", outputPath, err))
	}
	if _, err := f.Seek(0, 0); err != nil {
		return discard(fmt.Errorf("failed to rewind image file: %w", err))
	}

	result := &Result{Path: outputPath, File: f, ESP: espImg, Builder: b}
	if espImg != nil {
		sectors := espImg.Sectors512
		result.ESPSectors = &sectors
	}
	log.Info("Image written", "path", outputPath, "sectors", b.TotalSectors(), "hybrid", isHybrid)
	return result, nil
}

func buildTree(spec ImageSpec) (*fstree.Tree, error) {
	tree := fstree.New()
	add := func(source, dest string) error {
		src, err := fstree.NewPathSource(source)
		if err != nil {
			return err
		}
		if err := tree.AddFile(dest, src); err != nil {
			return fmt.Errorf("failed to add %s: %w", source, err)
		}
		return nil
	}

	for _, fs := range spec.Files {
		if err := add(fs.Source, fs.Path); err != nil {
			return nil, err
		}
	}
	for _, dir := range spec.Directories {
		if _, err := tree.MkdirAll(dir); err != nil {
			return nil, fmt.Errorf("failed to add directory %s: %w", dir, err)
		}
	}

	if bios := spec.Boot.Bios; bios != nil && bios.ImagePath != "" {
		if bios.Destination == "" {
			return nil, isoerr.InvalidInput("BIOS image %s has no destination", bios.ImagePath)
		}
		if err := add(bios.ImagePath, bios.Destination); err != nil {
			return nil, err
		}
	}

	if uefi := spec.Boot.Uefi; uefi != nil {
		if uefi.ImagePath != "" && uefi.Destination != "" {
			if err := add(uefi.ImagePath, uefi.Destination); err != nil {
				return nil, err
			}
		}
		if uefi.KernelPath != "" {
			if err := add(uefi.KernelPath, kernelDestination(uefi)); err != nil {
				return nil, err
			}
		}
	}
	return tree, nil
}

// kernelDestination puts the kernel in the directory of the UEFI image, or in the root.
func kernelDestination(uefi *builder.UefiBoot) string {
	name := filepath.Base(uefi.KernelPath)
	if uefi.Destination == "" {
		return name
	}
	return path.Join(path.Dir(uefi.Destination), name)
}

func espFiles(uefi *builder.UefiBoot) (map[string]fstree.Source, error) {
	loader, err := fstree.NewPathSource(uefi.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open UEFI image: %w", err)
	}
	files := map[string]fstree.Source{ESP_LOADER_PATH: loader}
	if uefi.KernelPath != "" {
		kernel, err := fstree.NewPathSource(uefi.KernelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open kernel: %w", err)
		}
		files[path.Join(path.Dir(ESP_LOADER_PATH), filepath.Base(uefi.KernelPath))] = kernel
	}
	return files, nil
}

func closeESP(img *esp.Image) {
	if img != nil {
		img.Close()
	}
}
