package layout

import (
	"fmt"
	"io"
	"slices"

	"github.com/fatih/color"
	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/isoerr"
)

// Category groups regions for reporting.
type Category string

const (
	CategorySystemArea Category = "System Area"
	CategoryDescriptor Category = "Volume Descriptor"
	CategoryBoot       Category = "Boot Catalog"
	CategoryESP        Category = "EFI Partition"
	CategoryDirectory  Category = "Directory Extent"
	CategoryFile       Category = "File Extent"
	CategoryGPT        Category = "GPT"
)

// Region is a named, half-open range [Start, End) of 2048-byte sectors.
type Region struct {
	Name     string
	Category Category
	Start    uint64
	End      uint64
}

// Sectors returns the number of sectors the region spans.
func (r Region) Sectors() uint64 {
	return r.End - r.Start
}

func (r Region) overlaps(o Region) bool {
	return r.Start < o.End && o.Start < r.End
}

// RegionMap records every live region of an image and refuses overlapping ones.
type RegionMap struct {
	regions []Region
}

// NewRegionMap returns an empty map.
func NewRegionMap() *RegionMap {
	return &RegionMap{regions: make([]Region, 0)}
}

// Add records count sectors starting at start. Empty regions are accepted and never overlap anything. A region that
// intersects one already recorded is ErrInvalidData.
func (m *RegionMap) Add(name string, category Category, start uint64, count uint64) error {
	r := Region{Name: name, Category: category, Start: start, End: start + count}
	if count > 0 {
		for _, existing := range m.regions {
			if existing.Sectors() > 0 && r.overlaps(existing) {
				return isoerr.InvalidData("region %s [%d,%d) overlaps %s [%d,%d)",
					r.Name, r.Start, r.End, existing.Name, existing.Start, existing.End)
			}
		}
	}
	m.regions = append(m.regions, r)
	slices.SortStableFunc(m.regions, func(a, b Region) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})
	return nil
}

// Regions returns the recorded regions ordered by start sector.
func (m *RegionMap) Regions() []Region {
	return slices.Clone(m.regions)
}

// End returns the first sector after the highest region.
func (m *RegionMap) End() uint64 {
	var end uint64
	for _, r := range m.regions {
		if r.End > end {
			end = r.End
		}
	}
	return end
}

// Report writes the regions as a table in on-disk order.
func (m *RegionMap) Report(w io.Writer, useColor bool) {
	colorMap := map[Category]func(a ...interface{}) string{
		CategorySystemArea: color.New(color.FgBlue, color.Bold).SprintFunc(),
		CategoryDescriptor: color.New(color.FgYellow, color.Bold).SprintFunc(),
		CategoryBoot:       color.New(color.FgRed, color.Bold).SprintFunc(),
		CategoryESP:        color.New(color.FgMagenta, color.Bold).SprintFunc(),
		CategoryDirectory:  color.New(color.FgCyan, color.Bold).SprintFunc(),
		CategoryFile:       color.New(color.FgGreen, color.Bold).SprintFunc(),
		CategoryGPT:        color.New(color.FgHiBlue, color.Bold).SprintFunc(),
	}
	header := color.New(color.FgCyan, color.Bold).SprintFunc()
	plain := func(a ...interface{}) string { return fmt.Sprint(a...) }
	if !useColor {
		for key := range colorMap {
			colorMap[key] = plain
		}
		header = plain
	}

	fmt.Fprintln(w, header("=== Image Layout ==="))
	for _, r := range m.regions {
		paint, ok := colorMap[r.Category]
		if !ok {
			paint = plain
		}
		fmt.Fprintf(w, "[LBA %8d-%8d] [%s] [%s] %s\n",
			r.Start, lastSector(r),
			paint(fmt.Sprintf("%-18s", r.Category)),
			fmt.Sprintf("%11s", formatSize(r.Sectors()*consts.ISO9660_SECTOR_SIZE)),
			r.Name,
		)
	}
	fmt.Fprintln(w, header(fmt.Sprintf("=== %d sectors ===", m.End())))
}

func lastSector(r Region) uint64 {
	if r.End == r.Start {
		return r.Start
	}
	return r.End - 1
}

// formatSize converts a size in bytes to a human-readable format.
func formatSize(size uint64) string {
	const (
		MB = 1024 * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%8.2f GB", float64(size)/float64(GB))
	case size >= MB:
		return fmt.Sprintf("%8.2f MB", float64(size)/float64(MB))
	default:
		return fmt.Sprintf("%8d B ", size)
	}
}
