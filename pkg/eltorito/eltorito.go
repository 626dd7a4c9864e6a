// Package eltorito encodes the El Torito boot catalog: a validation entry followed by the default boot entry and
// optional sections of further entries, all within one 2048-byte sector.
package eltorito

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/helpers"
	"github.com/rstms/hybridiso/pkg/isoerr"
)

// Platform represents the target booting system of a catalog section.
type Platform uint8

const (
	BIOS Platform = 0x0  // Classic PC-BIOS x86
	PPC  Platform = 0x1  // PowerPC
	Mac  Platform = 0x2  // Macintosh systems
	EFI  Platform = 0xef // Extensible Firmware Interface (EFI)
)

func (p Platform) String() string {
	switch p {
	case BIOS:
		return "BIOS"
	case PPC:
		return "PowerPC"
	case Mac:
		return "Macintosh"
	case EFI:
		return "EFI"
	default:
		return "Unknown"
	}
}

// Emulation represents the boot media type of an entry.
type Emulation uint8

const (
	NoEmulation        Emulation = 0x0 // No emulation
	Floppy12Emulation  Emulation = 0x1 // Emulate a 1.2 MB floppy
	Floppy144Emulation Emulation = 0x2 // Emulate a 1.44 MB floppy
	Floppy288Emulation Emulation = 0x3 // Emulate a 2.88 MB floppy
	HardDiskEmulation  Emulation = 0x4 // Emulate a hard disk
)

func (e Emulation) String() string {
	switch e {
	case NoEmulation:
		return "NoEmul"
	case Floppy12Emulation:
		return "1.2MFloppy"
	case Floppy144Emulation:
		return "1.44MFloppy"
	case Floppy288Emulation:
		return "2.88MFloppy"
	case HardDiskEmulation:
		return "HardDisk"
	default:
		return "Unknown"
	}
}

const (
	headerValidation  = 0x01
	headerSection     = 0x90
	headerLastSection = 0x91
	indicatorBootable = 0x88
	indicatorNoBoot   = 0x00

	validationIDOffset       = 4
	validationIDLength       = 24
	validationChecksumOffset = 28
	validationKeyOffset      = 30
	entrySectorCountOffset   = 6
	entryLBAOffset           = 8
	maxEntries               = consts.ISO9660_SECTOR_SIZE/consts.EL_TORITO_ENTRY_SIZE - 1
)

// Entry is one bootable image of the catalog.
type Entry struct {
	// Platform the image boots on. The first entry's platform is recorded in the validation entry, the others in
	// their section header.
	Platform  Platform
	Bootable  bool
	Emulation Emulation
	// LoadSegment is the real mode segment the BIOS loads the image to, 0 selects the default 0x7C0.
	LoadSegment uint16
	// SystemType is the partition type byte of an emulated hard disk, zero otherwise.
	SystemType uint8
	// SectorCount is the number of 512-byte virtual sectors loaded from the image.
	SectorCount uint16
	// LBA is the first 2048-byte sector of the image.
	LBA uint32
}

// NewEntry returns a bootable no-emulation entry for an image of sizeBytes starting at lba. Images needing more than
// 65535 virtual sectors are ErrInvalidInput.
func NewEntry(platform Platform, lba uint32, sizeBytes uint64) (*Entry, error) {
	sectors := helpers.CeilDiv(sizeBytes, consts.EL_TORITO_SECTOR_SIZE)
	if sectors > consts.EL_TORITO_MAX_SECTOR_COUNT {
		return nil, isoerr.InvalidInput("%s boot image of %d bytes needs %d sectors of %d bytes, limit is %d",
			platform, sizeBytes, sectors, consts.EL_TORITO_SECTOR_SIZE, consts.EL_TORITO_MAX_SECTOR_COUNT)
	}
	return &Entry{
		Platform:    platform,
		Bootable:    true,
		Emulation:   NoEmulation,
		SectorCount: uint16(sectors),
		LBA:         lba,
	}, nil
}

func (e *Entry) marshal(dst []byte) {
	dst[0] = indicatorNoBoot
	if e.Bootable {
		dst[0] = indicatorBootable
	}
	dst[1] = byte(e.Emulation)
	binary.LittleEndian.PutUint16(dst[2:4], e.LoadSegment)
	dst[4] = e.SystemType
	binary.LittleEndian.PutUint16(dst[entrySectorCountOffset:], e.SectorCount)
	binary.LittleEndian.PutUint32(dst[entryLBAOffset:], e.LBA)
}

func parseEntry(platform Platform, data []byte) (*Entry, error) {
	if data[0] != indicatorBootable && data[0] != indicatorNoBoot {
		return nil, isoerr.InvalidData("boot entry has indicator 0x%02X", data[0])
	}
	return &Entry{
		Platform:    platform,
		Bootable:    data[0] == indicatorBootable,
		Emulation:   Emulation(data[1]),
		LoadSegment: binary.LittleEndian.Uint16(data[2:4]),
		SystemType:  data[4],
		SectorCount: binary.LittleEndian.Uint16(data[entrySectorCountOffset:]),
		LBA:         binary.LittleEndian.Uint32(data[entryLBAOffset:]),
	}, nil
}

// Catalog is the boot catalog. A catalog without entries is valid and describes a non-bootable image.
type Catalog struct {
	// ID is the manufacturer identifier of the validation entry, at most 24 bytes.
	ID      string
	Entries []*Entry
}

// NewCatalog returns an empty catalog with the given manufacturer identifier.
func NewCatalog(id string) *Catalog {
	return &Catalog{ID: id}
}

// Add appends an entry. The first entry becomes the default entry.
func (c *Catalog) Add(e *Entry) {
	c.Entries = append(c.Entries, e)
}

// Platform returns the platform of the validation entry.
func (c *Catalog) Platform() Platform {
	if len(c.Entries) == 0 {
		return BIOS
	}
	return c.Entries[0].Platform
}

// Marshal encodes the catalog into one 2048-byte sector.
func (c *Catalog) Marshal() ([]byte, error) {
	if len(c.Entries) > maxEntries {
		return nil, isoerr.InvalidInput("boot catalog holds at most %d entries, got %d", maxEntries, len(c.Entries))
	}
	if len(c.ID) > validationIDLength {
		return nil, isoerr.InvalidInput("boot catalog id %q is longer than %d bytes", c.ID, validationIDLength)
	}
	data := make([]byte, consts.ISO9660_SECTOR_SIZE)

	// 1. Validation entry
	data[0] = headerValidation
	data[1] = byte(c.Platform())
	copy(data[validationIDOffset:validationIDOffset+validationIDLength], c.ID)
	data[validationKeyOffset] = 0x55
	data[validationKeyOffset+1] = 0xAA
	binary.LittleEndian.PutUint16(data[validationChecksumOffset:], -wordSum(data[:consts.EL_TORITO_ENTRY_SIZE]))

	if len(c.Entries) == 0 {
		return data, nil
	}

	// 2. Default entry
	offset := consts.EL_TORITO_ENTRY_SIZE
	c.Entries[0].marshal(data[offset : offset+consts.EL_TORITO_ENTRY_SIZE])
	offset += consts.EL_TORITO_ENTRY_SIZE

	// 3. Sections, one per run of entries sharing a platform, the last one flagged as final
	sections := c.sections()
	needed := offset + consts.EL_TORITO_ENTRY_SIZE*(len(sections)+len(c.Entries)-1)
	if needed > len(data) {
		return nil, isoerr.InvalidInput("boot catalog with %d entries and %d sections exceeds one sector",
			len(c.Entries), len(sections))
	}
	for i, section := range sections {
		header := data[offset : offset+consts.EL_TORITO_ENTRY_SIZE]
		header[0] = headerSection
		if i == len(sections)-1 {
			header[0] = headerLastSection
		}
		header[1] = byte(section[0].Platform)
		binary.LittleEndian.PutUint16(header[2:4], uint16(len(section)))
		offset += consts.EL_TORITO_ENTRY_SIZE

		for _, e := range section {
			e.marshal(data[offset : offset+consts.EL_TORITO_ENTRY_SIZE])
			offset += consts.EL_TORITO_ENTRY_SIZE
		}
	}
	return data, nil
}

// sections groups every entry after the default one into runs of the same platform.
func (c *Catalog) sections() [][]*Entry {
	var out [][]*Entry
	for _, e := range c.Entries[1:] {
		if n := len(out); n > 0 && out[n-1][0].Platform == e.Platform {
			out[n-1] = append(out[n-1], e)
			continue
		}
		out = append(out, []*Entry{e})
	}
	return out
}

// Unmarshal decodes a catalog sector, validating the header id, key bytes and checksum of the validation entry.
func (c *Catalog) Unmarshal(data []byte) error {
	if len(data) < consts.EL_TORITO_ENTRY_SIZE*2 {
		return isoerr.InvalidData("boot catalog of %d bytes is too short", len(data))
	}
	if err := validate(data[:consts.EL_TORITO_ENTRY_SIZE]); err != nil {
		return err
	}
	c.ID = strings.TrimRight(string(data[validationIDOffset:validationIDOffset+validationIDLength]), "\x00 ")
	c.Entries = nil
	platform := Platform(data[1])

	offset := consts.EL_TORITO_ENTRY_SIZE
	if isEmpty(data[offset : offset+consts.EL_TORITO_ENTRY_SIZE]) {
		return nil
	}
	def, err := parseEntry(platform, data[offset:offset+consts.EL_TORITO_ENTRY_SIZE])
	if err != nil {
		return fmt.Errorf("failed to parse default entry: %w", err)
	}
	c.Entries = append(c.Entries, def)
	offset += consts.EL_TORITO_ENTRY_SIZE

	for offset+consts.EL_TORITO_ENTRY_SIZE <= len(data) {
		header := data[offset : offset+consts.EL_TORITO_ENTRY_SIZE]
		if header[0] != headerSection && header[0] != headerLastSection {
			break
		}
		sectionPlatform := Platform(header[1])
		count := int(binary.LittleEndian.Uint16(header[2:4]))
		offset += consts.EL_TORITO_ENTRY_SIZE
		for i := 0; i < count; i++ {
			if offset+consts.EL_TORITO_ENTRY_SIZE > len(data) {
				return isoerr.InvalidData("boot catalog section of %d entries overruns the sector", count)
			}
			e, err := parseEntry(sectionPlatform, data[offset:offset+consts.EL_TORITO_ENTRY_SIZE])
			if err != nil {
				return fmt.Errorf("failed to parse section entry %d: %w", i, err)
			}
			c.Entries = append(c.Entries, e)
			offset += consts.EL_TORITO_ENTRY_SIZE
		}
		if header[0] == headerLastSection {
			break
		}
	}
	return nil
}

func validate(entry []byte) error {
	if entry[0] != headerValidation {
		return isoerr.InvalidData("validation entry has header id 0x%02X", entry[0])
	}
	if entry[validationKeyOffset] != 0x55 || entry[validationKeyOffset+1] != 0xAA {
		return isoerr.InvalidData("validation entry has key bytes %02X%02X", entry[validationKeyOffset],
			entry[validationKeyOffset+1])
	}
	if sum := wordSum(entry); sum != 0 {
		return isoerr.InvalidData("validation entry checksum leaves word sum 0x%04X", sum)
	}
	return nil
}

func isEmpty(entry []byte) bool {
	for _, b := range entry {
		if b != 0 {
			return false
		}
	}
	return true
}

// wordSum adds the little-endian 16-bit words of b modulo 65536.
func wordSum(b []byte) uint16 {
	var sum uint16
	for i := 0; i+1 < len(b); i += 2 {
		sum += binary.LittleEndian.Uint16(b[i:])
	}
	return sum
}
