package descriptor

import (
	"bytes"
	"encoding/binary"

	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/helpers"
	"github.com/rstms/hybridiso/pkg/isoerr"
)

const (
	BOOT_SYSTEM_IDENTIFIER_OFFSET = 7
	BOOT_IDENTIFIER_OFFSET        = 39
	BOOT_CATALOG_POINTER_OFFSET   = 71
)

// BootRecordDescriptor is the El Torito Boot Record Volume Descriptor. Its boot system use area holds only the
// little-endian LBA of the boot catalog.
type BootRecordDescriptor struct {
	VolumeDescriptorHeader
	// Boot System Identifier, "EL TORITO SPECIFICATION" zero padded to 32 bytes.
	BootSystemIdentifier string
	// Boot Identifier, unused by El Torito and left zero.
	BootIdentifier string
	// Boot Catalog LBA, the first sector of the boot catalog.
	//  | Encoding: LittleEndian
	BootCatalogLBA uint32
}

// NewBootRecordDescriptor returns an El Torito boot record pointing at the catalog at lba.
func NewBootRecordDescriptor(catalogLBA uint32) *BootRecordDescriptor {
	return &BootRecordDescriptor{
		VolumeDescriptorHeader: newHeader(TYPE_BOOT_RECORD),
		BootSystemIdentifier:   consts.EL_TORITO_BOOT_SYSTEM_ID,
		BootCatalogLBA:         catalogLBA,
	}
}

// Marshal converts the boot record into its 2048-byte on-disk representation.
func (d *BootRecordDescriptor) Marshal() ([consts.ISO9660_SECTOR_SIZE]byte, error) {
	var buf [consts.ISO9660_SECTOR_SIZE]byte

	// 1. Header
	header := d.VolumeDescriptorHeader.Marshal()
	offset := copy(buf[:], header[:])

	// 2. Boot system identifier and boot identifier, 32 bytes each
	offset += copy(buf[offset:offset+32], helpers.ZeroPadString(d.BootSystemIdentifier, 32))
	offset += copy(buf[offset:offset+32], helpers.ZeroPadString(d.BootIdentifier, 32))

	// 3. Boot system use: catalog pointer, the rest is zero
	binary.LittleEndian.PutUint32(buf[offset:offset+4], d.BootCatalogLBA)
	offset = consts.ISO9660_SECTOR_SIZE

	return buf, checkSize("boot record", offset)
}

// Unmarshal parses a 2048-byte boot record sector.
func (d *BootRecordDescriptor) Unmarshal(data []byte) error {
	if len(data) < consts.ISO9660_SECTOR_SIZE {
		return isoerr.InvalidData("boot record needs %d bytes, got %d", consts.ISO9660_SECTOR_SIZE, len(data))
	}
	if err := d.VolumeDescriptorHeader.Unmarshal(data, TYPE_BOOT_RECORD); err != nil {
		return err
	}
	d.BootSystemIdentifier = string(bytes.TrimRight(data[BOOT_SYSTEM_IDENTIFIER_OFFSET:BOOT_IDENTIFIER_OFFSET], "\x00"))
	d.BootIdentifier = string(bytes.TrimRight(data[BOOT_IDENTIFIER_OFFSET:BOOT_CATALOG_POINTER_OFFSET], "\x00"))
	d.BootCatalogLBA = binary.LittleEndian.Uint32(data[BOOT_CATALOG_POINTER_OFFSET:])
	return nil
}

// IsElTorito reports whether the boot record announces an El Torito catalog.
func (d *BootRecordDescriptor) IsElTorito() bool {
	return d.BootSystemIdentifier == consts.EL_TORITO_BOOT_SYSTEM_ID
}
