// Package descriptor encodes the ISO9660 volume descriptor set: the Primary Volume Descriptor, the El Torito Boot
// Record and the Set Terminator.
package descriptor

import (
	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/isoerr"
)

type VolumeDescriptorType uint8

const (
	TYPE_BOOT_RECORD        VolumeDescriptorType = 0
	TYPE_PRIMARY_DESCRIPTOR VolumeDescriptorType = 1
	TYPE_SET_TERMINATOR     VolumeDescriptorType = 255
)

const (
	standardIdentifierOffset = 1
	standardIdentifierLength = 5
	descriptorVersionOffset  = 6
)

func (t VolumeDescriptorType) String() string {
	switch t {
	case TYPE_BOOT_RECORD:
		return "Boot Record"
	case TYPE_PRIMARY_DESCRIPTOR:
		return "Primary Volume Descriptor"
	case TYPE_SET_TERMINATOR:
		return "Volume Descriptor Set Terminator"
	}
	return "Unknown"
}

type VolumeDescriptorHeader struct {
	// Volume Descriptor Type.
	//  | 0 = Boot Record
	//  | 1 = Primary
	//  | 255 = Terminator
	VolumeDescriptorType VolumeDescriptorType
	// Standard Identifier is always 'CD001'.
	StandardIdentifier string
	// Volume Descriptor Version, always 1.
	VolumeDescriptorVersion uint8
}

func newHeader(t VolumeDescriptorType) VolumeDescriptorHeader {
	return VolumeDescriptorHeader{
		VolumeDescriptorType:    t,
		StandardIdentifier:      consts.ISO9660_STD_IDENTIFIER,
		VolumeDescriptorVersion: consts.ISO9660_VOLUME_DESC_VERSION,
	}
}

// Marshal converts the header into its 7-byte on-disk representation.
func (vdh *VolumeDescriptorHeader) Marshal() [consts.ISO9660_VOLUME_DESC_HEADER_SIZE]byte {
	var buf [consts.ISO9660_VOLUME_DESC_HEADER_SIZE]byte
	buf[0] = byte(vdh.VolumeDescriptorType)
	copy(buf[standardIdentifierOffset:standardIdentifierOffset+standardIdentifierLength], vdh.StandardIdentifier)
	buf[descriptorVersionOffset] = vdh.VolumeDescriptorVersion
	return buf
}

// Unmarshal parses the first 7 bytes of a descriptor. A wrong standard identifier or an unexpected type is
// ErrInvalidData.
func (vdh *VolumeDescriptorHeader) Unmarshal(data []byte, want VolumeDescriptorType) error {
	if len(data) < consts.ISO9660_VOLUME_DESC_HEADER_SIZE {
		return isoerr.InvalidData("%d bytes are too short for a volume descriptor header", len(data))
	}
	vdh.VolumeDescriptorType = VolumeDescriptorType(data[0])
	vdh.StandardIdentifier = string(data[standardIdentifierOffset : standardIdentifierOffset+standardIdentifierLength])
	vdh.VolumeDescriptorVersion = data[descriptorVersionOffset]

	if vdh.StandardIdentifier != consts.ISO9660_STD_IDENTIFIER {
		return isoerr.InvalidData("unexpected standard identifier %q", vdh.StandardIdentifier)
	}
	if vdh.VolumeDescriptorType != want {
		return isoerr.InvalidData("expected %s, found %s", want, vdh.VolumeDescriptorType)
	}
	return nil
}

// checkSize enforces that a descriptor filled exactly one sector.
func checkSize(name string, offset int) error {
	if offset != consts.ISO9660_SECTOR_SIZE {
		return isoerr.InvalidData("%s serialized to %d bytes instead of %d", name, offset, consts.ISO9660_SECTOR_SIZE)
	}
	return nil
}
