package descriptor

import (
	"fmt"
	"strings"
	"time"

	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/directory"
	"github.com/rstms/hybridiso/pkg/encoding"
	"github.com/rstms/hybridiso/pkg/helpers"
	"github.com/rstms/hybridiso/pkg/isoerr"
)

// Absolute byte offsets of the Primary Volume Descriptor fields that are patched or inspected after the fact.
const (
	PVD_VOLUME_IDENTIFIER_OFFSET     = 40
	PVD_VOLUME_SPACE_SIZE_OFFSET     = 80
	PVD_VOLUME_SET_SIZE_OFFSET       = 120
	PVD_VOLUME_SEQUENCE_OFFSET       = 124
	PVD_LOGICAL_BLOCK_SIZE_OFFSET    = 128
	PVD_PATH_TABLE_SIZE_OFFSET       = 132
	PVD_ROOT_DIRECTORY_RECORD_OFFSET = 156
)

type PrimaryVolumeDescriptor struct {
	VolumeDescriptorHeader
	// System Identifier names the system that can act upon the system area, sectors 0 to 15.
	//  | (a-characters)
	SystemIdentifier string
	// Volume Identifier is the volume label.
	//  | (d-characters)
	VolumeIdentifier string
	// Volume Space Size is the number of logical blocks in the volume. It is written as a placeholder first and
	// patched by PatchVolumeSpaceSize once the image size is known.
	//  | Encoding: BothByteOrder
	VolumeSpaceSize uint32
	//  | Encoding: BothByteOrder
	VolumeSetSize uint16
	//  | Encoding: BothByteOrder
	VolumeSequenceNumber uint16
	//  | Encoding: BothByteOrder
	LogicalBlockSize uint16
	// Path Table Size is zero, no path table is recorded.
	//  | Encoding: BothByteOrder
	PathTableSize uint32
	// Root Directory Record is the 34-byte record of the root directory.
	RootDirectoryRecord *directory.Record

	VolumeSetIdentifier           string
	PublisherIdentifier           string
	DataPreparerIdentifier        string
	ApplicationIdentifier         string
	CopyrightFileIdentifier       string
	AbstractFileIdentifier        string
	BibliographicFileIdentifier   string
	VolumeCreationDateAndTime     time.Time
	VolumeModificationDateAndTime time.Time
	VolumeExpirationDateAndTime   time.Time
	VolumeEffectiveDateAndTime    time.Time
	// File Structure Version is 1 for a Primary Volume Descriptor.
	FileStructureVersion uint8
}

// NewPrimaryVolumeDescriptor returns a descriptor for a single volume whose root directory lives at rootLBA.
func NewPrimaryVolumeDescriptor(volumeIdentifier string, rootLBA uint32) *PrimaryVolumeDescriptor {
	return &PrimaryVolumeDescriptor{
		VolumeDescriptorHeader: newHeader(TYPE_PRIMARY_DESCRIPTOR),
		VolumeIdentifier:       volumeIdentifier,
		VolumeSetSize:          1,
		VolumeSequenceNumber:   1,
		LogicalBlockSize:       consts.ISO9660_SECTOR_SIZE,
		RootDirectoryRecord:    directory.Self(rootLBA),
		FileStructureVersion:   1,
	}
}

// SetRecordingTime sets the creation and modification dates of the volume, and of the root record.
func (pvd *PrimaryVolumeDescriptor) SetRecordingTime(t time.Time) {
	pvd.VolumeCreationDateAndTime = t
	pvd.VolumeModificationDateAndTime = t
	if pvd.RootDirectoryRecord != nil {
		pvd.RootDirectoryRecord.RecordingDateAndTime = t
	}
}

// Marshal converts the descriptor into its 2048-byte on-disk representation, string fields padded with spaces.
func (pvd *PrimaryVolumeDescriptor) Marshal() ([consts.ISO9660_SECTOR_SIZE]byte, error) {
	var data [consts.ISO9660_SECTOR_SIZE]byte

	// 1. Header, 7 bytes, followed by one unused byte
	header := pvd.VolumeDescriptorHeader.Marshal()
	offset := copy(data[:], header[:])
	offset++

	// 2. System and volume identifiers, 32 bytes each
	offset += copy(data[offset:offset+32], helpers.PadString(pvd.SystemIdentifier, 32))
	offset += copy(data[offset:offset+32], helpers.PadString(pvd.VolumeIdentifier, 32))

	// 3. Unused, 8 bytes
	offset += 8

	// 4. Volume space size
	vss := encoding.MarshalBothByteOrders32(pvd.VolumeSpaceSize)
	offset += copy(data[offset:offset+8], vss[:])

	// 5. Unused, 32 bytes (escape sequences of supplementary descriptors)
	offset += 32

	// 6. Volume set size, sequence number and logical block size
	setSize := encoding.MarshalBothByteOrders16(pvd.VolumeSetSize)
	offset += copy(data[offset:offset+4], setSize[:])
	seq := encoding.MarshalBothByteOrders16(pvd.VolumeSequenceNumber)
	offset += copy(data[offset:offset+4], seq[:])
	blockSize := encoding.MarshalBothByteOrders16(pvd.LogicalBlockSize)
	offset += copy(data[offset:offset+4], blockSize[:])

	// 7. Path table size, then the four path table locations which stay zero
	pts := encoding.MarshalBothByteOrders32(pvd.PathTableSize)
	offset += copy(data[offset:offset+8], pts[:])
	offset += 16

	// 8. Root directory record, 34 bytes
	if pvd.RootDirectoryRecord == nil {
		return data, isoerr.InvalidData("primary volume descriptor has no root directory record")
	}
	root, err := pvd.RootDirectoryRecord.Marshal()
	if err != nil {
		return data, fmt.Errorf("failed to marshal root directory record: %w", err)
	}
	if len(root) != consts.ISO9660_ROOT_RECORD_SIZE {
		return data, isoerr.InvalidData("root directory record is %d bytes instead of %d", len(root),
			consts.ISO9660_ROOT_RECORD_SIZE)
	}
	offset += copy(data[offset:offset+consts.ISO9660_ROOT_RECORD_SIZE], root)

	// 9. Identifiers, 128 bytes each
	for _, id := range []string{pvd.VolumeSetIdentifier, pvd.PublisherIdentifier, pvd.DataPreparerIdentifier,
		pvd.ApplicationIdentifier} {
		offset += copy(data[offset:offset+128], helpers.PadString(id, 128))
	}

	// 10. File identifiers, 37 bytes each
	for _, id := range []string{pvd.CopyrightFileIdentifier, pvd.AbstractFileIdentifier,
		pvd.BibliographicFileIdentifier} {
		offset += copy(data[offset:offset+37], helpers.PadString(id, 37))
	}

	// 11. Dates, 17 bytes each
	for _, t := range []time.Time{pvd.VolumeCreationDateAndTime, pvd.VolumeModificationDateAndTime,
		pvd.VolumeExpirationDateAndTime, pvd.VolumeEffectiveDateAndTime} {
		b, err := encoding.MarshalDateTime(t)
		if err != nil {
			return data, isoerr.InvalidInput("volume descriptor date: %s", err.Error())
		}
		offset += copy(data[offset:offset+17], b[:])
	}

	// 12. File structure version and a reserved byte
	data[offset] = pvd.FileStructureVersion
	offset += 2

	// 13. Application use and reserved area stay zero
	offset += consts.ISO9660_APPLICATION_USE_SIZE
	offset += 653

	return data, checkSize("primary volume descriptor", offset)
}

// Unmarshal parses a 2048-byte Primary Volume Descriptor sector.
func (pvd *PrimaryVolumeDescriptor) Unmarshal(data []byte) error {
	if len(data) < consts.ISO9660_SECTOR_SIZE {
		return isoerr.InvalidData("primary volume descriptor needs %d bytes, got %d", consts.ISO9660_SECTOR_SIZE,
			len(data))
	}
	if err := pvd.VolumeDescriptorHeader.Unmarshal(data, TYPE_PRIMARY_DESCRIPTOR); err != nil {
		return err
	}

	trim := func(start, n int) string {
		return strings.TrimRight(string(data[start:start+n]), " ")
	}
	both32 := func(start int) (uint32, error) {
		var b [8]byte
		copy(b[:], data[start:start+8])
		return encoding.UnmarshalUint32LSBMSB(b)
	}
	both16 := func(start int) (uint16, error) {
		var b [4]byte
		copy(b[:], data[start:start+4])
		return encoding.UnmarshalUint16LSBMSB(b)
	}

	var err error
	pvd.SystemIdentifier = trim(8, 32)
	pvd.VolumeIdentifier = trim(PVD_VOLUME_IDENTIFIER_OFFSET, 32)
	if pvd.VolumeSpaceSize, err = both32(PVD_VOLUME_SPACE_SIZE_OFFSET); err != nil {
		return fmt.Errorf("failed to unmarshal volume space size: %w", err)
	}
	if pvd.VolumeSetSize, err = both16(PVD_VOLUME_SET_SIZE_OFFSET); err != nil {
		return fmt.Errorf("failed to unmarshal volume set size: %w", err)
	}
	if pvd.VolumeSequenceNumber, err = both16(PVD_VOLUME_SEQUENCE_OFFSET); err != nil {
		return fmt.Errorf("failed to unmarshal volume sequence number: %w", err)
	}
	if pvd.LogicalBlockSize, err = both16(PVD_LOGICAL_BLOCK_SIZE_OFFSET); err != nil {
		return fmt.Errorf("failed to unmarshal logical block size: %w", err)
	}
	if pvd.PathTableSize, err = both32(PVD_PATH_TABLE_SIZE_OFFSET); err != nil {
		return fmt.Errorf("failed to unmarshal path table size: %w", err)
	}

	root := &directory.Record{}
	rootEnd := PVD_ROOT_DIRECTORY_RECORD_OFFSET + consts.ISO9660_ROOT_RECORD_SIZE
	if err := root.Unmarshal(data[PVD_ROOT_DIRECTORY_RECORD_OFFSET:rootEnd]); err != nil {
		return fmt.Errorf("failed to unmarshal root directory record: %w", err)
	}
	pvd.RootDirectoryRecord = root

	pvd.VolumeSetIdentifier = trim(190, 128)
	pvd.PublisherIdentifier = trim(318, 128)
	pvd.DataPreparerIdentifier = trim(446, 128)
	pvd.ApplicationIdentifier = trim(574, 128)
	pvd.CopyrightFileIdentifier = trim(702, 37)
	pvd.AbstractFileIdentifier = trim(739, 37)
	pvd.BibliographicFileIdentifier = trim(776, 37)

	dates := []*time.Time{&pvd.VolumeCreationDateAndTime, &pvd.VolumeModificationDateAndTime,
		&pvd.VolumeExpirationDateAndTime, &pvd.VolumeEffectiveDateAndTime}
	for i, dst := range dates {
		var b [17]byte
		copy(b[:], data[813+17*i:])
		if *dst, err = encoding.UnmarshalDateTime(b); err != nil {
			return fmt.Errorf("failed to unmarshal volume date %d: %w", i, err)
		}
	}
	pvd.FileStructureVersion = data[881]
	return nil
}
