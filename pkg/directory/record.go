// Package directory encodes ISO9660 directory records (ECMA-119 9.1) and packs them into directory sectors.
package directory

import (
	"fmt"
	"time"

	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/encoding"
	"github.com/rstms/hybridiso/pkg/helpers"
	"github.com/rstms/hybridiso/pkg/isoerr"
)

const (
	// Identifier of the record describing the directory itself.
	SelfIdentifier = "\x00"
	// Identifier of the record describing the parent directory.
	ParentIdentifier = "\x01"
)

// Field offsets inside a directory record.
const (
	offsetLength           = 0
	offsetEARLength        = 1
	offsetLocation         = 2
	offsetDataLength       = 10
	offsetRecordingTime    = 18
	offsetFlags            = 25
	offsetFileUnitSize     = 26
	offsetInterleaveGap    = 27
	offsetVolumeSequence   = 28
	offsetIdentifierLength = 32
	offsetIdentifier       = 33
)

type Record struct {
	// Extended Attribute Record Length. Always zero for records written by this package.
	ExtendedAttributeRecordLength uint8
	// Location of Extent is the LBA of the first sector of the extent.
	//  | Encoding: BothByteOrder
	LocationOfExtent uint32
	// Data Length is the size of the extent in bytes.
	//  | Encoding: BothByteOrder
	DataLength uint32
	// Recording Date and Time. The zero time is written as "not specified".
	//  | Encoding: 7-byte time format
	RecordingDateAndTime time.Time
	FileFlags            FileFlags
	// File Unit Size and Interleave Gap Size are zero unless the file is recorded interleaved.
	FileUnitSize      uint8
	InterleaveGapSize uint8
	// Volume Sequence Number of the volume holding the extent.
	//  | Encoding: BothByteOrder
	VolumeSequenceNumber uint16
	// File Identifier is NAME;1 for files, NAME for directories, or one of SelfIdentifier and ParentIdentifier.
	FileIdentifier string
}

// Self returns the "." record of the directory at lba.
func Self(lba uint32) *Record {
	return ForDirectory(SelfIdentifier, lba)
}

// Parent returns the ".." record pointing at the parent directory at lba.
func Parent(lba uint32) *Record {
	return ForDirectory(ParentIdentifier, lba)
}

// ForDirectory returns the record of a directory. Names are upper-cased; the special identifiers pass unchanged.
func ForDirectory(name string, lba uint32) *Record {
	id := name
	if name != SelfIdentifier && name != ParentIdentifier {
		id = helpers.IdentifierName(name)
	}
	return &Record{
		LocationOfExtent:     lba,
		DataLength:           consts.ISO9660_SECTOR_SIZE,
		FileFlags:            FileFlags{Directory: true},
		VolumeSequenceNumber: 1,
		FileIdentifier:       id,
	}
}

// ForFile returns the record of a file, identified as the upper-cased name with a ";1" version suffix.
func ForFile(name string, lba uint32, size uint32) *Record {
	return &Record{
		LocationOfExtent:     lba,
		DataLength:           size,
		VolumeSequenceNumber: 1,
		FileIdentifier:       helpers.IdentifierName(name) + consts.ISO9660_FILE_VERSION,
	}
}

// IsSpecial reports whether the record is a "." or ".." entry.
func (r *Record) IsSpecial() bool {
	return r.FileIdentifier == SelfIdentifier || r.FileIdentifier == ParentIdentifier
}

// Len returns the encoded length of the record, including the padding byte that keeps it even.
func (r *Record) Len() int {
	n := offsetIdentifier + len(r.FileIdentifier)
	if n%2 != 0 {
		n++
	}
	return n
}

// Marshal converts the record into its on-disk form. A record longer than 255 bytes is ErrInvalidInput.
func (r *Record) Marshal() ([]byte, error) {
	// 1. Validate the identifier fits
	if len(r.FileIdentifier) == 0 {
		return nil, isoerr.InvalidInput("directory record has an empty file identifier")
	}
	length := r.Len()
	if length > consts.ISO9660_MAX_RECORD_SIZE {
		return nil, isoerr.InvalidInput("directory record for %q is %d bytes, limit is %d",
			r.FileIdentifier, length, consts.ISO9660_MAX_RECORD_SIZE)
	}

	buf := make([]byte, length)

	// 2. Length of the record and of the extended attribute record
	buf[offsetLength] = byte(length)
	buf[offsetEARLength] = r.ExtendedAttributeRecordLength

	// 3. Location and size of the extent
	loc := encoding.MarshalBothByteOrders32(r.LocationOfExtent)
	copy(buf[offsetLocation:], loc[:])
	size := encoding.MarshalBothByteOrders32(r.DataLength)
	copy(buf[offsetDataLength:], size[:])

	// 4. Recording date and time
	recorded, err := encoding.MarshalRecordingDateTime(r.RecordingDateAndTime)
	if err != nil {
		return nil, isoerr.InvalidInput("directory record for %q: %s", r.FileIdentifier, err.Error())
	}
	copy(buf[offsetRecordingTime:], recorded[:])

	// 5. Flags and interleaving
	buf[offsetFlags] = r.FileFlags.Marshal()
	buf[offsetFileUnitSize] = r.FileUnitSize
	buf[offsetInterleaveGap] = r.InterleaveGapSize

	// 6. Volume sequence number
	seq := encoding.MarshalBothByteOrders16(r.VolumeSequenceNumber)
	copy(buf[offsetVolumeSequence:], seq[:])

	// 7. File identifier, the trailing padding byte is already zero
	buf[offsetIdentifierLength] = byte(len(r.FileIdentifier))
	copy(buf[offsetIdentifier:], r.FileIdentifier)

	return buf, nil
}

// Unmarshal decodes a record from data, which must hold at least the record's own length.
func (r *Record) Unmarshal(data []byte) error {
	if len(data) < offsetIdentifier+1 {
		return isoerr.InvalidData("%d bytes are too short for a directory record", len(data))
	}
	length := int(data[offsetLength])
	if length < offsetIdentifier+1 || length > len(data) {
		return isoerr.InvalidData("directory record length %d does not fit in %d bytes", length, len(data))
	}
	idLen := int(data[offsetIdentifierLength])
	if offsetIdentifier+idLen > length {
		return isoerr.InvalidData("file identifier length %d overruns record length %d", idLen, length)
	}

	var both32 [8]byte
	copy(both32[:], data[offsetLocation:offsetLocation+8])
	loc, err := encoding.UnmarshalUint32LSBMSB(both32)
	if err != nil {
		return fmt.Errorf("failed to unmarshal location of extent: %w", err)
	}
	copy(both32[:], data[offsetDataLength:offsetDataLength+8])
	size, err := encoding.UnmarshalUint32LSBMSB(both32)
	if err != nil {
		return fmt.Errorf("failed to unmarshal data length: %w", err)
	}
	var recorded [7]byte
	copy(recorded[:], data[offsetRecordingTime:offsetRecordingTime+7])
	flags, err := UnmarshalFileFlags(data[offsetFlags])
	if err != nil {
		return fmt.Errorf("failed to unmarshal file flags: %w", err)
	}
	var both16 [4]byte
	copy(both16[:], data[offsetVolumeSequence:offsetVolumeSequence+4])
	seq, err := encoding.UnmarshalUint16LSBMSB(both16)
	if err != nil {
		return fmt.Errorf("failed to unmarshal volume sequence number: %w", err)
	}

	r.ExtendedAttributeRecordLength = data[offsetEARLength]
	r.LocationOfExtent = loc
	r.DataLength = size
	r.RecordingDateAndTime = encoding.UnmarshalRecordingDateTime(recorded)
	r.FileFlags = flags
	r.FileUnitSize = data[offsetFileUnitSize]
	r.InterleaveGapSize = data[offsetInterleaveGap]
	r.VolumeSequenceNumber = seq
	r.FileIdentifier = string(data[offsetIdentifier : offsetIdentifier+idLen])
	return nil
}
