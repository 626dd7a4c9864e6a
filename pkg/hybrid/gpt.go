package hybrid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"
	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/encoding"
	"github.com/rstms/hybridiso/pkg/isoerr"
)

// ESPTypeGUID is the partition type of an EFI System Partition.
var ESPTypeGUID = uuid.MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")

const (
	GPT_SIGNATURE = "EFI PART"
	// GPT_REVISION is revision 1.0, stored as 00 00 01 00.
	GPT_REVISION uint32 = 0x00010000

	GPT_PRIMARY_HEADER_LBA = 1
	GPT_PRIMARY_ARRAY_LBA  = 2

	// Name field of a partition entry in UTF-16 code units.
	GPT_PARTITION_NAME_UNITS = 36
)

// Header field offsets
const (
	gptSignatureOffset   = 0
	gptRevisionOffset    = 8
	gptHeaderSizeOffset  = 12
	gptHeaderCRCOffset   = 16
	gptCurrentLBAOffset  = 24
	gptBackupLBAOffset   = 32
	gptFirstUsableOffset = 40
	gptLastUsableOffset  = 48
	gptDiskGUIDOffset    = 56
	gptArrayLBAOffset    = 72
	gptEntryCountOffset  = 80
	gptEntrySizeOffset   = 84
	gptArrayCRCOffset    = 88
)

// Partition entry field offsets
const (
	partTypeOffset       = 0
	partGUIDOffset       = 16
	partStartOffset      = 32
	partEndOffset        = 40
	partAttributesOffset = 48
	partNameOffset       = 56
)

// PartitionEntry is one entry of the GPT partition array. StartLBA and EndLBA are inclusive 512-byte sectors.
type PartitionEntry struct {
	Type       uuid.UUID
	GUID       uuid.UUID
	StartLBA   uint64
	EndLBA     uint64
	Attributes uint64
	Name       string
}

// Marshal encodes the entry into its 128-byte on-disk form. A name longer than 36 UTF-16 code units is
// ErrInvalidInput.
func (p *PartitionEntry) Marshal() ([]byte, error) {
	if p.EndLBA < p.StartLBA {
		return nil, isoerr.InvalidInput("partition %q ends at LBA %d before its start %d", p.Name, p.EndLBA, p.StartLBA)
	}
	name, err := encoding.EncodeUTF16LE(p.Name, GPT_PARTITION_NAME_UNITS)
	if err != nil {
		return nil, isoerr.InvalidInput("partition name: %v", err)
	}
	b := make([]byte, consts.GPT_PARTITION_ENTRY_SIZE)
	typeGUID := encoding.MarshalGUID(p.Type)
	copy(b[partTypeOffset:], typeGUID[:])
	id := encoding.MarshalGUID(p.GUID)
	copy(b[partGUIDOffset:], id[:])
	binary.LittleEndian.PutUint64(b[partStartOffset:], p.StartLBA)
	binary.LittleEndian.PutUint64(b[partEndOffset:], p.EndLBA)
	binary.LittleEndian.PutUint64(b[partAttributesOffset:], p.Attributes)
	copy(b[partNameOffset:], name)
	return b, nil
}

// Unmarshal decodes a 128-byte partition entry.
func (p *PartitionEntry) Unmarshal(b []byte) error {
	if len(b) < consts.GPT_PARTITION_ENTRY_SIZE {
		return isoerr.InvalidData("partition entry of %d bytes is too short", len(b))
	}
	var err error
	if p.Type, err = encoding.UnmarshalGUID(b[partTypeOffset:]); err != nil {
		return isoerr.InvalidData("partition type: %v", err)
	}
	if p.GUID, err = encoding.UnmarshalGUID(b[partGUIDOffset:]); err != nil {
		return isoerr.InvalidData("partition GUID: %v", err)
	}
	p.StartLBA = binary.LittleEndian.Uint64(b[partStartOffset:])
	p.EndLBA = binary.LittleEndian.Uint64(b[partEndOffset:])
	p.Attributes = binary.LittleEndian.Uint64(b[partAttributesOffset:])
	p.Name = encoding.DecodeUTF16LE(b[partNameOffset:consts.GPT_PARTITION_ENTRY_SIZE])
	return nil
}

// IsEmpty reports whether the entry is unused.
func (p *PartitionEntry) IsEmpty() bool {
	return p.Type == uuid.Nil
}

// MarshalPartitionArray encodes entries into the full 128 x 128 byte array, unused slots zeroed.
func MarshalPartitionArray(entries []*PartitionEntry) ([]byte, error) {
	if len(entries) > consts.GPT_PARTITION_ENTRY_COUNT {
		return nil, isoerr.InvalidInput("%d partitions exceed the %d entry array", len(entries),
			consts.GPT_PARTITION_ENTRY_COUNT)
	}
	array := make([]byte, consts.GPT_PARTITION_ENTRY_COUNT*consts.GPT_PARTITION_ENTRY_SIZE)
	for i, e := range entries {
		b, err := e.Marshal()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal partition %d: %w", i+1, err)
		}
		copy(array[i*consts.GPT_PARTITION_ENTRY_SIZE:], b)
	}
	return array, nil
}

// UnmarshalPartitionArray returns the used entries of a partition array.
func UnmarshalPartitionArray(array []byte, count, size uint32) ([]*PartitionEntry, error) {
	if size < consts.GPT_PARTITION_ENTRY_SIZE {
		return nil, isoerr.InvalidData("partition entry size %d is below %d", size, consts.GPT_PARTITION_ENTRY_SIZE)
	}
	if uint64(len(array)) < uint64(count)*uint64(size) {
		return nil, isoerr.InvalidData("partition array of %d bytes is too short for %d entries", len(array), count)
	}
	var entries []*PartitionEntry
	for i := uint32(0); i < count; i++ {
		e := &PartitionEntry{}
		if err := e.Unmarshal(array[i*size : (i+1)*size]); err != nil {
			return nil, fmt.Errorf("failed to parse partition %d: %w", i+1, err)
		}
		if !e.IsEmpty() {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Header is a GPT header. The primary copy lives at LBA 1 and the backup at the last sector of the disk.
type Header struct {
	Revision       uint32
	HeaderSize     uint32
	HeaderCRC      uint32
	CurrentLBA     uint64
	BackupLBA      uint64
	FirstUsableLBA uint64
	LastUsableLBA  uint64
	DiskGUID       uuid.UUID
	ArrayLBA       uint64
	EntryCount     uint32
	EntrySize      uint32
	ArrayCRC       uint32
}

// Marshal encodes the header into a 512-byte sector and sets HeaderCRC to the CRC32 of the first 92 bytes computed
// with the CRC field zeroed.
func (h *Header) Marshal() [consts.DISK_SECTOR_SIZE]byte {
	var b [consts.DISK_SECTOR_SIZE]byte

	copy(b[gptSignatureOffset:], GPT_SIGNATURE)
	binary.LittleEndian.PutUint32(b[gptRevisionOffset:], h.Revision)
	binary.LittleEndian.PutUint32(b[gptHeaderSizeOffset:], h.HeaderSize)
	// header CRC and 4 reserved bytes stay zero while the CRC is computed
	binary.LittleEndian.PutUint64(b[gptCurrentLBAOffset:], h.CurrentLBA)
	binary.LittleEndian.PutUint64(b[gptBackupLBAOffset:], h.BackupLBA)
	binary.LittleEndian.PutUint64(b[gptFirstUsableOffset:], h.FirstUsableLBA)
	binary.LittleEndian.PutUint64(b[gptLastUsableOffset:], h.LastUsableLBA)
	guid := encoding.MarshalGUID(h.DiskGUID)
	copy(b[gptDiskGUIDOffset:], guid[:])
	binary.LittleEndian.PutUint64(b[gptArrayLBAOffset:], h.ArrayLBA)
	binary.LittleEndian.PutUint32(b[gptEntryCountOffset:], h.EntryCount)
	binary.LittleEndian.PutUint32(b[gptEntrySizeOffset:], h.EntrySize)
	binary.LittleEndian.PutUint32(b[gptArrayCRCOffset:], h.ArrayCRC)

	h.HeaderCRC = crc32.ChecksumIEEE(b[:consts.GPT_HEADER_SIZE])
	binary.LittleEndian.PutUint32(b[gptHeaderCRCOffset:], h.HeaderCRC)
	return b
}

// Unmarshal decodes a header sector, checking the signature, header size and header CRC.
func (h *Header) Unmarshal(b []byte) error {
	if len(b) < consts.GPT_HEADER_SIZE {
		return isoerr.InvalidData("GPT header of %d bytes is too short", len(b))
	}
	if !bytes.Equal(b[gptSignatureOffset:gptSignatureOffset+len(GPT_SIGNATURE)], []byte(GPT_SIGNATURE)) {
		return isoerr.InvalidData("GPT signature %q", b[gptSignatureOffset:gptSignatureOffset+len(GPT_SIGNATURE)])
	}
	size := binary.LittleEndian.Uint32(b[gptHeaderSizeOffset:])
	if size < consts.GPT_HEADER_SIZE || int(size) > len(b) {
		return isoerr.InvalidData("GPT header size %d", size)
	}

	stored := binary.LittleEndian.Uint32(b[gptHeaderCRCOffset:])
	check := make([]byte, size)
	copy(check, b[:size])
	binary.LittleEndian.PutUint32(check[gptHeaderCRCOffset:], 0)
	if sum := crc32.ChecksumIEEE(check); sum != stored {
		return isoerr.InvalidData("GPT header CRC is 0x%08x, computed 0x%08x", stored, sum)
	}

	guid, err := encoding.UnmarshalGUID(b[gptDiskGUIDOffset:])
	if err != nil {
		return isoerr.InvalidData("GPT disk GUID: %v", err)
	}
	*h = Header{
		Revision:       binary.LittleEndian.Uint32(b[gptRevisionOffset:]),
		HeaderSize:     size,
		HeaderCRC:      stored,
		CurrentLBA:     binary.LittleEndian.Uint64(b[gptCurrentLBAOffset:]),
		BackupLBA:      binary.LittleEndian.Uint64(b[gptBackupLBAOffset:]),
		FirstUsableLBA: binary.LittleEndian.Uint64(b[gptFirstUsableOffset:]),
		LastUsableLBA:  binary.LittleEndian.Uint64(b[gptLastUsableOffset:]),
		DiskGUID:       guid,
		ArrayLBA:       binary.LittleEndian.Uint64(b[gptArrayLBAOffset:]),
		EntryCount:     binary.LittleEndian.Uint32(b[gptEntryCountOffset:]),
		EntrySize:      binary.LittleEndian.Uint32(b[gptEntrySizeOffset:]),
		ArrayCRC:       binary.LittleEndian.Uint32(b[gptArrayCRCOffset:]),
	}
	return nil
}

// CheckArray verifies the partition array CRC recorded in the header.
func (h *Header) CheckArray(array []byte) error {
	n := uint64(h.EntryCount) * uint64(h.EntrySize)
	if uint64(len(array)) < n {
		return isoerr.InvalidData("partition array of %d bytes is shorter than %d", len(array), n)
	}
	if sum := crc32.ChecksumIEEE(array[:n]); sum != h.ArrayCRC {
		return isoerr.InvalidData("partition array CRC is 0x%08x, computed 0x%08x", h.ArrayCRC, sum)
	}
	return nil
}
