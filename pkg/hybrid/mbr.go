package hybrid

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/rstms/hybridiso/pkg/isoerr"
)

const (
	MBR_PARTITION_TABLE_OFFSET = 446
	MBR_PARTITION_ENTRY_SIZE   = 16
	MBR_PARTITION_COUNT        = 4
	MBR_SIGNATURE_OFFSET       = 510
	// Size of the partition table plus the boot signature, the part of sector 0 the MBR owns.
	MBR_TABLE_SIZE = MBR_PARTITION_ENTRY_SIZE*MBR_PARTITION_COUNT + 2
)

// PartitionType is the type byte of an MBR partition entry.
type PartitionType byte

const (
	Empty         PartitionType = 0x00
	GPTProtective PartitionType = 0xee
	EFISystem     PartitionType = 0xef
)

func (p PartitionType) String() string {
	switch p {
	case Empty:
		return "Empty"
	case GPTProtective:
		return "GPT Protective"
	case EFISystem:
		return "EFI System"
	default:
		return fmt.Sprintf("0x%02x", byte(p))
	}
}

const statusActive = 0x80

// MBRPartition is one of the four primary partition entries. CHS addresses are not used and stay zero.
type MBRPartition struct {
	Status      byte
	Type        PartitionType
	StartLBA    uint32
	SectorCount uint32
}

// Bootable reports whether the entry is flagged active.
func (p MBRPartition) Bootable() bool {
	return p.Status == statusActive
}

func (p MBRPartition) marshal(b []byte) {
	b[0] = p.Status
	// bytes 1-3 first CHS, zero
	b[4] = byte(p.Type)
	// bytes 5-7 last CHS, zero
	binary.LittleEndian.PutUint32(b[8:12], p.StartLBA)
	binary.LittleEndian.PutUint32(b[12:16], p.SectorCount)
}

func unmarshalMBRPartition(b []byte) MBRPartition {
	return MBRPartition{
		Status:      b[0],
		Type:        PartitionType(b[4]),
		StartLBA:    binary.LittleEndian.Uint32(b[8:12]),
		SectorCount: binary.LittleEndian.Uint32(b[12:16]),
	}
}

// MBR is the partition table and boot signature of sector 0. Boot code in the first 446 bytes is not modelled; the
// table is overlaid on whatever the system area already holds.
type MBR struct {
	Partitions [MBR_PARTITION_COUNT]MBRPartition
}

// NewProtectiveMBR returns an MBR with a single entry spanning the disk from LBA 1. A bootable MBR marks the entry
// active with the EFI System type, otherwise it is the GPT protective type.
func NewProtectiveMBR(totalSectors512 uint64, bootable bool) *MBR {
	count := uint64(0)
	if totalSectors512 > 1 {
		count = totalSectors512 - 1
	}
	if count > math.MaxUint32 {
		count = math.MaxUint32
	}
	entry := MBRPartition{Type: GPTProtective, StartLBA: 1, SectorCount: uint32(count)}
	if bootable {
		entry.Status = statusActive
		entry.Type = EFISystem
	}
	return &MBR{Partitions: [MBR_PARTITION_COUNT]MBRPartition{entry}}
}

// Marshal returns the 64-byte partition table followed by the 0x55 0xAA signature.
func (m *MBR) Marshal() [MBR_TABLE_SIZE]byte {
	var b [MBR_TABLE_SIZE]byte
	for i, p := range m.Partitions {
		p.marshal(b[i*MBR_PARTITION_ENTRY_SIZE : (i+1)*MBR_PARTITION_ENTRY_SIZE])
	}
	b[MBR_TABLE_SIZE-2] = 0x55
	b[MBR_TABLE_SIZE-1] = 0xAA
	return b
}

// Unmarshal parses the table of a 512-byte sector 0. A missing signature is ErrInvalidData.
func (m *MBR) Unmarshal(sector []byte) error {
	if len(sector) < MBR_SIGNATURE_OFFSET+2 {
		return isoerr.InvalidData("MBR sector of %d bytes is too short", len(sector))
	}
	if sector[MBR_SIGNATURE_OFFSET] != 0x55 || sector[MBR_SIGNATURE_OFFSET+1] != 0xAA {
		return isoerr.InvalidData("MBR signature is %02X%02X", sector[MBR_SIGNATURE_OFFSET],
			sector[MBR_SIGNATURE_OFFSET+1])
	}
	for i := range m.Partitions {
		start := MBR_PARTITION_TABLE_OFFSET + i*MBR_PARTITION_ENTRY_SIZE
		m.Partitions[i] = unmarshalMBRPartition(sector[start : start+MBR_PARTITION_ENTRY_SIZE])
	}
	return nil
}

// Overlay writes the table and signature at bytes 446..511 of w, leaving the boot code area untouched.
func (m *MBR) Overlay(w io.WriterAt) error {
	b := m.Marshal()
	if _, err := w.WriteAt(b[:], MBR_PARTITION_TABLE_OFFSET); err != nil {
		return fmt.Errorf("failed to write MBR partition table: %w", err)
	}
	return nil
}
