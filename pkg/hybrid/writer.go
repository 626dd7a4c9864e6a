// Package hybrid writes the MBR and GPT structures that let an ISO9660 image boot when written to a disk.
package hybrid

import (
	"fmt"
	"hash/crc32"
	"io"

	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/helpers"
)

const ESP_PARTITION_NAME = "EFI System Partition"

// Table is what Writer.Write put on disk.
type Table struct {
	Layout  *Layout
	MBR     *MBR
	Primary *Header
	Backup  *Header
	Entries []*PartitionEntry
}

// Writer lays a protective MBR and a GPT over a finished ISO image.
type Writer struct {
	GUIDs GUIDSource
	// Bootable marks the MBR entry active with the EFI System type.
	Bootable bool
}

// NewWriter returns a writer drawing disk and partition GUIDs from guids.
func NewWriter(guids GUIDSource, bootable bool) *Writer {
	if guids == nil {
		guids = RandomGUIDs()
	}
	return &Writer{GUIDs: guids, Bootable: bootable}
}

// Write overlays the MBR table and primary GPT on the system area of w and writes the backup GPT into the last
// sectors of an image of isoSectors 2048-byte sectors. The image must already be finalized: the backup structures
// live in sectors the caller reserved at its end. esp may be nil, giving an empty partition array.
func (wr *Writer) Write(w io.WriterAt, isoSectors uint32, esp *ESPExtent) (*Table, error) {
	total := helpers.ISOToDiskLBA(uint64(isoSectors))
	layout, err := NewLayout(total, esp)
	if err != nil {
		return nil, err
	}

	diskGUID, err := wr.GUIDs.NewGUID()
	if err != nil {
		return nil, fmt.Errorf("failed to create disk GUID: %w", err)
	}

	var entries []*PartitionEntry
	if esp != nil {
		id, err := wr.GUIDs.NewGUID()
		if err != nil {
			return nil, fmt.Errorf("failed to create ESP partition GUID: %w", err)
		}
		entries = append(entries, &PartitionEntry{
			Type:     ESPTypeGUID,
			GUID:     id,
			StartLBA: esp.StartLBA512(),
			EndLBA:   esp.EndLBA512(),
			Name:     ESP_PARTITION_NAME,
		})
	}

	// 1. Partition array and its CRC
	array, err := MarshalPartitionArray(entries)
	if err != nil {
		return nil, err
	}
	arrayCRC := crc32.ChecksumIEEE(array)

	// 2. Headers, each CRC computed over its own bytes
	primary := layout.Primary()
	primary.DiskGUID = diskGUID
	primary.ArrayCRC = arrayCRC
	primarySector := primary.Marshal()

	backup := layout.Backup()
	backup.DiskGUID = diskGUID
	backup.ArrayCRC = arrayCRC
	backupSector := backup.Marshal()

	// 3. Backup structures at the end of the image
	if err := writeSectors(w, layout.BackupArrayLBA, array); err != nil {
		return nil, fmt.Errorf("failed to write backup partition array: %w", err)
	}
	if err := writeSectors(w, layout.BackupHeaderLBA, backupSector[:]); err != nil {
		return nil, fmt.Errorf("failed to write backup GPT header: %w", err)
	}

	// 4. Primary structures in the system area
	if err := writeSectors(w, layout.PrimaryArrayLBA, array); err != nil {
		return nil, fmt.Errorf("failed to write primary partition array: %w", err)
	}
	if err := writeSectors(w, layout.PrimaryHeaderLBA, primarySector[:]); err != nil {
		return nil, fmt.Errorf("failed to write primary GPT header: %w", err)
	}

	// 5. MBR table last, over the first sector
	mbr := NewProtectiveMBR(total, wr.Bootable)
	if err := mbr.Overlay(w); err != nil {
		return nil, err
	}

	return &Table{Layout: layout, MBR: mbr, Primary: primary, Backup: backup, Entries: entries}, nil
}

func writeSectors(w io.WriterAt, lba uint64, data []byte) error {
	_, err := w.WriteAt(data, int64(lba*consts.DISK_SECTOR_SIZE))
	return err
}
