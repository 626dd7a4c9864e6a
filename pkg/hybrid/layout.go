package hybrid

import (
	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/helpers"
	"github.com/rstms/hybridiso/pkg/isoerr"
)

// ESPExtent is the EFI System Partition region of a hybrid image, in 2048-byte ISO sectors with an inclusive end.
type ESPExtent struct {
	Start uint32
	End   uint32
	// Sectors512 is the size of the FAT image in 512-byte sectors.
	Sectors512 uint32
}

// NewESPExtent places a FAT image of sectors512 sectors at the ISO sector start.
func NewESPExtent(start uint32, sectors512 uint32) (ESPExtent, error) {
	if sectors512 == 0 {
		return ESPExtent{}, isoerr.InvalidInput("ESP image is empty")
	}
	isoSectors := helpers.DiskToISOSectors(uint64(sectors512))
	return ESPExtent{
		Start:      start,
		End:        start + uint32(isoSectors) - 1,
		Sectors512: sectors512,
	}, nil
}

// Sectors returns the number of ISO sectors the extent covers.
func (e ESPExtent) Sectors() uint32 {
	return e.End - e.Start + 1
}

// StartLBA512 is the first 512-byte sector of the extent.
func (e ESPExtent) StartLBA512() uint64 {
	return helpers.ISOToDiskLBA(uint64(e.Start))
}

// EndLBA512 is the last 512-byte sector of the extent.
func (e ESPExtent) EndLBA512() uint64 {
	return helpers.ISOToDiskLBA(uint64(e.End)+1) - 1
}

// Layout is the placement of the GPT structures on a disk of TotalSectors 512-byte sectors.
type Layout struct {
	TotalSectors     uint64
	PrimaryHeaderLBA uint64
	PrimaryArrayLBA  uint64
	BackupHeaderLBA  uint64
	BackupArrayLBA   uint64
	FirstUsableLBA   uint64
	LastUsableLBA    uint64
}

// NewLayout computes the GPT layout of a disk. The ESP, when present, must lie within the usable range.
func NewLayout(totalSectors512 uint64, esp *ESPExtent) (*Layout, error) {
	minimum := uint64(consts.GPT_FIRST_USABLE_LBA) + consts.GPT_PARTITION_ARRAY_SECTORS + 2
	if totalSectors512 < minimum {
		return nil, isoerr.InvalidData("disk of %d sectors is too small for a GPT, need %d", totalSectors512, minimum)
	}
	backupHeader := totalSectors512 - 1
	backupArray := backupHeader - consts.GPT_PARTITION_ARRAY_SECTORS
	l := &Layout{
		TotalSectors:     totalSectors512,
		PrimaryHeaderLBA: GPT_PRIMARY_HEADER_LBA,
		PrimaryArrayLBA:  GPT_PRIMARY_ARRAY_LBA,
		BackupHeaderLBA:  backupHeader,
		BackupArrayLBA:   backupArray,
		FirstUsableLBA:   consts.GPT_FIRST_USABLE_LBA,
		LastUsableLBA:    backupArray - 1,
	}
	if esp != nil {
		if esp.StartLBA512() < l.FirstUsableLBA || esp.EndLBA512() > l.LastUsableLBA {
			return nil, isoerr.InvalidData("ESP sectors %d-%d fall outside the usable range %d-%d",
				esp.StartLBA512(), esp.EndLBA512(), l.FirstUsableLBA, l.LastUsableLBA)
		}
	}
	return l, nil
}

func (l *Layout) header(current, backup, array uint64) *Header {
	return &Header{
		Revision:       GPT_REVISION,
		HeaderSize:     consts.GPT_HEADER_SIZE,
		CurrentLBA:     current,
		BackupLBA:      backup,
		FirstUsableLBA: l.FirstUsableLBA,
		LastUsableLBA:  l.LastUsableLBA,
		ArrayLBA:       array,
		EntryCount:     consts.GPT_PARTITION_ENTRY_COUNT,
		EntrySize:      consts.GPT_PARTITION_ENTRY_SIZE,
	}
}

// Primary returns the primary header of the layout, without GUID or CRCs.
func (l *Layout) Primary() *Header {
	return l.header(l.PrimaryHeaderLBA, l.BackupHeaderLBA, l.PrimaryArrayLBA)
}

// Backup returns the backup header: current and backup LBA swapped, array before the header.
func (l *Layout) Backup() *Header {
	return l.header(l.BackupHeaderLBA, l.PrimaryHeaderLBA, l.BackupArrayLBA)
}
