package helpers

import (
	"github.com/rstms/hybridiso/pkg/consts"
)

// CeilDiv returns ceil(n / d) for a positive divisor.
func CeilDiv(n, d uint64) uint64 {
	return (n + d - 1) / d
}

// ISOSectors returns the number of 2048-byte sectors needed to hold size bytes.
func ISOSectors(size uint64) uint64 {
	return CeilDiv(size, consts.ISO9660_SECTOR_SIZE)
}

// DiskSectors returns the number of 512-byte sectors needed to hold size bytes.
func DiskSectors(size uint64) uint64 {
	return CeilDiv(size, consts.DISK_SECTOR_SIZE)
}

// DiskToISOSectors converts a count of 512-byte sectors to the 2048-byte sectors covering them.
func DiskToISOSectors(sectors512 uint64) uint64 {
	return CeilDiv(sectors512, consts.DISK_SECTORS_PER_ISO_SECTOR)
}

// ISOToDiskLBA converts an ISO9660 sector address into the 512-byte sector address of its first byte.
func ISOToDiskLBA(lba uint64) uint64 {
	return lba * consts.DISK_SECTORS_PER_ISO_SECTOR
}
