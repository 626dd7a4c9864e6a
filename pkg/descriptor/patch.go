package descriptor

import (
	"fmt"
	"io"

	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/encoding"
)

// VolumeSpaceSizeOffset is the absolute image offset of the Primary Volume Descriptor's volume space size.
const VolumeSpaceSizeOffset = consts.PRIMARY_VOLUME_DESCRIPTOR_LBA*consts.ISO9660_SECTOR_SIZE + PVD_VOLUME_SPACE_SIZE_OFFSET

// PatchVolumeSpaceSize rewrites both byte orders of the volume space size in an already written Primary Volume
// Descriptor. This is the second pass over the field, run once the size of the image is known.
func PatchVolumeSpaceSize(w io.WriterAt, sectors uint32) error {
	b := encoding.MarshalBothByteOrders32(sectors)
	if _, err := w.WriteAt(b[:], VolumeSpaceSizeOffset); err != nil {
		return fmt.Errorf("failed to patch volume space size: %w", err)
	}
	return nil
}

// WriteAt writes a marshalled descriptor sector at lba.
func WriteAt(w io.WriterAt, lba uint32, sector [consts.ISO9660_SECTOR_SIZE]byte) error {
	if _, err := w.WriteAt(sector[:], int64(lba)*consts.ISO9660_SECTOR_SIZE); err != nil {
		return fmt.Errorf("failed to write volume descriptor at LBA %d: %w", lba, err)
	}
	return nil
}
