package descriptor

import (
	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/isoerr"
)

type VolumeDescriptorSetTerminator struct {
	VolumeDescriptorHeader
}

func NewVolumeDescriptorSetTerminator() *VolumeDescriptorSetTerminator {
	return &VolumeDescriptorSetTerminator{VolumeDescriptorHeader: newHeader(TYPE_SET_TERMINATOR)}
}

// Marshal returns the terminator sector: the header followed by reserved zero bytes.
func (d *VolumeDescriptorSetTerminator) Marshal() ([consts.ISO9660_SECTOR_SIZE]byte, error) {
	var buf [consts.ISO9660_SECTOR_SIZE]byte
	header := d.VolumeDescriptorHeader.Marshal()
	copy(buf[:], header[:])
	return buf, nil
}

func (d *VolumeDescriptorSetTerminator) Unmarshal(data []byte) error {
	if len(data) < consts.ISO9660_SECTOR_SIZE {
		return isoerr.InvalidData("terminator needs %d bytes, got %d", consts.ISO9660_SECTOR_SIZE, len(data))
	}
	return d.VolumeDescriptorHeader.Unmarshal(data, TYPE_SET_TERMINATOR)
}
