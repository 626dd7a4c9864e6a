package directory

import (
	"fmt"

	"github.com/rstms/hybridiso/pkg/consts"
	"github.com/rstms/hybridiso/pkg/isoerr"
)

// MarshalSector packs records back to back into one zero filled 2048-byte directory sector. Records that do not all
// fit are ErrInvalidInput; directories never spill into a second sector.
func MarshalSector(records []*Record) ([]byte, error) {
	sector := make([]byte, consts.ISO9660_SECTOR_SIZE)
	offset := 0
	for _, r := range records {
		b, err := r.Marshal()
		if err != nil {
			return nil, err
		}
		if offset+len(b) > len(sector) {
			return nil, isoerr.InvalidInput("directory records need more than one %d-byte sector (%d records)",
				consts.ISO9660_SECTOR_SIZE, len(records))
		}
		copy(sector[offset:], b)
		offset += len(b)
	}
	return sector, nil
}

// UnmarshalSector decodes every record of a directory sector. A zero length byte ends the list.
func UnmarshalSector(sector []byte) ([]*Record, error) {
	var records []*Record
	offset := 0
	for offset < len(sector) && sector[offset] != 0 {
		r := &Record{}
		if err := r.Unmarshal(sector[offset:]); err != nil {
			return nil, fmt.Errorf("failed to unmarshal directory record at offset %d: %w", offset, err)
		}
		records = append(records, r)
		offset += int(sector[offset])
	}
	return records, nil
}
