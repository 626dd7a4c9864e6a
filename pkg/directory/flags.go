package directory

import "github.com/rstms/hybridiso/pkg/isoerr"

// FileFlags holds the bits of a Directory Record's File Flags field, LSB first:
//
//	Bit 0 ("Hidden"): the file's existence need not be made known to the user.
//	Bit 1 ("Directory"): the record identifies a directory.
//	Bit 2 ("AssociatedFile"): the file is an Associated File.
//	Bit 3 ("RecordFormat"): the structure of the file is given by an Extended Attribute Record.
//	Bit 4 ("Protection"): owner and group are given by an Extended Attribute Record.
//	Bits 5 & 6: Reserved, zero.
//	Bit 7 ("MultiExtent"): this is not the final record of the file.
type FileFlags struct {
	Hidden         bool
	Directory      bool
	AssociatedFile bool
	RecordFormat   bool
	Protection     bool
	MultiExtent    bool
}

const (
	flagHidden         = 0x01
	flagDirectory      = 0x02
	flagAssociatedFile = 0x04
	flagRecordFormat   = 0x08
	flagProtection     = 0x10
	flagReserved       = 0x60
	flagMultiExtent    = 0x80
)

// Marshal packs the flags into a single byte. The reserved bits are always zero.
func (ff FileFlags) Marshal() byte {
	var b byte
	set := func(on bool, bit byte) {
		if on {
			b |= bit
		}
	}
	set(ff.Hidden, flagHidden)
	set(ff.Directory, flagDirectory)
	set(ff.AssociatedFile, flagAssociatedFile)
	set(ff.RecordFormat, flagRecordFormat)
	set(ff.Protection, flagProtection)
	set(ff.MultiExtent, flagMultiExtent)
	return b
}

// UnmarshalFileFlags unpacks a flags byte. Set reserved bits are ErrInvalidData.
func UnmarshalFileFlags(b byte) (FileFlags, error) {
	if b&flagReserved != 0 {
		return FileFlags{}, isoerr.InvalidData("file flags 0x%02X have reserved bits set", b)
	}
	return FileFlags{
		Hidden:         b&flagHidden != 0,
		Directory:      b&flagDirectory != 0,
		AssociatedFile: b&flagAssociatedFile != 0,
		RecordFormat:   b&flagRecordFormat != 0,
		Protection:     b&flagProtection != 0,
		MultiExtent:    b&flagMultiExtent != 0,
	}, nil
}
