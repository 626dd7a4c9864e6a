package encoding

import (
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
)

// MarshalBothByteOrders32 converts a uint32 value into an 8-byte field that encodes the value in both little-endian
// and big-endian orders (ECMA-119 7.3.3).
func MarshalBothByteOrders32(val uint32) [8]byte {
	var data [8]byte
	binary.LittleEndian.PutUint32(data[0:4], val)
	binary.BigEndian.PutUint32(data[4:8], val)
	return data
}

// UnmarshalUint32LSBMSB converts an 8-byte both-byte-order field back to a uint32 value. The two halves must agree.
func UnmarshalUint32LSBMSB(data [8]byte) (uint32, error) {
	little := binary.LittleEndian.Uint32(data[0:4])
	big := binary.BigEndian.Uint32(data[4:8])
	if little != big {
		return 0, fmt.Errorf("mismatched both-byte orders: little-endian value %d != big-endian value %d", little, big)
	}
	return little, nil
}

// MarshalBothByteOrders16 converts a uint16 value into a 4-byte field that encodes the value in both little-endian
// and big-endian orders (ECMA-119 7.2.3). For example 0x1234 becomes [0x34, 0x12, 0x12, 0x34].
func MarshalBothByteOrders16(val uint16) [4]byte {
	var data [4]byte
	binary.LittleEndian.PutUint16(data[0:2], val)
	binary.BigEndian.PutUint16(data[2:4], val)
	return data
}

// UnmarshalUint16LSBMSB converts a 4-byte both-byte-order field back to a uint16 value. The two halves must agree.
func UnmarshalUint16LSBMSB(data [4]byte) (uint16, error) {
	little := binary.LittleEndian.Uint16(data[0:2])
	big := binary.BigEndian.Uint16(data[2:4])
	if little != big {
		return 0, fmt.Errorf("mismatched both-byte orders: little-endian value %d != big-endian value %d", little, big)
	}
	return little, nil
}

// MarshalDateTime converts a time.Time into the 17-byte volume descriptor date format (ECMA-119 8.4.26.1):
//
//	YYYY MM DD hh mm ss cc
//
// followed by the offset from GMT in 15-minute intervals. The zero time encodes as "not specified", sixteen ASCII
// '0' characters and a zero offset.
func MarshalDateTime(t time.Time) ([17]byte, error) {
	var out [17]byte

	if t.IsZero() {
		for i := 0; i < 16; i++ {
			out[i] = '0'
		}
		return out, nil
	}

	y, m, d := t.Date()
	if y < 1 || y > 9999 {
		return out, fmt.Errorf("year %d out of range for volume descriptor date", y)
	}
	hh, mm, ss := t.Clock()
	hundredths := t.Nanosecond() / 10_000_000

	s := fmt.Sprintf("%04d%02d%02d%02d%02d%02d%02d", y, int(m), d, hh, mm, ss, hundredths)
	copy(out[:16], s)

	_, offsetSec := t.Zone()
	offset15 := offsetSec / 900
	if offset15 < -48 || offset15 > 52 {
		return [17]byte{}, fmt.Errorf("offset %d out of ISO9660 bounds", offset15)
	}
	out[16] = byte(int8(offset15))
	return out, nil
}

// UnmarshalDateTime converts a 17-byte volume descriptor date back into a time.Time. The "not specified" encoding
// yields the zero time.
func UnmarshalDateTime(b [17]byte) (time.Time, error) {
	unspecified := b[16] == 0
	for i := 0; i < 16 && unspecified; i++ {
		if b[i] != '0' {
			unspecified = false
		}
	}
	if unspecified {
		return time.Time{}, nil
	}

	var year, mon, day, hour, min, sec, hundredths int
	if _, err := fmt.Sscanf(string(b[:16]), "%4d%2d%2d%2d%2d%2d%2d",
		&year, &mon, &day, &hour, &min, &sec, &hundredths); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse volume descriptor date: %w", err)
	}

	offset15 := int8(b[16])
	if offset15 < -48 || offset15 > 52 {
		return time.Time{}, fmt.Errorf("offset %d out of ISO9660 bounds", offset15)
	}
	return time.Date(year, time.Month(mon), day, hour, min, sec, hundredths*10_000_000, zone(int(offset15))), nil
}

// MarshalRecordingDateTime converts a time.Time into the 7-byte directory record date (ECMA-119 9.1.5). Every field
// is a binary value; the year is stored relative to 1900. The zero time encodes as seven zero bytes, "not specified".
func MarshalRecordingDateTime(t time.Time) ([7]byte, error) {
	var b [7]byte
	if t.IsZero() {
		return b, nil
	}

	year, month, day := t.Date()
	hour, minute, second := t.Clock()
	if year < 1900 || year > 2155 {
		return b, fmt.Errorf("year %d out of range for recording date (must be between 1900 and 2155)", year)
	}

	_, offsetSec := t.Zone()
	offset15 := offsetSec / 900
	if offset15 < -48 || offset15 > 52 {
		return b, fmt.Errorf("time zone offset %d (in 15-minute intervals: %d) is out of allowed range", offsetSec, offset15)
	}

	b[0] = byte(year - 1900)
	b[1] = byte(month)
	b[2] = byte(day)
	b[3] = byte(hour)
	b[4] = byte(minute)
	b[5] = byte(second)
	b[6] = byte(int8(offset15))
	return b, nil
}

// UnmarshalRecordingDateTime converts a 7-byte directory record date into a time.Time. All zero bytes yield the zero
// time.
func UnmarshalRecordingDateTime(b [7]byte) time.Time {
	if b == [7]byte{} {
		return time.Time{}
	}
	return time.Date(int(b[0])+1900, time.Month(b[1]), int(b[2]), int(b[3]), int(b[4]), int(b[5]), 0,
		zone(int(int8(b[6]))))
}

func zone(offset15 int) *time.Location {
	if offset15 == 0 {
		return time.UTC
	}
	return time.FixedZone("", offset15*900)
}

// EncodeUTF16LE converts s into UTF-16 little-endian code units written into a zero filled field of maxUnits code
// units. Runes above U+FFFF become surrogate pairs. It fails when the string does not fit.
func EncodeUTF16LE(s string, maxUnits int) ([]byte, error) {
	units := utf16.Encode([]rune(s))
	if len(units) > maxUnits {
		return nil, fmt.Errorf("string %q needs %d UTF-16 code units, field holds %d", s, len(units), maxUnits)
	}
	out := make([]byte, maxUnits*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[2*i:], u)
	}
	return out, nil
}

// DecodeUTF16LE converts a zero padded UTF-16 little-endian field back into a Go string.
func DecodeUTF16LE(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// MarshalGUID returns the on-disk form of a GUID. The first three groups are stored little-endian and the last two
// big-endian, so the byte order differs from the RFC 4122 text form.
func MarshalGUID(id uuid.UUID) [16]byte {
	var b [16]byte
	b[0], b[1], b[2], b[3] = id[3], id[2], id[1], id[0]
	b[4], b[5] = id[5], id[4]
	b[6], b[7] = id[7], id[6]
	copy(b[8:], id[8:])
	return b
}

// UnmarshalGUID is the inverse of MarshalGUID.
func UnmarshalGUID(b []byte) (uuid.UUID, error) {
	var id uuid.UUID
	if len(b) < 16 {
		return id, fmt.Errorf("GUID field too short: %d bytes", len(b))
	}
	id[0], id[1], id[2], id[3] = b[3], b[2], b[1], b[0]
	id[4], id[5] = b[5], b[4]
	id[6], id[7] = b[7], b[6]
	copy(id[8:], b[8:16])
	return id, nil
}
