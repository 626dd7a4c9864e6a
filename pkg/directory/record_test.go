package directory

import (
	"strings"
	"testing"
	"time"

	"github.com/rstms/hybridiso/pkg/isoerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		record *Record
		length int
	}{
		{"Self", Self(20), 34},
		{"Parent", Parent(20), 34},
		{"Directory", ForDirectory("efi", 21), 36},
		{"File", ForFile("bootx64.efi", 23, 1000), 46},
		{"EmptyFile", ForFile("empty", 30, 0), 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.record.Marshal()
			require.NoError(t, err)
			require.Len(t, data, tt.length)
			assert.Equal(t, byte(tt.length), data[0])
			assert.Zero(t, len(data)%2)

			got := &Record{}
			require.NoError(t, got.Unmarshal(data))
			assert.Equal(t, tt.record.LocationOfExtent, got.LocationOfExtent)
			assert.Equal(t, tt.record.DataLength, got.DataLength)
			assert.Equal(t, tt.record.FileFlags, got.FileFlags)
			assert.Equal(t, tt.record.FileIdentifier, got.FileIdentifier)
			assert.Equal(t, uint16(1), got.VolumeSequenceNumber)
		})
	}
}

func TestRecordIdentifiers(t *testing.T) {
	assert.Equal(t, "\x00", Self(1).FileIdentifier)
	assert.Equal(t, "\x01", Parent(1).FileIdentifier)
	assert.Equal(t, "BOOT", ForDirectory("boot", 1).FileIdentifier)
	assert.Equal(t, "GRUB.CFG;1", ForFile("grub.cfg", 1, 1).FileIdentifier)
	assert.True(t, Self(1).FileFlags.Directory)
	assert.False(t, ForFile("a", 1, 1).FileFlags.Directory)
}

func TestRecordLayout(t *testing.T) {
	data, err := ForFile("a", 0x01020304, 0x0A0B0C0D).Marshal()
	require.NoError(t, err)

	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01, 0x01, 0x02, 0x03, 0x04}, data[2:10])
	assert.Equal(t, []byte{0x0D, 0x0C, 0x0B, 0x0A, 0x0A, 0x0B, 0x0C, 0x0D}, data[10:18])
	assert.Equal(t, make([]byte, 7), data[18:25])
	assert.Equal(t, byte(0), data[25])
	assert.Equal(t, []byte{1, 0, 0, 1}, data[28:32])
	assert.Equal(t, byte(3), data[32])
	assert.Equal(t, "A;1", string(data[33:36]))
}

func TestRecordRecordingTime(t *testing.T) {
	r := ForDirectory("x", 5)
	r.RecordingDateAndTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	data, err := r.Marshal()
	require.NoError(t, err)
	assert.Equal(t, []byte{124, 5, 6, 7, 8, 9, 0}, data[18:25])

	got := &Record{}
	require.NoError(t, got.Unmarshal(data))
	assert.True(t, r.RecordingDateAndTime.Equal(got.RecordingDateAndTime))
}

func TestRecordTooLong(t *testing.T) {
	ok := &Record{FileIdentifier: strings.Repeat("A", 222), VolumeSequenceNumber: 1}
	_, err := ok.Marshal()
	require.ErrorIs(t, err, isoerr.ErrInvalidInput)

	fits := &Record{FileIdentifier: strings.Repeat("A", 221), VolumeSequenceNumber: 1}
	data, err := fits.Marshal()
	require.NoError(t, err)
	assert.Len(t, data, 254)
}

func TestRecordUnmarshalErrors(t *testing.T) {
	t.Run("Short", func(t *testing.T) {
		require.ErrorIs(t, (&Record{}).Unmarshal(make([]byte, 10)), isoerr.ErrInvalidData)
	})

	t.Run("MismatchedByteOrders", func(t *testing.T) {
		data, err := ForFile("a", 7, 7).Marshal()
		require.NoError(t, err)
		data[9] = 0xFF
		require.Error(t, (&Record{}).Unmarshal(data))
	})

	t.Run("ReservedFlags", func(t *testing.T) {
		data, err := ForFile("a", 7, 7).Marshal()
		require.NoError(t, err)
		data[25] = 0x20
		require.ErrorIs(t, (&Record{}).Unmarshal(data), isoerr.ErrInvalidData)
	})
}

func TestFileFlags(t *testing.T) {
	all := FileFlags{Hidden: true, Directory: true, AssociatedFile: true, RecordFormat: true, Protection: true, MultiExtent: true}
	assert.Equal(t, byte(0x9F), all.Marshal())

	got, err := UnmarshalFileFlags(0x9F)
	require.NoError(t, err)
	assert.Equal(t, all, got)
}

func TestMarshalSector(t *testing.T) {
	records := []*Record{Self(20), Parent(20), ForDirectory("EFI", 21), ForFile("README", 22, 5)}
	sector, err := MarshalSector(records)
	require.NoError(t, err)
	require.Len(t, sector, 2048)

	got, err := UnmarshalSector(sector)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "\x00", got[0].FileIdentifier)
	assert.Equal(t, "\x01", got[1].FileIdentifier)
	assert.Equal(t, "EFI", got[2].FileIdentifier)
	assert.Equal(t, "README;1", got[3].FileIdentifier)
}

func TestMarshalSectorOverflow(t *testing.T) {
	records := []*Record{Self(20), Parent(20)}
	for i := 0; i < 20; i++ {
		records = append(records, ForFile(strings.Repeat(string(rune('A'+i)), 100), uint32(30+i), 1))
	}
	_, err := MarshalSector(records)
	require.ErrorIs(t, err, isoerr.ErrInvalidInput)
}
