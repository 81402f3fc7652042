package ccsds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	segFlags := []SegmentationFlag{SegContinue, SegFirst, SegLast, SegUnsegmented}
	types := []MsgType{Cmd, Tlm}
	buf := make([]byte, HeaderLength)

	for version := uint8(0); version < 8; version++ {
		for _, typ := range types {
			for _, sec := range []bool{true, false} {
				for _, apid := range []uint16{0, 1, 0x400, 0x7FF} {
					for _, seg := range segFlags {
						for _, seq := range []uint16{0, 1, 0x2000, 0x3FFF} {
							for _, size := range []int{SizeOffset, 32, MaxTotalLength} {
								h := Header{Version: version, Type: typ, HasSecondary: sec, ApID: apid, SegFlag: seg, SeqCount: seq}
								h, err := SetSize(h, size)
								require.NoError(t, err)

								require.NoError(t, Encode(h, buf))
								got, err := Decode(buf)
								require.NoError(t, err)
								assert.Equal(t, h, got)
							}
						}
					}
				}
			}
		}
	}
}

func TestSetSizeBounds(t *testing.T) {
	var h Header
	_, err := SetSize(h, SizeOffset-1)
	assert.ErrorIs(t, err, ErrBadArgument)

	_, err = SetSize(h, MaxTotalLength+1)
	assert.ErrorIs(t, err, ErrBadArgument)

	h2, err := SetSize(h, SizeOffset)
	require.NoError(t, err)
	assert.Equal(t, SizeOffset, GetSize(h2))

	h3, err := SetSize(h, MaxTotalLength)
	require.NoError(t, err)
	assert.Equal(t, MaxTotalLength, GetSize(h3))
}

func TestSetSizeGetSizeIdentity(t *testing.T) {
	for n := SizeOffset; n <= SizeOffset+300; n++ {
		h, err := SetSize(Header{}, n)
		require.NoError(t, err)
		assert.Equal(t, n, GetSize(h))
	}
}

func TestSetSegmentationFlagInvalidLeavesHeaderUnchanged(t *testing.T) {
	h := Header{SegFlag: SegFirst}
	got, err := SetSegmentationFlag(h, SegmentationFlag(99))
	assert.ErrorIs(t, err, ErrBadArgument)
	assert.Equal(t, h, got, "header must be unchanged on invalid segmentation flag")
}

func TestSetHeaderVersionRejectsOutOfRange(t *testing.T) {
	_, err := SetHeaderVersion(Header{}, 0x8)
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestSetApIDRejectsOutOfRange(t *testing.T) {
	_, err := SetApID(Header{}, 0x800)
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestSetSequenceCountRejectsOutOfRange(t *testing.T) {
	_, err := SetSequenceCount(Header{}, 0x4000)
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	_, err := Decode(make([]byte, HeaderLength-1))
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestSetDefaultPrimary(t *testing.T) {
	h, err := SetDefaultPrimary(1, 0x123)
	require.NoError(t, err)
	assert.True(t, h.HasSecondary)
	assert.Equal(t, uint8(1), h.Version)
	assert.Equal(t, uint16(0x123), h.ApID)
	assert.Equal(t, SegUnsegmented, h.SegFlag)
}
