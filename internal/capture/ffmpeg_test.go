package capture

import (
	"bufio"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJPEGFramesExtractsConcatenatedFrames(t *testing.T) {
	frame1 := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	frame2 := []byte{0xFF, 0xD8, 0x03, 0xFF, 0xD9}
	stream := append(append([]byte{}, frame1...), frame2...)

	var got [][]byte
	err := readJPEGFrames(context.Background(), bytes.NewReader(stream), func(data []byte) error {
		cp := append([]byte{}, data...)
		got = append(got, cp)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, frame1, got[0])
	assert.Equal(t, frame2, got[1])
}

func TestReadJPEGFramesEndsCleanlyMidFrameAfterFirstFrame(t *testing.T) {
	frame1 := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	truncated := []byte{0xFF, 0xD8, 0x03} // starts a second frame, then stream ends
	stream := append(append([]byte{}, frame1...), truncated...)

	var got int
	err := readJPEGFrames(context.Background(), bytes.NewReader(stream), func(data []byte) error {
		got++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestFindJPEGStartLocatesMarker(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{0x00, 0x00, 0xFF, 0xD8, 0x01}))
	err := findJPEGStart(r)
	require.NoError(t, err)

	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), b)
}

func TestReadUntilJPEGEndCapturesFullFrame(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{0x01, 0x02, 0xFF, 0xD9, 0xAA}))
	data, err := readUntilJPEGEnd(r)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}, data)
}
