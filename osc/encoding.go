package osc

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const (
	bit32Size = 4
	bit64Size = 8

	// MaxPacketSize is the largest payload a single UDP datagram can carry over IPv4.
	MaxPacketSize = 65507
)

var (
	bufPool = sync.Pool{
		New: func() interface{} {
			return bytes.NewBuffer(make([]byte, 0, 512))
		},
	}
	readPool = sync.Pool{
		New: func() interface{} {
			b := make([]byte, MaxPacketSize)
			return &b
		},
	}
)

////
// De/Encoding functions
////

// parseBlob parses an OSC blob from data. It returns a copy of the blob and
// the number of bytes consumed, padding included.
func parseBlob(data []byte) ([]byte, int, error) {
	if len(data) < bit32Size {
		return nil, 0, errors.Wrap(io.ErrUnexpectedEOF, "parseBlob: missing length")
	}

	blobLen := int(binary.BigEndian.Uint32(data[:bit32Size]))
	if blobLen < 0 || blobLen > len(data)-bit32Size {
		return nil, 0, errors.Errorf("parseBlob: invalid blob length %d", blobLen)
	}

	n := bit32Size + blobLen
	n += padBytesNeeded(n)
	if n > len(data) {
		return nil, 0, errors.Wrap(io.ErrUnexpectedEOF, "parseBlob: missing padding")
	}

	blob := make([]byte, blobLen)
	copy(blob, data[bit32Size:])

	return blob, n, nil
}

// writeBlob writes data as an OSC blob into b. If the length of data isn't
// 32-bit aligned, padding bytes will be added.
func writeBlob(data []byte, b *bytes.Buffer) int {
	var size [bit32Size]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(data)))
	b.Write(size[:])
	b.Write(data)

	n := bit32Size + len(data)
	pad := padBytesNeeded(n)
	for i := 0; i < pad; i++ {
		b.WriteByte(0)
	}

	return n + pad
}

// parsePaddedString reads a padded string from the given slice and returns the string and the number of bytes read.
func parsePaddedString(data []byte) (string, int, error) {
	pos := bytes.IndexByte(data, 0)
	if pos == -1 {
		return "", 0, errors.Wrap(io.EOF, "parsePaddedString")
	}

	n := pos + 1
	n += padBytesNeeded(n)
	if n > len(data) {
		return "", 0, errors.Wrap(io.ErrUnexpectedEOF, "parsePaddedString: missing padding")
	}

	return string(data[:pos]), n, nil
}

// writePaddedString writes a string with padding bytes to the buffer.
// Returns the number of written bytes.
func writePaddedString(str string, b *bytes.Buffer) int {
	b.WriteString(str)
	b.WriteByte(0)

	n := len(str) + 1
	pad := padBytesNeeded(n)
	for i := 0; i < pad; i++ {
		b.WriteByte(0)
	}

	return n + pad
}

// checkString returns an error for strings that cannot survive the OSC
// null-terminated encoding.
func checkString(s string) error {
	if strings.IndexByte(s, 0) != -1 {
		return errors.New("string contains a null byte")
	}
	return nil
}

// padBytesNeeded determines how many bytes are needed to fill up to the next 4
// byte length.
func padBytesNeeded(elementLen int) int {
	return (4 - (elementLen % 4)) % 4
}
