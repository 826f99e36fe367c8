package osc

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestParsePaddedString(t *testing.T) {
	for _, tt := range []struct {
		buf   []byte // buffer
		want  int    // bytes needed
		want1 string // resulting string
		err   error
	}{
		{[]byte{'t', 'e', 's', 't', 's', 't', 'r', 'i', 'n', 'g', 0, 0}, 12, "teststring", nil},
		{[]byte{'t', 'e', 's', 't', 'e', 'r', 's', 0}, 8, "testers", nil},
		{[]byte{'t', 'e', 's', 't', 's', 0, 0, 0}, 8, "tests", nil},
		{[]byte{'t', 'e', 's', 0, 0, 0, 0, 0}, 4, "tes", nil}, // OSC uses null terminated strings
		{[]byte{'t', 'e', 's', 't'}, 0, "", io.EOF},           // if there is no null byte at the end, it doesn't work.
		{[]byte{'t', 'e', 's', 't', 's', 0}, 0, "", io.ErrUnexpectedEOF},
	} {
		got, got1, err := parsePaddedString(tt.buf)
		if !errors.Is(err, tt.err) {
			t.Errorf("%s: Error reading padded string: %s", tt.want1, err)
		}
		if got1 != tt.want {
			t.Errorf("%s: Bytes needed don't match; got = %d, want = %d", tt.want1, got1, tt.want)
		}
		if got != tt.want1 {
			t.Errorf("%s: Strings don't match; got = %b, want = %b", tt.want1, []byte(got), []byte(tt.want1))
		}
	}
}

func TestWritePaddedString(t *testing.T) {
	bytesBuffer := new(bytes.Buffer)
	testString := "testString"
	expectedNumberOfWrittenBytes := len(testString) + padBytesNeeded(len(testString))

	if n := writePaddedString(testString, bytesBuffer); n != expectedNumberOfWrittenBytes {
		t.Errorf("Expected number of written bytes should be \"%d\" and is \"%d\"", expectedNumberOfWrittenBytes, n)
	}
	if bytesBuffer.Len() != expectedNumberOfWrittenBytes {
		t.Errorf("Buffer holds %d bytes, want %d", bytesBuffer.Len(), expectedNumberOfWrittenBytes)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	for _, blob := range [][]byte{{}, {1}, {1, 2, 3}, {1, 2, 3, 4}, {1, 2, 3, 4, 5}} {
		b := new(bytes.Buffer)
		n := writeBlob(blob, b)
		if n%4 != 0 || n != b.Len() {
			t.Errorf("writeBlob(%v) wrote %d bytes, buffer has %d", blob, n, b.Len())
		}

		got, read, err := parseBlob(b.Bytes())
		if err != nil {
			t.Fatalf("parseBlob(%v): %v", blob, err)
		}
		if read != n {
			t.Errorf("parseBlob(%v) consumed %d, want %d", blob, read, n)
		}
		if !bytes.Equal(got, blob) {
			t.Errorf("parseBlob() = %v, want %v", got, blob)
		}
	}
}

func TestParseBlobInvalid(t *testing.T) {
	for _, raw := range [][]byte{
		{0, 0},
		{0, 0, 0, 8, 1, 2, 3, 4},
		{0xff, 0xff, 0xff, 0xff},
		{0, 0, 0, 1, 9},
	} {
		if _, _, err := parseBlob(raw); err == nil {
			t.Errorf("parseBlob(%v) expected error", raw)
		}
	}
}

func TestPadBytesNeeded(t *testing.T) {
	var n int
	n = padBytesNeeded(4)
	if n != 0 {
		t.Errorf("Number of pad bytes should be 0 and is: %d", n)
	}

	n = padBytesNeeded(3)
	if n != 1 {
		t.Errorf("Number of pad bytes should be 1 and is: %d", n)
	}

	n = padBytesNeeded(1)
	if n != 3 {
		t.Errorf("Number of pad bytes should be 3 and is: %d", n)
	}

	n = padBytesNeeded(0)
	if n != 0 {
		t.Errorf("Number of pad bytes should be 0 and is: %d", n)
	}

	n = padBytesNeeded(63)
	if n != 1 {
		t.Errorf("Number of pad bytes should be 1 and is: %d", n)
	}

	n = padBytesNeeded(10)
	if n != 2 {
		t.Errorf("Number of pad bytes should be 2 and is: %d", n)
	}
}
