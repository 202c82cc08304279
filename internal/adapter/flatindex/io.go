package flatindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var flatMagic = [4]byte{'F', 'L', 'A', 'T'}

const flatVersion uint32 = 1

// maxElements bounds the allocation made while decoding a header.
const maxElements = 1 << 31

// ErrFormat is returned when decoding data that is not a flat index.
var ErrFormat = errors.New("flatindex: invalid format")

// WriteTo serializes the index to w.
//
// Format:
//
//	[4B magic "FLAT"] [4B version]
//	[4B dim] [8B count]
//	[count × dim × 4B float32 vectors, row-major]
//
// All integers and floats are little-endian.
func (x *Index) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)
	le := binary.LittleEndian

	if _, err := bw.Write(flatMagic[:]); err != nil {
		return cw.n, fmt.Errorf("flatindex: write magic: %w", err)
	}
	header := []any{flatVersion, uint32(x.dim), uint64(x.Len())}
	for _, v := range header {
		if err := binary.Write(bw, le, v); err != nil {
			return cw.n, fmt.Errorf("flatindex: write header: %w", err)
		}
	}
	if len(x.data) > 0 {
		if err := binary.Write(bw, le, x.data); err != nil {
			return cw.n, fmt.Errorf("flatindex: write vectors: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return cw.n, fmt.Errorf("flatindex: flush: %w", err)
	}
	return cw.n, nil
}

// Read decodes an index written by WriteTo.
func Read(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)
	le := binary.LittleEndian

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: read magic: %v", ErrFormat, err)
	}
	if magic != flatMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, magic[:])
	}

	var (
		version uint32
		dim     uint32
		count   uint64
	)
	for _, v := range []any{&version, &dim, &count} {
		if err := binary.Read(br, le, v); err != nil {
			return nil, fmt.Errorf("%w: read header: %v", ErrFormat, err)
		}
	}
	if version != flatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, version)
	}
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero dimension", ErrFormat)
	}
	if count > maxElements/uint64(dim) {
		return nil, fmt.Errorf("%w: %d vectors of dimension %d exceeds limit", ErrFormat, count, dim)
	}

	idx := &Index{dim: int(dim), data: make([]float32, int(count)*int(dim))}
	if len(idx.data) > 0 {
		if err := binary.Read(br, le, idx.data); err != nil {
			return nil, fmt.Errorf("%w: read vectors: %v", ErrFormat, err)
		}
	}
	return idx, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
