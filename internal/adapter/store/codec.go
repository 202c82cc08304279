package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"vecsearch/internal/domain"
	"vecsearch/internal/port"
)

// Compression selects how artifacts are compressed at rest.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// formatVersion is the metadata artifact version. Increment it when making
// breaking changes to the stored layout.
const formatVersion = 1

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// errTornPair marks an index/metadata pair whose halves come from different
// saves. Such a pair is treated like an absent table.
var errTornPair = errors.New("index and metadata artifacts do not match")

type metaFile struct {
	Version       int             `msgpack:"v"`
	Dimension     int             `msgpack:"dim"`
	Count         int             `msgpack:"n"`
	IndexChecksum uint64          `msgpack:"index_xxh64"`
	Records       []domain.Record `msgpack:"records"`
}

type codec struct {
	factory     port.IndexFactory
	compression Compression
	enc         *zstd.Encoder
	dec         *zstd.Decoder
}

func newCodec(factory port.IndexFactory, compression Compression) (*codec, error) {
	switch compression {
	case "":
		compression = CompressionZstd
	case CompressionNone, CompressionZstd:
	default:
		return nil, fmt.Errorf("%w: unknown compression %q", domain.ErrInvalidInput, compression)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &codec{factory: factory, compression: compression, enc: enc, dec: dec}, nil
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}

func (c *codec) compress(raw []byte) []byte {
	if c.compression == CompressionNone {
		return raw
	}
	return c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
}

// decompress accepts both compressed and plain artifacts, so changing the
// compression setting keeps existing tables readable.
func (c *codec) decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	return c.dec.DecodeAll(data, nil)
}

// encode serializes a table into its index and metadata artifacts.
func (c *codec) encode(index port.SimilarityIndex, records []domain.Record) (indexData, metaData []byte, err error) {
	var buf bytes.Buffer
	if _, err := index.WriteTo(&buf); err != nil {
		return nil, nil, fmt.Errorf("encode index: %w", err)
	}
	indexData = c.compress(buf.Bytes())

	meta := metaFile{
		Version:       formatVersion,
		Dimension:     index.Dim(),
		Count:         len(records),
		IndexChecksum: xxhash.Sum64(indexData),
		Records:       records,
	}
	raw, err := msgpack.Marshal(&meta)
	if err != nil {
		return nil, nil, fmt.Errorf("encode metadata: %w", err)
	}
	return indexData, c.compress(raw), nil
}

// decode rebuilds a table from its artifacts. It returns errTornPair when the
// artifacts are individually valid but were not written together.
func (c *codec) decode(indexData, metaData []byte) (port.SimilarityIndex, []domain.Record, error) {
	rawMeta, err := c.decompress(metaData)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decompress metadata: %v", domain.ErrCorruptArtifact, err)
	}
	var meta metaFile
	dec := msgpack.NewDecoder(bytes.NewReader(rawMeta))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&meta); err != nil {
		return nil, nil, fmt.Errorf("%w: decode metadata: %v", domain.ErrCorruptArtifact, err)
	}
	if meta.Version != formatVersion {
		return nil, nil, fmt.Errorf("%w: unsupported metadata version %d", domain.ErrCorruptArtifact, meta.Version)
	}
	if xxhash.Sum64(indexData) != meta.IndexChecksum {
		return nil, nil, errTornPair
	}

	rawIndex, err := c.decompress(indexData)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decompress index: %v", domain.ErrCorruptArtifact, err)
	}
	index, err := c.factory.Read(bytes.NewReader(rawIndex))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decode index: %v", domain.ErrCorruptArtifact, err)
	}
	if index.Dim() != meta.Dimension || index.Len() != meta.Count || len(meta.Records) != meta.Count {
		return nil, nil, errTornPair
	}
	return index, meta.Records, nil
}
