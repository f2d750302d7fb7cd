package vtex

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/time/rate"
)

// Codec selects the compression applied to a page file payload.
type Codec uint8

// Page file codecs.
const (
	// CodecRaw stores the payload uncompressed.
	CodecRaw Codec = iota

	// CodecLZ4 compresses the payload with LZ4 block compression.
	CodecLZ4

	// CodecZstd compresses the payload with zstd.
	CodecZstd
)

// String returns the codec name.
func (c Codec) String() string {
	switch c {
	case CodecRaw:
		return "raw"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// Page file layout: a 12-byte header, the (possibly compressed)
// payload, and an 8-byte xxhash64 of the stored payload.
//
//	[0:4]   magic "VTPG"
//	[4]     format version (1)
//	[5]     codec byte
//	[6:8]   reserved, zero
//	[8:12]  uint32 LE raw (decoded) payload size
//	[12:n]  stored payload
//	[n:n+8] uint64 LE xxhash64 of stored payload
const (
	pageFileMagic   = "VTPG"
	pageFileVersion = 1
	pageFileHeader  = 12
	pageFileTrailer = 8
)

// Shared zstd coders. EncodeAll/DecodeAll on these are safe for
// concurrent use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// encodePageFile frames data as a page file blob.
func encodePageFile(data []byte, codec Codec) ([]byte, error) {
	var payload []byte
	switch codec {
	case CodecRaw:
		payload = data
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("vtex: lz4 compress: %w", err)
		}
		if n == 0 {
			// Incompressible; fall back to raw storage.
			codec = CodecRaw
			payload = data
		} else {
			payload = buf[:n]
		}
	case CodecZstd:
		payload = zstdEncoder.EncodeAll(data, nil)
	default:
		return nil, fmt.Errorf("%w: codec %d", ErrInvalidConfig, codec)
	}

	blob := make([]byte, pageFileHeader+len(payload)+pageFileTrailer)
	copy(blob, pageFileMagic)
	blob[4] = pageFileVersion
	blob[5] = byte(codec)
	binary.LittleEndian.PutUint32(blob[8:], uint32(len(data)))
	copy(blob[pageFileHeader:], payload)
	binary.LittleEndian.PutUint64(blob[pageFileHeader+len(payload):], xxhash.Sum64(payload))
	return blob, nil
}

// decodePageFile validates and decodes a page file blob.
func decodePageFile(blob []byte) ([]byte, error) {
	if len(blob) < pageFileHeader+pageFileTrailer {
		return nil, fmt.Errorf("%w: %d bytes is below minimum framing", ErrPageCorrupt, len(blob))
	}
	if string(blob[:4]) != pageFileMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrPageCorrupt)
	}
	if blob[4] != pageFileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrPageCorrupt, blob[4])
	}

	codec := Codec(blob[5])
	rawSize := binary.LittleEndian.Uint32(blob[8:])
	payload := blob[pageFileHeader : len(blob)-pageFileTrailer]

	want := binary.LittleEndian.Uint64(blob[len(blob)-pageFileTrailer:])
	if got := xxhash.Sum64(payload); got != want {
		return nil, fmt.Errorf("%w: checksum mismatch (got %x, want %x)", ErrPageCorrupt, got, want)
	}

	switch codec {
	case CodecRaw:
		if uint32(len(payload)) != rawSize {
			return nil, fmt.Errorf("%w: raw payload is %d bytes, header says %d",
				ErrPageCorrupt, len(payload), rawSize)
		}
		out := make([]byte, rawSize)
		copy(out, payload)
		return out, nil
	case CodecLZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrPageCorrupt, err)
		}
		if uint32(n) != rawSize {
			return nil, fmt.Errorf("%w: lz4 decoded %d bytes, header says %d", ErrPageCorrupt, n, rawSize)
		}
		return out, nil
	case CodecZstd:
		out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrPageCorrupt, err)
		}
		if uint32(len(out)) != rawSize {
			return nil, fmt.Errorf("%w: zstd decoded %d bytes, header says %d", ErrPageCorrupt, len(out), rawSize)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %d", ErrPageCorrupt, codec)
	}
}

// WritePageFile frames data with the page file codec and writes it to
// path, creating parent directories as needed. The bake tool uses this
// to produce tile sets that FileProvider reads back.
func WritePageFile(path string, data []byte, codec Codec) error {
	blob, err := encodePageFile(data, codec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("vtex: create page dir: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("vtex: write page file: %w", err)
	}
	return nil
}

// FileProviderOption configures a FileProvider.
type FileProviderOption func(*FileProvider)

// WithReadLimit throttles disk reads to roughly bytesPerSec, smoothing
// IO spikes when many pages stream in at once. burst is the largest
// single read permitted without waiting; it is raised to the page file
// size ceiling if set too small.
func WithReadLimit(bytesPerSec float64, burst int) FileProviderOption {
	return func(p *FileProvider) {
		p.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), burst)
	}
}

// FileProvider loads pages from an on-disk tile set produced by
// WritePageFile (see cmd/vtexbake).
//
// A page resolves to the deterministic path
//
//	base/vt{index}/mip{mip}/page_{x}_{y}.bin
//
// where index is the path index given at construction, independent of
// the engine's texture handle. A missing or corrupt file yields an
// error return from LoadPage, never a panic.
//
// FileProvider is safe for concurrent use.
type FileProvider struct {
	base     string
	index    int
	dataSize int
	limiter  *rate.Limiter
}

// NewFileProvider creates a provider rooted at base for path index
// index, producing payloads of dataSize bytes (Config.PageDataSize).
func NewFileProvider(base string, index, dataSize int, opts ...FileProviderOption) (*FileProvider, error) {
	if dataSize < 1 {
		return nil, fmt.Errorf("%w: page data size %d", ErrInvalidConfig, dataSize)
	}
	p := &FileProvider{base: base, index: index, dataSize: dataSize}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PagePath returns the on-disk path for a page.
func (p *FileProvider) PagePath(id PageID) string {
	return filepath.Join(p.base,
		fmt.Sprintf("vt%d", p.index),
		fmt.Sprintf("mip%d", id.Mip),
		fmt.Sprintf("page_%d_%d.bin", id.X, id.Y))
}

// LoadPage reads, validates, and decodes one page file.
func (p *FileProvider) LoadPage(id PageID) ([]byte, error) {
	path := p.PagePath(id)

	if p.limiter != nil {
		if err := p.waitQuota(path); err != nil {
			return nil, err
		}
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPageNotFound, path)
		}
		return nil, fmt.Errorf("vtex: read page file: %w", err)
	}

	data, err := decodePageFile(blob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(data) != p.dataSize {
		return nil, fmt.Errorf("%w: %s holds %d bytes, want %d",
			ErrPageSizeMismatch, path, len(data), p.dataSize)
	}
	return data, nil
}

// waitQuota blocks until the rate limiter grants quota for reading the
// file at path.
func (p *FileProvider) waitQuota(path string) error {
	n := p.dataSize
	if info, err := os.Stat(path); err == nil {
		n = int(info.Size())
	}
	if n > p.limiter.Burst() {
		n = p.limiter.Burst()
	}
	return p.limiter.WaitN(context.Background(), n)
}

// PageDataSize returns the fixed payload size in bytes.
func (p *FileProvider) PageDataSize() int { return p.dataSize }

// PageExists reports whether the page file is present on disk.
func (p *FileProvider) PageExists(id PageID) bool {
	_, err := os.Stat(p.PagePath(id))
	return err == nil
}

// Compile-time interface check.
var _ PageProvider = (*FileProvider)(nil)
