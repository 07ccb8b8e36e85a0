// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/aegis-foundation/aegis/lib/codec"
)

// CompressionTag identifies the compression algorithm used for an
// archive payload. Tags are stored in the archive header (1 byte).
// These values are format constants — changing them breaks archive
// compatibility.
type CompressionTag uint8

const (
	// CompressionNone indicates an uncompressed payload. Used when
	// the payload does not shrink under compression.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 indicates LZ4 block compression. Fast, modest
	// ratio; the choice when archives are re-read frequently.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd indicates zstd at the default level. Best
	// ratio for the JSON-shaped text that dominates session logs;
	// the default for cold archives.
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a compression tag from its string
// representation.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// archiveMagic identifies an Aegis session archive. The trailing
// byte is the format version.
var archiveMagic = [8]byte{'A', 'E', 'G', 'S', 'L', 'O', 'G', 1}

// errIncompressible is returned internally when the compressed
// output is not smaller than the input; the writer falls back to
// CompressionNone.
var errIncompressible = errors.New("data is incompressible")

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("sessionlog: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("sessionlog: zstd decoder initialization failed: " + err.Error())
	}
}

// WriteArchive encodes entries as one deterministic CBOR array,
// compresses the payload with the given algorithm, and writes the
// archive to destination. An incompressible payload is stored
// uncompressed and the header tag records that, so readers never need
// the original request.
func WriteArchive(destination io.Writer, entries []Entry, tag CompressionTag) error {
	payload, err := codec.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding archive entries: %w", err)
	}

	compressed, err := compress(payload, tag)
	if errors.Is(err, errIncompressible) {
		compressed, tag = payload, CompressionNone
	} else if err != nil {
		return err
	}

	header := make([]byte, 0, 17)
	header = append(header, archiveMagic[:]...)
	header = append(header, byte(tag))
	header = binary.BigEndian.AppendUint64(header, uint64(len(payload)))

	if _, err := destination.Write(header); err != nil {
		return fmt.Errorf("writing archive header: %w", err)
	}
	if _, err := destination.Write(compressed); err != nil {
		return fmt.Errorf("writing archive payload: %w", err)
	}
	return nil
}

// ReadArchive reads an archive written by [WriteArchive] and returns
// its entries.
func ReadArchive(source io.Reader) ([]Entry, error) {
	payload, err := readArchivePayload(source)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if err := codec.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("decoding archive entries: %w", err)
	}
	return entries, nil
}

// DiagnoseArchive reads an archive and renders its payload in CBOR
// diagnostic notation (RFC 8949 §8), for inspecting archives without
// decoding them into Go types.
func DiagnoseArchive(source io.Reader) (string, error) {
	payload, err := readArchivePayload(source)
	if err != nil {
		return "", err
	}
	diagnostic, err := codec.Diagnose(payload)
	if err != nil {
		return "", fmt.Errorf("diagnosing archive payload: %w", err)
	}
	return diagnostic, nil
}

// readArchivePayload validates the header and returns the
// decompressed payload bytes.
func readArchivePayload(source io.Reader) ([]byte, error) {
	header := make([]byte, 17)
	if _, err := io.ReadFull(source, header); err != nil {
		return nil, fmt.Errorf("reading archive header: %w", err)
	}
	if !bytes.Equal(header[:8], archiveMagic[:]) {
		return nil, fmt.Errorf("not a session archive (bad magic)")
	}
	tag := CompressionTag(header[8])
	uncompressedSize := binary.BigEndian.Uint64(header[9:])

	compressed, err := io.ReadAll(source)
	if err != nil {
		return nil, fmt.Errorf("reading archive payload: %w", err)
	}
	return decompress(compressed, tag, int(uncompressedSize))
}

// Compact reads the JSONL log at sourcePath, verifies its chain, and
// writes the compacted archive to destinationPath.
func Compact(sourcePath, destinationPath string, tag CompressionTag) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening session log: %w", err)
	}
	defer source.Close()

	entries, err := Verify(source)
	if err != nil {
		return fmt.Errorf("verifying session log: %w", err)
	}

	destination, err := os.Create(destinationPath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	if err := WriteArchive(destination, entries, tag); err != nil {
		destination.Close()
		return err
	}
	return destination.Close()
}

func compress(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil

	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible data.
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return destination[:written], nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func decompress(compressed []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil

	case CompressionLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}
