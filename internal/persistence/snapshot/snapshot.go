// Package snapshot reads and writes the per-epoch grid persistence formats:
// token CSVs (per-byte provenance, no pair pointers) and pairing CSVs
// (pair-partner pointers, no token identity). Paths ending in .zst are
// transparently zstd-compressed.
package snapshot

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// TokensPath returns the canonical token snapshot path for an epoch.
func TokensPath(dir string, epoch int) string {
	return filepath.Join(dir, fmt.Sprintf("tokens_epoch_%04d.csv", epoch))
}

// PairingsPath returns the canonical pairing snapshot path for an epoch.
func PairingsPath(dir string, epoch int) string {
	return filepath.Join(dir, fmt.Sprintf("pairings_epoch_%04d.csv", epoch))
}

// openWriter creates path, layering a zstd encoder when the name asks for
// one.
func openWriter(path string) (io.Writer, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		bw := bufio.NewWriterSize(f, 128*1024)
		closeFn := func() error {
			if err := bw.Flush(); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		}
		return bw, closeFn, nil
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	bw := bufio.NewWriterSize(enc, 128*1024)
	closeFn := func() error {
		if err := bw.Flush(); err != nil {
			_ = enc.Close()
			_ = f.Close()
			return err
		}
		if err := enc.Close(); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
	return bw, closeFn, nil
}

// openReader opens path, layering a zstd decoder when the name asks for
// one.
func openReader(path string) (io.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return bufio.NewReaderSize(f, 128*1024), func() { _ = f.Close() }, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return bufio.NewReaderSize(dec, 128*1024), func() { dec.Close(); _ = f.Close() }, nil
}

// parseCSVLine splits one line on commas outside double quotes. Quotes are
// stripped; there is no escape sequence. The only quoted field that can hold
// a quote byte is the token CSV's trailing char_ascii column (written with
// %q), which ReadTokens does not read.
func parseCSVLine(line string) []string {
	var fields []string
	var field strings.Builder
	inQuotes := false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, field.String())
			field.Reset()
		default:
			field.WriteByte(c)
		}
	}
	fields = append(fields, field.String())
	return fields
}
