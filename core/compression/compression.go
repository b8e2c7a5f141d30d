package compression

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/dkovac/depot/core/model"
	"github.com/dkovac/depot/lib/logger"
)

var log, _ = logger.New("compression")

var (
	ErrUnknownAlgorithm = errors.New("unknown compression algorithm")
)

// Algorithm selects the compression codec. Unknown names are rejected
// at parse time; nothing ever falls back to a different algorithm
// silently.
type Algorithm uint8

const (
	// Zstd is the default: good ratio on text-like data at moderate
	// CPU cost.
	Zstd Algorithm = iota
	// LZ4 trades ratio for speed.
	LZ4
	// Gzip keeps the output readable by stock tooling.
	Gzip
)

func (a Algorithm) String() string {
	switch a {
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	case Gzip:
		return "gzip"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "zstd":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	case "gzip":
		return Gzip, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// Compressor compresses and decompresses files behind one contract.
// Same input, algorithm and level always produce decodable output.
type Compressor struct {
	Algorithm Algorithm
	Level     int
}

func NewCompressor(algorithm Algorithm, level int) *Compressor {
	return &Compressor{
		Algorithm: algorithm,
		Level:     level,
	}
}

// Compress runs the configured default algorithm and level.
func (c *Compressor) Compress(inPath, outPath string) *model.CompressionResult {
	return c.CompressWith(inPath, outPath, c.Algorithm, c.Level)
}

// CompressWith compresses inPath to outPath with an explicit algorithm
// and level. Failures come back as an error-tagged result, never a
// panic past this boundary.
func (c *Compressor) CompressWith(inPath, outPath string, algorithm Algorithm, level int) *model.CompressionResult {
	result := &model.CompressionResult{
		Algorithm:  algorithm.String(),
		OutputPath: outPath,
	}

	in, err := os.Open(inPath)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.OriginalSize = info.Size()

	out, err := os.Create(outPath)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	err = encode(out, in, algorithm, level)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(outPath)
		result.Error = err.Error()
		return result
	}

	compressed, err := os.Stat(outPath)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.CompressedSize = compressed.Size()
	if result.CompressedSize > 0 {
		result.Ratio = float64(result.OriginalSize) / float64(result.CompressedSize)
	}

	log.Infow("compress",
		"algorithm", result.Algorithm,
		"originalSize", result.OriginalSize,
		"compressedSize", result.CompressedSize,
	)

	return result
}

// Decompress restores inPath to outPath using the given algorithm.
func (c *Compressor) Decompress(inPath, outPath string, algorithm Algorithm) bool {
	in, err := os.Open(inPath)
	if err != nil {
		return false
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return false
	}

	err = decode(out, in, algorithm)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		log.Errorw("decompress", "algorithm", algorithm.String(), "err", err)
		os.Remove(outPath)
		return false
	}

	return true
}

func encode(dst io.Writer, src io.Reader, algorithm Algorithm, level int) error {
	switch algorithm {
	case Zstd:
		w, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return err
		}
		if _, err := io.Copy(w, src); err != nil {
			w.Close()
			return err
		}
		return w.Close()

	case LZ4:
		w := lz4.NewWriter(dst)
		if err := w.Apply(lz4.CompressionLevelOption(lz4Level(level))); err != nil {
			return err
		}
		if _, err := io.Copy(w, src); err != nil {
			w.Close()
			return err
		}
		return w.Close()

	case Gzip:
		w, err := gzip.NewWriterLevel(dst, gzipLevel(level))
		if err != nil {
			return err
		}
		if _, err := io.Copy(w, src); err != nil {
			w.Close()
			return err
		}
		return w.Close()

	default:
		return fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
}

func decode(dst io.Writer, src io.Reader, algorithm Algorithm) error {
	switch algorithm {
	case Zstd:
		r, err := zstd.NewReader(src)
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = io.Copy(dst, r)
		return err

	case LZ4:
		_, err := io.Copy(dst, lz4.NewReader(src))
		return err

	case Gzip:
		r, err := gzip.NewReader(src)
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = io.Copy(dst, r)
		return err

	default:
		return fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
}

// lz4Level maps the shared 1-9 level scale onto lz4's level set.
func lz4Level(level int) lz4.CompressionLevel {
	levels := []lz4.CompressionLevel{
		lz4.Fast,
		lz4.Level1, lz4.Level2, lz4.Level3,
		lz4.Level4, lz4.Level5, lz4.Level6,
		lz4.Level7, lz4.Level8, lz4.Level9,
	}

	if level < 0 {
		return lz4.Fast
	}
	if level >= len(levels) {
		return lz4.Level9
	}

	return levels[level]
}

func gzipLevel(level int) int {
	if level < gzip.BestSpeed {
		return gzip.DefaultCompression
	}
	if level > gzip.BestCompression {
		return gzip.BestCompression
	}

	return level
}
