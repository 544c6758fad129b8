package speech

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// compressionMethod payload 压缩方式
type compressionMethod uint8

const (
	noCompression   compressionMethod = 0b0000
	gzipCompression compressionMethod = 0b0001
)

func compress(data []byte, method compressionMethod) ([]byte, error) {
	switch method {
	case noCompression:
		return data, nil
	case gzipCompression:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, fmt.Errorf("gzip write failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close failed: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}

func decompress(data []byte, method compressionMethod) ([]byte, error) {
	switch method {
	case noCompression:
		return data, nil
	case gzipCompression:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader creation failed: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("gzip read failed: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}
