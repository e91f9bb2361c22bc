package payload

import (
	"github.com/pierrec/lz4"
)

// Compress compresses bytes using lz4.
func Compress(source []byte) ([]byte, error) {
	dest := make([]byte, lz4.CompressBlockBound(len(source)))
	size, err := lz4.CompressBlock(source, dest, nil)
	if err != nil {
		return nil, err
	}
	return dest[:size], nil
}

// Decompress decompresses bytes using lz4, the result can't be bigger than
// MaxSize.
func Decompress(source []byte) ([]byte, error) {
	maxSize := len(source) * 255
	if maxSize > MaxSize {
		maxSize = MaxSize
	}
	dest := make([]byte, maxSize)
	size, err := lz4.UncompressBlock(source, dest)
	if err != nil {
		return nil, err
	}
	return dest[:size], nil
}
