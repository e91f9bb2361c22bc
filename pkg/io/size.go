package io

// GetVarSize returns the number of bytes needed to var-encode an integer.
func GetVarSize(value int) int {
	switch {
	case value < 0xFD:
		return 1 // uint8
	case value <= 0xFFFF:
		return 3 // byte + uint16
	case uint64(value) <= 0xFFFFFFFF:
		return 5 // byte + uint32
	default:
		return 9 // byte + uint64
	}
}

// GetVarBytesSize returns the size of a var-length byte slice (or string)
// of the given length including its length prefix.
func GetVarBytesSize(l int) int {
	return GetVarSize(l) + l
}

// counter is an io.Writer that only counts bytes written.
type counter struct {
	n int
}

func (c *counter) Write(p []byte) (int, error) {
	c.n += len(p)
	return len(p), nil
}

// GetSize returns the serialized size of the given item.
func GetSize(s encodable) int {
	c := new(counter)
	w := NewBinWriterFromIO(c)
	s.EncodeBinary(w)
	return c.n
}
