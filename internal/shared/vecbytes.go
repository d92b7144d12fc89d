package shared

import (
	"encoding/binary"
	"fmt"
	"math"
)

// VectorElementSize is the number of bytes EncodeVector uses per component.
const VectorElementSize = 4

// EncodeVector packs v as little-endian IEEE 754 float32 values.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, VectorElementSize*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[VectorElementSize*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks bytes written by EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%VectorElementSize != 0 {
		return nil, fmt.Errorf("%w: vector of %d bytes", ErrDecode, len(data))
	}
	v := make([]float32, len(data)/VectorElementSize)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[VectorElementSize*i:]))
	}
	return v, nil
}
