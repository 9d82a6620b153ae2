package database

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeEmbedding packs a float32 vector into a little-endian BLOB for
// storage in the embedding/centroid_embedding columns.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding unpacks a little-endian BLOB produced by
// EncodeEmbedding back into a float32 vector.
func DecodeEmbedding(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(buf))
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(buf[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
