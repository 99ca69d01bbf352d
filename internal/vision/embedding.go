package vision

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeEmbedding serialises an embedding as the raw little-endian float32
// byte sequence. This is the canonical storage format for face centroids.
func EncodeEmbedding(e []float32) []byte {
	out := make([]byte, 4*len(e))
	for i, v := range e {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// DecodeEmbedding is the inverse of EncodeEmbedding. The byte length must be
// a multiple of 4.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vision: embedding byte length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// Cosine returns the cosine similarity of a and b in [-1, 1], clamped against
// floating-point drift. Mismatched lengths and zero-norm inputs return -1 so
// they can never win a gallery match.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}
