package vision

import (
	"math"
	"testing"
)

func TestEmbeddingRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
	}{
		{"empty", []float32{}},
		{"simple", []float32{1, 2, 3}},
		{"negative and fractional", []float32{-0.5, 0.25, -1e-7, 3.4e38}},
		{"extremes", []float32{math.MaxFloat32, -math.MaxFloat32, math.SmallestNonzeroFloat32}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := EncodeEmbedding(tc.in)
			if len(b) != 4*len(tc.in) {
				t.Fatalf("encoded length = %d, want %d", len(b), 4*len(tc.in))
			}
			got, err := DecodeEmbedding(b)
			if err != nil {
				t.Fatalf("DecodeEmbedding: %v", err)
			}
			if len(got) != len(tc.in) {
				t.Fatalf("decoded length = %d, want %d", len(got), len(tc.in))
			}
			for i := range got {
				// Bit-exact comparison.
				if math.Float32bits(got[i]) != math.Float32bits(tc.in[i]) {
					t.Errorf("index %d: bits %#x != %#x", i, math.Float32bits(got[i]), math.Float32bits(tc.in[i]))
				}
			}
		})
	}
}

func TestDecodeEmbeddingRejectsBadLength(t *testing.T) {
	if _, err := DecodeEmbedding(make([]byte, 7)); err == nil {
		t.Fatal("expected error for byte length not divisible by 4")
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"scaled", []float32{1, 1}, []float32{5, 5}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, -1},
		{"length mismatch", []float32{1}, []float32{1, 2}, -1},
		{"both empty", []float32{}, []float32{}, -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Cosine(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCosineClamped(t *testing.T) {
	// Large parallel vectors can drift past 1.0 in float arithmetic.
	a := make([]float32, 512)
	for i := range a {
		a[i] = 0.1234
	}
	if sim := Cosine(a, a); sim > 1 {
		t.Errorf("Cosine = %v, exceeds 1", sim)
	}
}
