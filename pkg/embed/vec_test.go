package embed

import (
	"math"
	"testing"
)

func TestCosine_IdenticalVectors(t *testing.T) {
	v := []float32{0.5, 0.5, 0.5, 0.5}
	if cos := Cosine(v, v); math.Abs(cos-1) > 1e-6 {
		t.Fatalf("expected cosine 1, got %f", cos)
	}
}

func TestCosine_OrthogonalVectors(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if cos := Cosine(a, b); math.Abs(cos) > 1e-6 {
		t.Fatalf("expected cosine 0, got %f", cos)
	}
}

func TestCosine_ZeroVector(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	if cos := Cosine(a, b); cos != 0 {
		t.Fatalf("expected cosine 0 for zero vector, got %f", cos)
	}
}

func TestNormalize_UnitNorm(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if n := Norm(v); math.Abs(n-1) > 1e-6 {
		t.Fatalf("expected unit norm, got %f", n)
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Fatalf("unexpected normalized vector %v", v)
	}
}

func TestDistance_Symmetry(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	if d1, d2 := Distance(a, b), Distance(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", d1, d2)
	}
}
