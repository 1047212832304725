package spatial

import (
	"math"
	"testing"
)

func TestAddSub(t *testing.T) {
	a := Vec3{1, 2, 3}
	b := Vec3{4, -1, 0.5}

	sum := a.Add(b)
	if sum != (Vec3{5, 1, 3.5}) {
		t.Errorf("expected sum (5,1,3.5), got %+v", sum)
	}

	diff := a.Sub(b)
	if diff != (Vec3{-3, 3, 2.5}) {
		t.Errorf("expected diff (-3,3,2.5), got %+v", diff)
	}
}

func TestDotCross(t *testing.T) {
	a := Vec3{1, 0, 0}
	b := Vec3{0, 1, 0}

	if d := a.Dot(b); d != 0 {
		t.Errorf("expected orthogonal dot 0, got %f", d)
	}

	c := a.Cross(b)
	if c != (Vec3{0, 0, 1}) {
		t.Errorf("expected cross (0,0,1), got %+v", c)
	}
}

func TestLengthAndNormalize(t *testing.T) {
	v := Vec3{3, 4, 0}
	if l := v.Length(); math.Abs(float64(l-5)) > 1e-5 {
		t.Errorf("expected length 5, got %f", l)
	}

	n := v.Normalize()
	if math.Abs(float64(n.Length()-1)) > 1e-5 {
		t.Errorf("expected unit length after normalize, got %f", n.Length())
	}
}

func TestScaleDiv(t *testing.T) {
	v := Vec3{1, 2, 3}
	if s := v.Scale(2); s != (Vec3{2, 4, 6}) {
		t.Errorf("expected scaled (2,4,6), got %+v", s)
	}
	if d := v.Scale(2).Div(2); d != v {
		t.Errorf("expected scale/div roundtrip to recover %+v, got %+v", v, d)
	}
}

func TestAt(t *testing.T) {
	v := Vec3{7, 8, 9}
	for i, want := range []float32{7, 8, 9} {
		if got := v.At(i); got != want {
			t.Errorf("At(%d): expected %f, got %f", i, want, got)
		}
	}
}
