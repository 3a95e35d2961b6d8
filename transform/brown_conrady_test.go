package transform

import (
	"testing"

	"go.viam.com/test"
)

func TestNewBrownConrady(t *testing.T) {
	_, err := NewBrownConrady([]float64{1, 2, 3, 4, 5, 6})
	test.That(t, err, test.ShouldNotBeNil)

	bc, err := NewBrownConrady(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.Parameters(), test.ShouldResemble, []float64{0, 0, 0, 0, 0})

	bc, err = NewBrownConrady([]float64{0.1, -0.2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.Parameters(), test.ShouldResemble, []float64{0.1, -0.2, 0, 0, 0})
	test.That(t, bc.CheckValid(), test.ShouldBeNil)

	var nilBC *BrownConrady
	test.That(t, nilBC.CheckValid(), test.ShouldNotBeNil)
	test.That(t, nilBC.Parameters(), test.ShouldResemble, []float64{})
}

func TestBrownConradyNilIdentity(t *testing.T) {
	var bc *BrownConrady
	x, y := bc.Transform(0.25, -0.5)
	test.That(t, x, test.ShouldEqual, 0.25)
	test.That(t, y, test.ShouldEqual, -0.5)
	x, y = bc.Undistort(0.25, -0.5)
	test.That(t, x, test.ShouldEqual, 0.25)
	test.That(t, y, test.ShouldEqual, -0.5)
}

func TestBrownConradyRoundTrip(t *testing.T) {
	bc := &BrownConrady{
		RadialK1:     0.11297234,
		RadialK2:     -0.21375332,
		TangentialP1: -0.01584774,
		TangentialP2: -0.00302002,
		RadialK3:     0.19969297,
	}

	// normalized coordinates well within the image
	pts := [][2]float64{{0, 0}, {0.1, 0.1}, {-0.3, 0.2}, {0.25, -0.25}, {0.4, 0.4}}
	for _, pt := range pts {
		xd, yd := bc.Transform(pt[0], pt[1])
		xu, yu := bc.Undistort(xd, yd)
		test.That(t, xu, test.ShouldAlmostEqual, pt[0], 1e-6)
		test.That(t, yu, test.ShouldAlmostEqual, pt[1], 1e-6)
	}
}

func TestBrownConradyCenterFixedPoint(t *testing.T) {
	bc := &BrownConrady{RadialK1: 0.2, RadialK2: -0.05}
	x, y := bc.Transform(0, 0)
	test.That(t, x, test.ShouldEqual, 0.)
	test.That(t, y, test.ShouldEqual, 0.)
}
