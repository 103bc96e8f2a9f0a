package kinematics

import (
	"math"
	"testing"

	"github.com/matthewSorensen/printipi/pkg/config"
)

func testGeometry() config.DeltaGeometry {
	return config.DeltaGeometry{
		Radius:      111,
		RodLength:   221,
		Height:      467.2,
		BuildRadius: 85,
		StepsPerMM:  50.12,
	}
}

func newTestDelta() *DeltaMap {
	return NewDelta(testGeometry(), 480, config.IdentityMatrix())
}

func TestDeltaRoundTrip(t *testing.T) {
	d := newTestDelta()
	points := [][4]float64{
		{0, 0, 0, 0},
		{10, 20, 5, 1.5},
		{-40, 30, 100, 12},
		{60, -60, 200, -3},
	}
	for _, p := range points {
		pos, err := d.CartesianToMechanical(p[0], p[1], p[2], p[3])
		if err != nil {
			t.Fatalf("unreachable %v: %v", p, err)
		}
		x, y, z, e := d.MechanicalToCartesian(pos)
		// One step of carriage motion bounds the cartesian error.
		tol := 1.0 / testGeometry().StepsPerMM
		if math.Abs(x-p[0]) > tol || math.Abs(y-p[1]) > tol || math.Abs(z-p[2]) > tol {
			t.Errorf("round trip %v -> (%.4f, %.4f, %.4f)", p, x, y, z)
		}
		if math.Abs(e-p[3]) > 1.0/480 {
			t.Errorf("extruder round trip %v -> %.5f", p[3], e)
		}
	}
}

func TestDeltaZOnlyMovesTowersEqually(t *testing.T) {
	d := newTestDelta()
	lo, err := d.CartesianToMechanical(0, 0, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	hi, err := d.CartesianToMechanical(0, 0, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	dA := hi[AxisA] - lo[AxisA]
	dB := hi[AxisB] - lo[AxisB]
	dC := hi[AxisC] - lo[AxisC]
	if dA != dB || dB != dC {
		t.Errorf("tower deltas differ: %d %d %d", dA, dB, dC)
	}
	want := int(math.Round(10 * testGeometry().StepsPerMM))
	if abs(dA-want) > 1 {
		t.Errorf("tower delta %d, want ~%d", dA, want)
	}
}

func TestDeltaUnreachable(t *testing.T) {
	d := newTestDelta()
	cases := [][3]float64{
		{200, 0, 10},  // outside build radius
		{0, 0, -5},    // below bed
		{0, 0, 10000}, // above column
	}
	for _, c := range cases {
		if _, err := d.CartesianToMechanical(c[0], c[1], c[2], 0); err == nil {
			t.Errorf("expected unreachable for %v", c)
		}
	}
}

func TestDeltaHomePosition(t *testing.T) {
	d := newTestDelta()
	home := d.HomePosition()
	want := int(math.Round(467.2 * 50.12))
	for _, axis := range []int{AxisA, AxisB, AxisC} {
		if home[axis] != want {
			t.Errorf("home[%d] = %d, want %d", axis, home[axis], want)
		}
	}
	if home[AxisE] != 0 {
		t.Errorf("home extruder = %d", home[AxisE])
	}

	// The homed effector sits on the tower axis line: x = y = 0.
	x, y, _, _ := d.MechanicalToCartesian(home)
	if math.Abs(x) > 0.1 || math.Abs(y) > 0.1 {
		t.Errorf("homed effector at (%.3f, %.3f), want origin", x, y)
	}
}

func TestCartesianRoundTrip(t *testing.T) {
	c := NewCartesian([3]float64{80, 80, 400}, 480, [3]float64{200, 200, 180}, config.IdentityMatrix())
	pos, err := c.CartesianToMechanical(10, 20, 30, 4)
	if err != nil {
		t.Fatal(err)
	}
	if pos[AxisA] != 800 || pos[AxisB] != 1600 || pos[AxisC] != 12000 || pos[AxisE] != 1920 {
		t.Errorf("pos = %v", pos)
	}
	x, y, z, e := c.MechanicalToCartesian(pos)
	if x != 10 || y != 20 || z != 30 || e != 4 {
		t.Errorf("round trip = (%v, %v, %v, %v)", x, y, z, e)
	}
}

func TestCartesianBounds(t *testing.T) {
	c := NewCartesian([3]float64{80, 80, 400}, 480, [3]float64{200, 200, 180}, config.IdentityMatrix())
	if _, err := c.CartesianToMechanical(-1, 0, 0, 0); err == nil {
		t.Error("negative X accepted")
	}
	if _, err := c.CartesianToMechanical(0, 250, 0, 0); err == nil {
		t.Error("Y beyond axis max accepted")
	}
}

func TestTransformInverse(t *testing.T) {
	// Leveling matrix from a real calibration: a small rotation.
	m := config.BedMatrix{
		Num: [9]int64{
			999975003, 5356, -7070522,
			5356, 999998852, 1515111,
			7070522, -1515111, 999973855,
		},
		Denom: 1000000000,
	}
	tr := NewTransform(m)
	x, y, z := tr.Apply(17.5, -42.0, 3.25)
	bx, by, bz := tr.ApplyInverse(x, y, z)
	if math.Abs(bx-17.5) > 1e-9 || math.Abs(by+42.0) > 1e-9 || math.Abs(bz-3.25) > 1e-9 {
		t.Errorf("inverse round trip = (%v, %v, %v)", bx, by, bz)
	}
}

func TestTransformIdentityPassthrough(t *testing.T) {
	tr := NewTransform(config.IdentityMatrix())
	x, y, z := tr.Apply(1, 2, 3)
	if x != 1 || y != 2 || z != 3 {
		t.Errorf("identity transform changed point: (%v, %v, %v)", x, y, z)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
