package fingersim

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNewStartsContactFree(t *testing.T) {
	sim := New()

	if sim.ContactCount() != 0 {
		t.Errorf("default pose should be contact-free, got %v contacts",
			sim.ContactCount())
	}

	for i, angle := range sim.QPos() {
		if angle != 0.0 {
			t.Errorf("joint %v should start at angle 0, got %v", i, angle)
		}
	}
}

func TestSensorAddresses(t *testing.T) {
	sim := New()

	total := 0
	for _, c := range []struct {
		name string
		dim  int
	}{
		{"proximal", 1},
		{"distal", 1},
		{"proximal_velocity", 1},
		{"distal_velocity", 1},
		{"hinge_velocity", 1},
		{"tip", 3},
		{"target", 3},
		{"spinner", 3},
		{"touchtop", 1},
		{"touchbottom", 1},
	} {
		adr, dim, err := sim.SensorAddress(c.name)
		if err != nil {
			t.Fatalf("sensor %v: %v", c.name, err)
		}
		if dim != c.dim {
			t.Errorf("sensor %v: should have dimension %v, got %v",
				c.name, c.dim, dim)
		}
		if adr < 0 || adr+dim > len(sim.SensorData()) {
			t.Errorf("sensor %v: address %v out of range", c.name, adr)
		}
		total += dim
	}

	if total != len(sim.SensorData()) {
		t.Errorf("sensors should cover the data vector: %v of %v entries",
			total, len(sim.SensorData()))
	}

	if _, _, err := sim.SensorAddress("gyro"); err == nil {
		t.Error("unknown sensor names should be rejected")
	}
}

func TestSetJointAngle(t *testing.T) {
	sim := New()

	for i, c := range []struct {
		name  string
		angle float64
	}{
		{"proximal", 0.7},
		{"distal", -0.4},
		{"hinge", 2.5},
	} {
		if err := sim.SetJointAngle(c.name, c.angle); err != nil {
			t.Fatalf("setJointAngle %v: %v", c.name, err)
		}
		if err := sim.Forward(); err != nil {
			t.Fatal(err)
		}

		if got := sim.QPos()[i]; math.Abs(got-c.angle) > 1e-9 {
			t.Errorf("joint %v: angle should read back %v, got %v",
				c.name, c.angle, got)
		}
	}

	// Assigning one joint leaves the others in place
	qpos := sim.QPos()
	if err := sim.SetJointAngle("hinge", 0.0); err != nil {
		t.Fatal(err)
	}
	if got := sim.QPos(); math.Abs(got[0]-qpos[0]) > 1e-9 ||
		math.Abs(got[1]-qpos[1]) > 1e-9 {
		t.Errorf("finger joints moved when assigning the hinge: %v vs %v",
			qpos, got)
	}

	if err := sim.SetJointAngle("elbow", 1.0); err == nil {
		t.Error("unknown joint names should be rejected")
	}
}

func TestJointVelocitiesZeroAfterSetJointAngle(t *testing.T) {
	sim := New()

	// Build up velocity, then teleport a joint
	for i := 0; i < 10; i++ {
		err := sim.StepSimulation(mat.NewVecDense(2,
			[]float64{1.0, 1.0}), 2)
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := sim.SetJointAngle("proximal", 0.5); err != nil {
		t.Fatal(err)
	}
	if err := sim.Forward(); err != nil {
		t.Fatal(err)
	}

	data := sim.SensorData()
	for _, name := range []string{"proximal_velocity", "distal_velocity",
		"hinge_velocity"} {
		adr, _, err := sim.SensorAddress(name)
		if err != nil {
			t.Fatal(err)
		}
		if data[adr] != 0.0 {
			t.Errorf("%v should be zero after assigning joint angles, "+
				"got %v", name, data[adr])
		}
	}
}

func TestStepSimulation(t *testing.T) {
	sim := New()

	if err := sim.StepSimulation(mat.NewVecDense(2,
		[]float64{0.5, -0.5}), 2); err != nil {
		t.Fatal(err)
	}

	for i, value := range sim.SensorData() {
		if math.IsNaN(value) {
			t.Errorf("sensor data index %v is NaN", i)
		}
	}

	// Torque on the proximal joint should move it
	sim2 := New()
	for i := 0; i < 20; i++ {
		err := sim2.StepSimulation(mat.NewVecDense(2,
			[]float64{1.0, 0.0}), 2)
		if err != nil {
			t.Fatal(err)
		}
	}
	if sim2.QPos()[0] == 0.0 {
		t.Error("constant torque should move the proximal joint")
	}
}

func TestStepSimulationInvalidArguments(t *testing.T) {
	sim := New()

	if err := sim.StepSimulation(mat.NewVecDense(3, nil), 2); err == nil {
		t.Error("controls of length 3 should be rejected")
	}
	if err := sim.StepSimulation(mat.NewVecDense(2, nil), 0); err == nil {
		t.Error("zero frames should be rejected")
	}
	if err := sim.StepSimulation(mat.NewVecDense(2, nil), -1); err == nil {
		t.Error("negative frames should be rejected")
	}
}

func TestJointLimits(t *testing.T) {
	sim := New()

	// Saturate the proximal joint against its limit
	for i := 0; i < 500; i++ {
		err := sim.StepSimulation(mat.NewVecDense(2,
			[]float64{1.0, 1.0}), 2)
		if err != nil {
			t.Fatal(err)
		}
	}

	limit := 110.0 * math.Pi / 180.0
	slack := 0.05
	qpos := sim.QPos()
	if qpos[0] > limit+slack || qpos[0] < -limit-slack {
		t.Errorf("proximal angle %v exceeds its limit %v", qpos[0], limit)
	}
}

func TestControlsAreClamped(t *testing.T) {
	// Oversized controls should behave exactly like saturated ones
	sim1 := New()
	sim2 := New()

	for i := 0; i < 10; i++ {
		err := sim1.StepSimulation(mat.NewVecDense(2,
			[]float64{100.0, -100.0}), 2)
		if err != nil {
			t.Fatal(err)
		}
		err = sim2.StepSimulation(mat.NewVecDense(2,
			[]float64{1.0, -1.0}), 2)
		if err != nil {
			t.Fatal(err)
		}
	}

	qpos1, qpos2 := sim1.QPos(), sim2.QPos()
	for i := range qpos1 {
		if qpos1[i] != qpos2[i] {
			t.Errorf("joint %v: oversized controls should saturate: "+
				"%v vs %v", i, qpos1[i], qpos2[i])
		}
	}
}

func TestSites(t *testing.T) {
	sim := New()

	// The target site is free-standing and assignable
	pos := mat.NewVecDense(3, []float64{0.2, 0, 0.5})
	if err := sim.SetSitePosition("target", pos); err != nil {
		t.Fatal(err)
	}
	got, err := sim.SitePosition("target")
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(pos, got) {
		t.Errorf("target position should read back %v, got %v", pos, got)
	}

	adr, _, err := sim.SensorAddress("target")
	if err != nil {
		t.Fatal(err)
	}
	data := sim.SensorData()
	if data[adr] != 0.2 || data[adr+2] != 0.5 {
		t.Error("target sensor should track the target site position")
	}

	// Sites tracking bodies are not assignable
	if err := sim.SetSitePosition("tip", pos); err == nil {
		t.Error("tip site position should not be assignable")
	}

	size := mat.NewVecDense(3, []float64{0.07, 0, 0})
	if err := sim.SetSiteSize("target", size); err != nil {
		t.Fatal(err)
	}
	gotSize, err := sim.SiteSize("target")
	if err != nil {
		t.Fatal(err)
	}
	if gotSize.AtVec(0) != 0.07 {
		t.Errorf("target size should read back 0.07, got %v",
			gotSize.AtVec(0))
	}

	for _, site := range []string{"target", "tip"} {
		if err := sim.SetSiteAlpha(site, 0.0); err != nil {
			t.Fatalf("site %v: %v", site, err)
		}
		alpha, err := sim.SiteAlpha(site)
		if err != nil {
			t.Fatalf("site %v: %v", site, err)
		}
		if alpha != 0.0 {
			t.Errorf("site %v: alpha should read back 0, got %v",
				site, alpha)
		}
	}
}

func TestTipTracksSpinner(t *testing.T) {
	sim := New()

	anchor, err := sim.JointAnchor("hinge")
	if err != nil {
		t.Fatal(err)
	}
	capSize, err := sim.GeomSize("cap1")
	if err != nil {
		t.Fatal(err)
	}

	for _, angle := range []float64{0.0, math.Pi / 2, -math.Pi / 3} {
		if err := sim.SetJointAngle("hinge", angle); err != nil {
			t.Fatal(err)
		}
		if err := sim.Forward(); err != nil {
			t.Fatal(err)
		}

		tip, err := sim.SitePosition("tip")
		if err != nil {
			t.Fatal(err)
		}

		// The tip stays one capsule half-length from the hinge anchor
		dx := tip.AtVec(0) - anchor.AtVec(0)
		dz := tip.AtVec(2) - anchor.AtVec(2)
		if dist := math.Hypot(dx, dz); math.Abs(
			dist-capSize.AtVec(1)) > 1e-9 {
			t.Errorf("angle %v: tip should be %v from the anchor, got %v",
				angle, capSize.AtVec(1), dist)
		}
	}
}

func TestReset(t *testing.T) {
	sim := New()

	if err := sim.SetJointAngle("proximal", 1.0); err != nil {
		t.Fatal(err)
	}
	if err := sim.SetJointDamping("hinge", 0.03); err != nil {
		t.Fatal(err)
	}
	if err := sim.SetSiteAlpha("target", 0.0); err != nil {
		t.Fatal(err)
	}
	if err := sim.SetSiteSize("target", mat.NewVecDense(3,
		[]float64{0.07, 0, 0})); err != nil {
		t.Fatal(err)
	}

	if err := sim.Reset(); err != nil {
		t.Fatal(err)
	}

	for i, angle := range sim.QPos() {
		if angle != 0.0 {
			t.Errorf("joint %v: reset should restore angle 0, got %v",
				i, angle)
		}
	}

	damping, err := sim.JointDamping("hinge")
	if err != nil {
		t.Fatal(err)
	}
	if damping != 0.0 {
		t.Errorf("reset should restore hinge damping 0, got %v", damping)
	}

	alpha, err := sim.SiteAlpha("target")
	if err != nil {
		t.Fatal(err)
	}
	if alpha != 1.0 {
		t.Errorf("reset should restore site alpha 1, got %v", alpha)
	}

	size, err := sim.SiteSize("target")
	if err != nil {
		t.Fatal(err)
	}
	if size.AtVec(0) != 0.03 {
		t.Errorf("reset should restore the default target size, got %v",
			size.AtVec(0))
	}
}
