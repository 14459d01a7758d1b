package finger

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sensors declared by the finger model. Offsets into the engine's flat
// sensor vector are resolved by name once at construction so that
// reordering the model's sensor declarations cannot silently corrupt
// observations.
const (
	sensorProximal         string = "proximal"
	sensorDistal           string = "distal"
	sensorProximalVelocity string = "proximal_velocity"
	sensorDistalVelocity   string = "distal_velocity"
	sensorHingeVelocity    string = "hinge_velocity"
	sensorTip              string = "tip"
	sensorTarget           string = "target"
	sensorSpinner          string = "spinner"
	sensorTouchTop         string = "touchtop"
	sensorTouchBottom      string = "touchbottom"
)

// Named model elements used during episode initialization
const (
	siteTarget     string = "target"
	siteTip        string = "tip"
	geomSpinnerCap string = "cap1"
	jointHinge     string = "hinge"
)

// Observation vector layout. Spin observations omit the target
// position and the distance to the target.
const (
	obsLenSpin int = 9
	obsLenTurn int = 12

	hingeVelocityIndex int = 6
	distToTargetIndex  int = 11
)

// sensorView maps the named physical quantities of the finger model
// onto offsets in the engine's raw sensor output
type sensorView struct {
	engine Engine

	proximal         int
	distal           int
	proximalVelocity int
	distalVelocity   int
	hingeVelocity    int
	tip              int
	target           int
	spinner          int
	touchTop         int
	touchBottom      int
}

// newSensorView resolves every named sensor of the finger model
// against the engine, failing if a sensor is missing or has an
// unexpected dimension
func newSensorView(e Engine) (*sensorView, error) {
	s := &sensorView{engine: e}

	for _, bind := range []struct {
		name string
		dim  int
		adr  *int
	}{
		{sensorProximal, 1, &s.proximal},
		{sensorDistal, 1, &s.distal},
		{sensorProximalVelocity, 1, &s.proximalVelocity},
		{sensorDistalVelocity, 1, &s.distalVelocity},
		{sensorHingeVelocity, 1, &s.hingeVelocity},
		{sensorTip, 3, &s.tip},
		{sensorTarget, 3, &s.target},
		{sensorSpinner, 3, &s.spinner},
		{sensorTouchTop, 1, &s.touchTop},
		{sensorTouchBottom, 1, &s.touchBottom},
	} {
		adr, dim, err := e.SensorAddress(bind.name)
		if err != nil {
			return nil, fmt.Errorf("newSensorView: %v", err)
		}
		if dim != bind.dim {
			return nil, fmt.Errorf("newSensorView: sensor %v should have "+
				"dimension %v but has dimension %v", bind.name, bind.dim, dim)
		}
		*bind.adr = adr
	}

	return s, nil
}

// Snapshot captures the currently reported sensor values, together
// with the target site radius, for later reading. This holds all task
// logic to a pure view of the engine: observations and rewards are
// computed from a Snapshot rather than through a live engine handle.
func (s *sensorView) Snapshot() (Snapshot, error) {
	data := s.engine.SensorData()

	var sn Snapshot
	sn.ProximalAngle = data[s.proximal]
	sn.DistalAngle = data[s.distal]
	sn.ProximalVelocity = data[s.proximalVelocity]
	sn.DistalVelocity = data[s.distalVelocity]
	sn.HingeVelocity = data[s.hingeVelocity]
	copy(sn.Tip[:], data[s.tip:s.tip+3])
	copy(sn.Target[:], data[s.target:s.target+3])
	copy(sn.Spinner[:], data[s.spinner:s.spinner+3])
	sn.TouchTop = data[s.touchTop]
	sn.TouchBottom = data[s.touchBottom]

	size, err := s.engine.SiteSize(siteTarget)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %v", err)
	}
	sn.TargetRadius = size.AtVec(0)

	return sn, nil
}

// Snapshot is a copy of the finger model's named sensor readings at a
// single instant. All derived observation quantities are pure
// functions of a Snapshot.
type Snapshot struct {
	ProximalAngle float64
	DistalAngle   float64

	ProximalVelocity float64
	DistalVelocity   float64
	HingeVelocity    float64

	// 3-D positions of the spinner tip, the target site, and the
	// spinner frame origin
	Tip     [3]float64
	Target  [3]float64
	Spinner [3]float64

	TouchTop    float64
	TouchBottom float64

	// Radius of the target site
	TargetRadius float64
}

// TipPosition returns the planar position of the spinner tip relative
// to the spinner frame origin, making the coordinate invariant to
// where the spinner is placed in the world
func (sn Snapshot) TipPosition() (x, z float64) {
	return sn.Tip[0] - sn.Spinner[0], sn.Tip[2] - sn.Spinner[2]
}

// TargetPosition returns the planar position of the target site
// relative to the spinner frame origin
func (sn Snapshot) TargetPosition() (x, z float64) {
	return sn.Target[0] - sn.Spinner[0], sn.Target[2] - sn.Spinner[2]
}

// BoundedPosition returns the position observation: the proximal and
// distal joint angles followed by the planar tip position
func (sn Snapshot) BoundedPosition() *mat.VecDense {
	tipX, tipZ := sn.TipPosition()
	return mat.NewVecDense(4, []float64{
		sn.ProximalAngle,
		sn.DistalAngle,
		tipX,
		tipZ,
	})
}

// Velocity returns the velocity observation: the proximal, distal, and
// hinge joint angular velocities
func (sn Snapshot) Velocity() *mat.VecDense {
	return mat.NewVecDense(3, []float64{
		sn.ProximalVelocity,
		sn.DistalVelocity,
		sn.HingeVelocity,
	})
}

// Touch returns the touch observation: the elementwise log1p of the
// two raw touch sensor readings. The compression keeps large contact
// forces from dominating the observation scale while remaining
// non-negative for non-negative inputs.
func (sn Snapshot) Touch() *mat.VecDense {
	return mat.NewVecDense(2, []float64{
		math.Log1p(sn.TouchTop),
		math.Log1p(sn.TouchBottom),
	})
}

// ToTarget returns the planar vector pointing from the spinner tip to
// the target site
func (sn Snapshot) ToTarget() (x, z float64) {
	targetX, targetZ := sn.TargetPosition()
	tipX, tipZ := sn.TipPosition()
	return targetX - tipX, targetZ - tipZ
}

// DistToTarget returns the signed penetration distance between the
// spinner tip and the target disc: non-positive values mean the tip is
// within the target
func (sn Snapshot) DistToTarget() float64 {
	x, z := sn.ToTarget()
	return math.Hypot(x, z) - sn.TargetRadius
}

// Observation assembles the public observation vector from a Snapshot.
// The layout is [position (4), velocity (3), touch (2)] followed, when
// includeTarget is set, by [target position (2), dist to target (1)].
func (sn Snapshot) Observation(includeTarget bool) *mat.VecDense {
	length := obsLenSpin
	if includeTarget {
		length = obsLenTurn
	}

	obs := make([]float64, 0, length)
	obs = append(obs, sn.BoundedPosition().RawVector().Data...)
	obs = append(obs, sn.Velocity().RawVector().Data...)
	obs = append(obs, sn.Touch().RawVector().Data...)

	if includeTarget {
		targetX, targetZ := sn.TargetPosition()
		obs = append(obs, targetX, targetZ, sn.DistToTarget())
	}

	return mat.NewVecDense(length, obs)
}
