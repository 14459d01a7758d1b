// Package fingersim implements the physics backend of the Finger
// environment as a planar rigid-body simulation built on Box2D. It
// satisfies the finger.Engine interface.
//
// The model mirrors the finger domain of the DeepMind Control Suite:
// a two-link finger hangs from a fixed anchor and is actuated at its
// proximal and distal hinge joints. A spinner, a capsule mounted on an
// unactuated hinge, sits within the finger's reach. Two touch pads on
// the fingertip report contact impulses. The simulation plane is the
// world x/z plane; out-of-plane (y) components of reported 3-D
// quantities are always zero.
//
// fingersim is not MuJoCo: contact forces, damping, and actuator
// scaling follow Box2D's solver. The model geometry, the named
// sensors, sites, geoms, and joints, and the engine interface
// semantics match what the finger tasks require.
package fingersim

import (
	"fmt"
	"math"

	"github.com/ByteArena/box2d"
	"github.com/samuelfneumann/gofinger/environment/finger"
	"github.com/samuelfneumann/gofinger/utils/floatutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

const (
	// Simulation stepping
	frameTime          float64 = 0.01 // Seconds of simulated time per frame
	velocityIterations int     = 8
	positionIterations int     = 3

	gravity float64 = -9.81

	// Finger geometry. The proximal link hangs from a fixed anchor;
	// the distal link continues from its end and carries the
	// fingertip and the two touch pads.
	proximalAnchorX float64 = 0.0
	proximalAnchorY float64 = 0.6
	proximalLength  float64 = 0.17
	proximalRadius  float64 = 0.03
	distalLength    float64 = 0.16
	distalRadius    float64 = 0.028
	fingertipRadius float64 = 0.03
	touchPadRadius  float64 = 0.012
	touchPadOffset  float64 = 0.025

	// Spinner geometry. The spinner is a capsule rotating about a
	// fixed hinge; its tip site sits at the capsule end.
	hingeAnchorX      float64 = 0.1
	hingeAnchorY      float64 = 0.38
	spinnerHalfLength float64 = 0.13
	spinnerRadius     float64 = 0.02

	// Body and actuation parameters
	linkDensity    float64 = 5.0
	spinnerDensity float64 = 5.0
	linkFriction   float64 = 0.5
	proximalGear   float64 = 2.0
	distalGear     float64 = 1.0

	// Default model parameters, restored on Reset
	defaultHingeDamping float64 = 0.0
	defaultTargetSize   float64 = 0.03
	defaultSiteAlpha    float64 = 1.0
)

// Joint limits of the two actuated finger joints
var (
	proximalRange = r1.Interval{
		Min: -110.0 * math.Pi / 180.0,
		Max: 110.0 * math.Pi / 180.0,
	}
	distalRange = r1.Interval{
		Min: -66.0 * math.Pi / 180.0,
		Max: 66.0 * math.Pi / 180.0,
	}
)

// Flat sensor vector layout. Addresses are served to consumers through
// SensorAddress so that nothing outside this package depends on the
// declaration order.
var sensorLayout = []struct {
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
}

// contactDetector tracks the number of touching contacts in the world
// and accumulates the contact impulses felt by the two touch pads
type contactDetector struct {
	sim *FingerSim
}

func newContactDetector(f *FingerSim) *contactDetector {
	return &contactDetector{f}
}

func (c *contactDetector) BeginContact(contact box2d.B2ContactInterface) {
	c.sim.contacts++
}

func (c *contactDetector) EndContact(contact box2d.B2ContactInterface) {
	c.sim.contacts--
}

func (c *contactDetector) PreSolve(contact box2d.B2ContactInterface,
	oldManifold box2d.B2Manifold) {
}

func (c *contactDetector) PostSolve(contact box2d.B2ContactInterface,
	impulse *box2d.B2ContactImpulse) {
	total := 0.0
	for i := 0; i < impulse.Count; i++ {
		total += impulse.NormalImpulses[i]
	}

	if contact.GetFixtureA() == c.sim.touchTopFix ||
		contact.GetFixtureB() == c.sim.touchTopFix {
		c.sim.touchTopImpulse += total
	}
	if contact.GetFixtureA() == c.sim.touchBottomFix ||
		contact.GetFixtureB() == c.sim.touchBottomFix {
		c.sim.touchBottomImpulse += total
	}
}

// FingerSim is a Box2D-backed implementation of finger.Engine
type FingerSim struct {
	world box2d.B2World

	root     *box2d.B2Body
	proximal *box2d.B2Body
	distal   *box2d.B2Body
	spinner  *box2d.B2Body

	proximalJoint *box2d.B2RevoluteJoint
	distalJoint   *box2d.B2RevoluteJoint
	hingeJoint    *box2d.B2RevoluteJoint

	touchTopFix    *box2d.B2Fixture
	touchBottomFix *box2d.B2Fixture

	contacts           int
	touchTopImpulse    float64
	touchBottomImpulse float64
	touchTop           float64
	touchBottom        float64

	hingeDamping float64
	targetPos    *mat.VecDense
	targetSize   *mat.VecDense
	siteAlpha    map[string]float64

	sensorAdr  map[string][2]int
	sensorData []float64
}

// New returns a new finger simulation in its load-time state
func New() *FingerSim {
	f := &FingerSim{}

	f.sensorAdr = make(map[string][2]int)
	adr := 0
	for _, s := range sensorLayout {
		f.sensorAdr[s.name] = [2]int{adr, s.dim}
		adr += s.dim
	}
	f.sensorData = make([]float64, adr)

	if err := f.Reset(); err != nil {
		panic(fmt.Sprintf("new: %v", err))
	}
	return f
}

// Reset restores the model and data to their load-time state: default
// model parameters, all joint angles zero, and no velocities
func (f *FingerSim) Reset() error {
	f.build()

	f.contacts = 0
	f.touchTopImpulse = 0
	f.touchBottomImpulse = 0
	f.touchTop = 0
	f.touchBottom = 0

	f.hingeDamping = defaultHingeDamping
	f.targetPos = mat.NewVecDense(3, []float64{
		hingeAnchorX,
		0.0,
		hingeAnchorY + spinnerRadius + spinnerHalfLength,
	})
	f.targetSize = mat.NewVecDense(3, []float64{defaultTargetSize, 0, 0})
	f.siteAlpha = map[string]float64{
		"target": defaultSiteAlpha,
		"tip":    defaultSiteAlpha,
	}

	f.placeBodies(0, 0, 0)
	return f.Forward()
}

// build constructs a fresh Box2D world holding the finger and spinner
// bodies, their fixtures, and their joints
func (f *FingerSim) build() {
	f.world = box2d.MakeB2World(box2d.MakeB2Vec2(0.0, gravity))
	f.world.SetContactListener(newContactDetector(f))

	// Root: a fixtureless static body anchoring the finger and the
	// spinner
	rootDef := box2d.NewB2BodyDef()
	rootDef.Type = 0 // Static body
	f.root = f.world.CreateBody(rootDef)

	// Proximal link
	proximalDef := box2d.NewB2BodyDef()
	proximalDef.Type = 2 // Dynamic body
	proximalDef.AllowSleep = false
	f.proximal = f.world.CreateBody(proximalDef)

	proximalShape := box2d.NewB2PolygonShape()
	proximalShape.SetAsBox(proximalRadius, proximalLength/2)

	proximalFix := box2d.MakeB2FixtureDef()
	proximalFix.Shape = proximalShape
	proximalFix.Density = linkDensity
	proximalFix.Friction = linkFriction
	f.proximal.CreateFixtureFromDef(&proximalFix)

	// Distal link with fingertip and touch pads
	distalDef := box2d.NewB2BodyDef()
	distalDef.Type = 2
	distalDef.AllowSleep = false
	f.distal = f.world.CreateBody(distalDef)

	distalShape := box2d.NewB2PolygonShape()
	distalShape.SetAsBox(distalRadius, distalLength/2)

	distalFix := box2d.MakeB2FixtureDef()
	distalFix.Shape = distalShape
	distalFix.Density = linkDensity
	distalFix.Friction = linkFriction
	f.distal.CreateFixtureFromDef(&distalFix)

	tipShape := box2d.NewB2CircleShape()
	tipShape.M_radius = fingertipRadius
	tipShape.M_p = box2d.MakeB2Vec2(0.0, -distalLength/2)

	tipFix := box2d.MakeB2FixtureDef()
	tipFix.Shape = tipShape
	tipFix.Density = linkDensity
	tipFix.Friction = linkFriction
	f.distal.CreateFixtureFromDef(&tipFix)

	for _, pad := range []struct {
		offset float64
		fix    **box2d.B2Fixture
	}{
		{touchPadOffset, &f.touchTopFix},
		{-touchPadOffset, &f.touchBottomFix},
	} {
		padShape := box2d.NewB2CircleShape()
		padShape.M_radius = touchPadRadius
		padShape.M_p = box2d.MakeB2Vec2(pad.offset, -distalLength/2)

		padFix := box2d.MakeB2FixtureDef()
		padFix.Shape = padShape
		padFix.Density = linkDensity
		padFix.Friction = linkFriction
		*pad.fix = f.distal.CreateFixtureFromDef(&padFix)
	}

	// Spinner
	spinnerDef := box2d.NewB2BodyDef()
	spinnerDef.Type = 2
	spinnerDef.AllowSleep = false
	f.spinner = f.world.CreateBody(spinnerDef)

	spinnerShape := box2d.NewB2PolygonShape()
	spinnerShape.SetAsBox(spinnerRadius, spinnerHalfLength)

	spinnerFix := box2d.MakeB2FixtureDef()
	spinnerFix.Shape = spinnerShape
	spinnerFix.Density = spinnerDensity
	spinnerFix.Friction = linkFriction
	f.spinner.CreateFixtureFromDef(&spinnerFix)

	// Proximal joint: finger root to proximal link
	proximalJointDef := box2d.MakeB2RevoluteJointDef()
	proximalJointDef.BodyA = f.root
	proximalJointDef.BodyB = f.proximal
	proximalJointDef.LocalAnchorA = box2d.MakeB2Vec2(proximalAnchorX,
		proximalAnchorY)
	proximalJointDef.LocalAnchorB = box2d.MakeB2Vec2(0.0, proximalLength/2)
	proximalJointDef.EnableLimit = true
	proximalJointDef.LowerAngle = proximalRange.Min
	proximalJointDef.UpperAngle = proximalRange.Max
	f.proximalJoint = f.world.CreateJoint(
		&proximalJointDef).(*box2d.B2RevoluteJoint)

	// Distal joint: proximal link to distal link
	distalJointDef := box2d.MakeB2RevoluteJointDef()
	distalJointDef.BodyA = f.proximal
	distalJointDef.BodyB = f.distal
	distalJointDef.LocalAnchorA = box2d.MakeB2Vec2(0.0, -proximalLength/2)
	distalJointDef.LocalAnchorB = box2d.MakeB2Vec2(0.0, distalLength/2)
	distalJointDef.EnableLimit = true
	distalJointDef.LowerAngle = distalRange.Min
	distalJointDef.UpperAngle = distalRange.Max
	f.distalJoint = f.world.CreateJoint(
		&distalJointDef).(*box2d.B2RevoluteJoint)

	// Hinge joint: root to spinner, free to rotate
	hingeJointDef := box2d.MakeB2RevoluteJointDef()
	hingeJointDef.BodyA = f.root
	hingeJointDef.BodyB = f.spinner
	hingeJointDef.LocalAnchorA = box2d.MakeB2Vec2(hingeAnchorX, hingeAnchorY)
	hingeJointDef.LocalAnchorB = box2d.MakeB2Vec2(0.0, 0.0)
	f.hingeJoint = f.world.CreateJoint(
		&hingeJointDef).(*box2d.B2RevoluteJoint)
}

// placeBodies assigns body transforms consistent with the argument
// joint angles and zeroes all velocities. An angle of zero points a
// link straight down.
func (f *FingerSim) placeBodies(thetaP, thetaD, thetaH float64) {
	// Proximal link centre
	pX := proximalAnchorX + (proximalLength/2)*math.Sin(thetaP)
	pY := proximalAnchorY - (proximalLength/2)*math.Cos(thetaP)
	f.proximal.SetTransform(box2d.MakeB2Vec2(pX, pY), thetaP)

	// Distal link hangs from the proximal link's end
	elbowX := proximalAnchorX + proximalLength*math.Sin(thetaP)
	elbowY := proximalAnchorY - proximalLength*math.Cos(thetaP)
	dAngle := thetaP + thetaD
	dX := elbowX + (distalLength/2)*math.Sin(dAngle)
	dY := elbowY - (distalLength/2)*math.Cos(dAngle)
	f.distal.SetTransform(box2d.MakeB2Vec2(dX, dY), dAngle)

	// Spinner rotates in place about its hinge
	f.spinner.SetTransform(box2d.MakeB2Vec2(hingeAnchorX, hingeAnchorY),
		thetaH)

	for _, body := range []*box2d.B2Body{f.proximal, f.distal, f.spinner} {
		body.SetLinearVelocity(box2d.MakeB2Vec2(0.0, 0.0))
		body.SetAngularVelocity(0.0)
	}
}

// Forward refreshes contacts and sensor readings for the current
// state without advancing simulated time
func (f *FingerSim) Forward() error {
	f.touchTopImpulse = 0
	f.touchBottomImpulse = 0

	// A zero-length world step recollides fixtures without solving
	f.world.Step(0.0, velocityIterations, positionIterations)

	f.touchTop = 0
	f.touchBottom = 0
	f.updateSensors()
	return nil
}

// StepSimulation applies the control vector and advances the
// simulation by nFrames frames. Controls are clamped to [-1, 1] and
// scaled by the actuator gears before being applied as joint torques.
func (f *FingerSim) StepSimulation(ctrl *mat.VecDense, nFrames int) error {
	if ctrl.Len() != f.Nu() {
		return fmt.Errorf("stepSimulation: invalid control dimensions "+
			"\n\thave(%v) \n\twant(%v)", ctrl.Len(), f.Nu())
	}
	if nFrames <= 0 {
		return fmt.Errorf("stepSimulation: nFrames should be positive")
	}

	proximalTorque := proximalGear * floatutils.Clip(ctrl.AtVec(0), -1.0, 1.0)
	distalTorque := distalGear * floatutils.Clip(ctrl.AtVec(1), -1.0, 1.0)

	f.touchTopImpulse = 0
	f.touchBottomImpulse = 0

	for i := 0; i < nFrames; i++ {
		f.proximal.ApplyTorque(proximalTorque, true)
		f.distal.ApplyTorque(distalTorque, true)
		f.spinner.ApplyTorque(
			-f.hingeDamping*f.spinner.GetAngularVelocity(), true)

		f.world.Step(frameTime, velocityIterations, positionIterations)
	}

	// Touch readings approximate contact force as the average
	// impulse per unit time over the frames just simulated
	elapsed := frameTime * float64(nFrames)
	f.touchTop = f.touchTopImpulse / elapsed
	f.touchBottom = f.touchBottomImpulse / elapsed

	f.updateSensors()
	return nil
}

// ContactCount returns the number of touching contacts in the world
func (f *FingerSim) ContactCount() int {
	return f.contacts
}

// Nu returns the dimension of the control vector
func (f *FingerSim) Nu() int {
	return 2
}

// Joints describes the three joints of the finger model
func (f *FingerSim) Joints() []finger.Joint {
	return []finger.Joint{
		{Name: "proximal", Type: finger.Hinge, Limited: true,
			Range: proximalRange},
		{Name: "distal", Type: finger.Hinge, Limited: true,
			Range: distalRange},
		{Name: "hinge", Type: finger.Hinge, Limited: false},
	}
}

// SetJointAngle assigns a joint position directly, leaving the other
// joints where they are and zeroing all velocities
func (f *FingerSim) SetJointAngle(name string, radians float64) error {
	thetaP := f.proximalJoint.GetJointAngle()
	thetaD := f.distalJoint.GetJointAngle()
	thetaH := f.hingeJoint.GetJointAngle()

	switch name {
	case "proximal":
		thetaP = radians
	case "distal":
		thetaD = radians
	case "hinge":
		thetaH = radians
	default:
		return fmt.Errorf("setJointAngle: no such joint %q", name)
	}

	f.placeBodies(thetaP, thetaD, thetaH)
	return nil
}

// JointDamping returns the damping coefficient of a joint. Only the
// hinge joint carries adjustable damping in this model.
func (f *FingerSim) JointDamping(name string) (float64, error) {
	if name != "hinge" {
		return 0, fmt.Errorf("jointDamping: joint %q has no adjustable "+
			"damping", name)
	}
	return f.hingeDamping, nil
}

// SetJointDamping adjusts the damping coefficient of a joint
func (f *FingerSim) SetJointDamping(name string, damping float64) error {
	if name != "hinge" {
		return fmt.Errorf("setJointDamping: joint %q has no adjustable "+
			"damping", name)
	}
	f.hingeDamping = damping
	return nil
}

// JointAnchor returns the world (x, y, z) anchor point of a joint
func (f *FingerSim) JointAnchor(name string) (*mat.VecDense, error) {
	switch name {
	case "proximal":
		return mat.NewVecDense(3, []float64{proximalAnchorX, 0,
			proximalAnchorY}), nil

	case "distal":
		elbow := f.proximal.GetWorldPoint(
			box2d.MakeB2Vec2(0.0, -proximalLength/2))
		return mat.NewVecDense(3, []float64{elbow.X, 0, elbow.Y}), nil

	case "hinge":
		return mat.NewVecDense(3, []float64{hingeAnchorX, 0,
			hingeAnchorY}), nil

	default:
		return nil, fmt.Errorf("jointAnchor: no such joint %q", name)
	}
}

// SensorAddress resolves a named sensor to its offset and dimension in
// the flat sensor vector
func (f *FingerSim) SensorAddress(name string) (int, int, error) {
	adr, ok := f.sensorAdr[name]
	if !ok {
		return 0, 0, fmt.Errorf("sensorAddress: no such sensor %q", name)
	}
	return adr[0], adr[1], nil
}

// SensorData returns a copy of the flat sensor output for the current
// state
func (f *FingerSim) SensorData() []float64 {
	data := make([]float64, len(f.sensorData))
	copy(data, f.sensorData)
	return data
}

// updateSensors recomputes the flat sensor vector from the world state
func (f *FingerSim) updateSensors() {
	tip := f.spinner.GetWorldPoint(box2d.MakeB2Vec2(0.0, spinnerHalfLength))

	f.writeSensor("proximal", f.proximalJoint.GetJointAngle())
	f.writeSensor("distal", f.distalJoint.GetJointAngle())
	f.writeSensor("proximal_velocity", f.proximalJoint.GetJointSpeed())
	f.writeSensor("distal_velocity", f.distalJoint.GetJointSpeed())
	f.writeSensor("hinge_velocity", f.hingeJoint.GetJointSpeed())
	f.writeSensor("tip", tip.X, 0, tip.Y)
	f.writeSensor("target", f.targetPos.AtVec(0), f.targetPos.AtVec(1),
		f.targetPos.AtVec(2))
	f.writeSensor("spinner", hingeAnchorX, 0, hingeAnchorY)
	f.writeSensor("touchtop", f.touchTop)
	f.writeSensor("touchbottom", f.touchBottom)
}

func (f *FingerSim) writeSensor(name string, values ...float64) {
	adr := f.sensorAdr[name]
	if len(values) != adr[1] {
		panic(fmt.Sprintf("writeSensor: sensor %v expects %v values "+
			"but got %v", name, adr[1], len(values)))
	}
	copy(f.sensorData[adr[0]:adr[0]+adr[1]], values)
}

// SitePosition returns the world (x, y, z) position of a named site
func (f *FingerSim) SitePosition(name string) (*mat.VecDense, error) {
	switch name {
	case "target":
		return mat.VecDenseCopyOf(f.targetPos), nil

	case "tip":
		tip := f.spinner.GetWorldPoint(
			box2d.MakeB2Vec2(0.0, spinnerHalfLength))
		return mat.NewVecDense(3, []float64{tip.X, 0, tip.Y}), nil

	case "spinner":
		return mat.NewVecDense(3, []float64{hingeAnchorX, 0,
			hingeAnchorY}), nil

	default:
		return nil, fmt.Errorf("sitePosition: no such site %q", name)
	}
}

// SetSitePosition overwrites the position of a named site. Only the
// target site is free-standing; the others track bodies.
func (f *FingerSim) SetSitePosition(name string, pos *mat.VecDense) error {
	if name != "target" {
		return fmt.Errorf("setSitePosition: position of site %q is not "+
			"assignable", name)
	}
	if pos.Len() != 3 {
		return fmt.Errorf("setSitePosition: site positions should have "+
			"length 3 but got length %v", pos.Len())
	}
	f.targetPos = mat.VecDenseCopyOf(pos)
	f.updateSensors()
	return nil
}

// SiteSize returns the size parameters of a named site
func (f *FingerSim) SiteSize(name string) (*mat.VecDense, error) {
	if name != "target" {
		return nil, fmt.Errorf("siteSize: site %q has no size "+
			"parameters", name)
	}
	return mat.VecDenseCopyOf(f.targetSize), nil
}

// SetSiteSize overwrites the size parameters of a named site
func (f *FingerSim) SetSiteSize(name string, size *mat.VecDense) error {
	if name != "target" {
		return fmt.Errorf("setSiteSize: size of site %q is not "+
			"assignable", name)
	}
	if size.Len() != 3 {
		return fmt.Errorf("setSiteSize: site sizes should have length 3 "+
			"but got length %v", size.Len())
	}
	f.targetSize = mat.VecDenseCopyOf(size)
	return nil
}

// SiteAlpha returns the visual transparency of a named site
func (f *FingerSim) SiteAlpha(name string) (float64, error) {
	alpha, ok := f.siteAlpha[name]
	if !ok {
		return 0, fmt.Errorf("siteAlpha: site %q has no visual "+
			"geometry", name)
	}
	return alpha, nil
}

// SetSiteAlpha overwrites the visual transparency of a named site
func (f *FingerSim) SetSiteAlpha(name string, alpha float64) error {
	if _, ok := f.siteAlpha[name]; !ok {
		return fmt.Errorf("setSiteAlpha: site %q has no visual "+
			"geometry", name)
	}
	f.siteAlpha[name] = alpha
	return nil
}

// GeomSize returns the size parameters of a named geom
func (f *FingerSim) GeomSize(name string) (*mat.VecDense, error) {
	switch name {
	case "cap1":
		return mat.NewVecDense(3, []float64{spinnerRadius,
			spinnerHalfLength, 0}), nil

	case "proximal":
		return mat.NewVecDense(3, []float64{proximalRadius,
			proximalLength / 2, 0}), nil

	case "distal":
		return mat.NewVecDense(3, []float64{distalRadius,
			distalLength / 2, 0}), nil

	default:
		return nil, fmt.Errorf("geomSize: no such geom %q", name)
	}
}

// QPos returns a copy of the generalized joint positions
// [proximal, distal, hinge]
func (f *FingerSim) QPos() []float64 {
	return []float64{
		f.proximalJoint.GetJointAngle(),
		f.distalJoint.GetJointAngle(),
		f.hingeJoint.GetJointAngle(),
	}
}
