package finger

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultMaxInitAttempts is the number of random joint configurations
// tried during a reset before giving up on finding a contact-free
// starting state.
const DefaultMaxInitAttempts int = 1000

// ErrInitExhausted is returned from Reset when no contact-free joint
// configuration could be found within the attempt bound. An episode
// cannot start after this error.
var ErrInitExhausted = errors.New("could not find a contact-free " +
	"joint configuration")

// JointType enumerates the kinds of joints a physics Engine may expose
type JointType int

const (
	Hinge JointType = iota
	Slide
	Ball
	Free
)

// Joint describes a single joint of the physics model
type Joint struct {
	Name string
	Type JointType

	// Limited denotes whether the joint's position is restricted to
	// Range. Range is meaningless when Limited is false.
	Limited bool
	Range   r1.Interval
}

// Engine is the boundary to the rigid-body physics engine that backs a
// Finger environment. The environment never steps physics itself; it
// reads named quantities from the engine, overwrites model parameters
// during episode initialization, and asks the engine to advance
// simulated time.
//
// All 3-D quantities use a right-handed frame in which the simulation
// plane is spanned by the x (horizontal) and z (vertical) axes.
// Engines clamp and scale controls to their actuator ranges; callers
// pass actions through unmodified.
type Engine interface {
	// Reset restores the model and data to their load-time state
	Reset() error

	// Forward recomputes derived quantities (kinematics, contacts)
	// after state was assigned directly, without advancing time
	Forward() error

	// StepSimulation applies the control vector and advances the
	// simulation by nFrames frames
	StepSimulation(ctrl *mat.VecDense, nFrames int) error

	// ContactCount returns the number of active contacts
	ContactCount() int

	// Nu returns the dimension of the control vector
	Nu() int

	// Joints describes every joint of the model
	Joints() []Joint

	// SetJointAngle assigns a joint position directly. Derived
	// quantities are stale until Forward is called.
	SetJointAngle(name string, radians float64) error

	// JointDamping and SetJointDamping access a joint's damping
	// coefficient
	JointDamping(name string) (float64, error)
	SetJointDamping(name string, damping float64) error

	// JointAnchor returns the world (x, y, z) anchor point of a joint
	JointAnchor(name string) (*mat.VecDense, error)

	// SensorAddress resolves a named sensor to its offset and
	// dimension in the flat sensor data vector
	SensorAddress(name string) (adr, dim int, err error)

	// SensorData returns the engine's flat sensor output for the
	// current state
	SensorData() []float64

	// Site parameter access. Site positions and sizes are world
	// (x, y, z) triples; alpha is the transparency of the site's
	// visual geometry.
	SitePosition(name string) (*mat.VecDense, error)
	SetSitePosition(name string, pos *mat.VecDense) error
	SiteSize(name string) (*mat.VecDense, error)
	SetSiteSize(name string, size *mat.VecDense) error
	SiteAlpha(name string) (float64, error)
	SetSiteAlpha(name string, alpha float64) error

	// GeomSize returns the size parameters of a named geom
	GeomSize(name string) (*mat.VecDense, error)

	// QPos returns a copy of the generalized joint positions
	QPos() []float64
}

// randomizeJoints assigns a uniform random angle to every limited
// joint (within its range) and every unlimited hinge joint (over
// [-π, π)). Other joints are left untouched.
func randomizeJoints(e Engine, src rand.Source) error {
	for _, joint := range e.Joints() {
		var angle float64
		switch {
		case joint.Limited:
			angle = distuv.Uniform{
				Min: joint.Range.Min,
				Max: joint.Range.Max,
				Src: src,
			}.Rand()

		case joint.Type == Hinge:
			angle = distuv.Uniform{Min: -math.Pi, Max: math.Pi,
				Src: src}.Rand()

		default:
			continue
		}

		if err := e.SetJointAngle(joint.Name, angle); err != nil {
			return fmt.Errorf("randomizeJoints: %v", err)
		}
	}
	return nil
}

// setContactFreeState repeatedly randomizes the engine's joint
// configuration until the settled state has no contacts, trying at
// most maxAttempts configurations. Exceeding the bound returns an
// error wrapping ErrInitExhausted.
func setContactFreeState(e Engine, src rand.Source, maxAttempts int) error {
	for i := 0; i < maxAttempts; i++ {
		if err := randomizeJoints(e, src); err != nil {
			return fmt.Errorf("setContactFreeState: %v", err)
		}
		if err := e.Forward(); err != nil {
			return fmt.Errorf("setContactFreeState: %v", err)
		}
		if e.ContactCount() == 0 {
			return nil
		}
	}
	return fmt.Errorf("setContactFreeState: %w after %v attempts",
		ErrInitExhausted, maxAttempts)
}
