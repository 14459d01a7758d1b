// Package finger implements the Finger environment. The environment
// is conceptually the same as the finger domain of the DeepMind
// Control Suite, which can be found at
// https://github.com/deepmind/dm_control.
//
// A planar two-link finger, actuated at its proximal and distal
// joints, must manipulate a free-spinning body (the spinner) mounted
// on an unactuated hinge in the same plane. Three tasks exist:
//
//	spin:       rotate the spinner at high velocity in the negative
//	            direction
//	turn_easy:  turn the spinner until its tip rests within a wide
//	            target disc placed at a random bearing around the hinge
//	turn_hard:  as turn_easy, with a narrow target disc
//
// State observations hold the proximal and distal joint angles, the
// planar spinner tip position relative to the spinner frame, the three
// joint angular velocities, and the log-compressed readings of the two
// touch sensors on the fingertip. The turn tasks additionally observe
// the planar target position and the signed distance between the
// spinner tip and the target disc. Rewards of all tasks are sparse,
// either 0 or 1 on each timestep.
//
// Actions are 2-dimensional continuous vectors with each component in
// [-1, 1], interpreted by the engine as the proximal and distal
// actuator controls. Clamping and scaling actions to the actuator
// ranges is the engine's responsibility, not this package's.
//
// Episodes start from a random joint configuration drawn by rejection
// sampling: configurations are redrawn until the model settles without
// any contact, bounded by a fixed number of attempts. Episodes never
// end due to task success or failure, only via the step limit.
//
// The package does not step physics itself. It is written against the
// Engine interface, which a physics backend (such as
// environment/box2d/fingersim) implements. Each Finger instance owns
// an independently seeded random stream and shares no mutable state,
// so many instances may be driven concurrently by an external harness,
// one instance per worker.
package finger

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gofinger/environment"
	ts "github.com/samuelfneumann/gofinger/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Finger implements the Finger environment. It orchestrates episode
// initialization, observation construction, and reward evaluation on
// top of a physics Engine. Finger satisfies the
// environment.Environment interface.
type Finger struct {
	fingerTask

	engine    Engine
	sensors   *sensorView
	frameSkip int
	discount  float64

	maxInitAttempts int
	diagnostics     bool
	initQPos        *mat.VecDense

	src             rand.Source
	currentTimeStep ts.TimeStep
}

// New returns a new Finger environment running the argument task on
// the argument physics engine, along with the first timestep of the
// first episode. The task must have been constructed with NewTask.
func New(e Engine, t environment.Task, frameSkip int, seed uint64,
	discount float64) (environment.Environment, ts.TimeStep, error) {
	if frameSkip <= 0 {
		return nil, ts.TimeStep{}, fmt.Errorf("newFinger: frameSkip " +
			"should be positive")
	}

	task, ok := t.(fingerTask)
	if !ok {
		return nil, ts.TimeStep{}, fmt.Errorf("newFinger: task type %T "+
			"cannot be run by a Finger environment", t)
	}

	sensors, err := newSensorView(e)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newFinger: %v", err)
	}

	f := &Finger{
		fingerTask:      task,
		engine:          e,
		sensors:         sensors,
		frameSkip:       frameSkip,
		discount:        discount,
		maxInitAttempts: DefaultMaxInitAttempts,
		src:             rand.NewSource(seed),
	}

	firstStep, err := f.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newFinger: %v", err)
	}

	return f, firstStep, nil
}

// Reset resets the environment to begin a new episode: the task
// prepares the engine's model parameters, then the joint configuration
// is randomized until a contact-free state is found. After a
// successful Reset the engine reports exactly zero contacts.
func (f *Finger) Reset() (ts.TimeStep, error) {
	if err := f.engine.Reset(); err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	if err := f.fingerTask.initializeEpisode(f.engine, f.src); err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	if err := setContactFreeState(f.engine, f.src,
		f.maxInitAttempts); err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %w", err)
	}

	qpos := f.engine.QPos()
	f.initQPos = mat.NewVecDense(len(qpos), qpos)

	obs, err := f.observe()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	firstStep := ts.New(ts.First, 0, f.discount, obs, 0)
	f.currentTimeStep = firstStep

	return firstStep, nil
}

// Step takes one environmental step given some action, advancing the
// physics by the environment's frame skip and returning the next
// timestep and whether it is the last in the episode
func (f *Finger) Step(action *mat.VecDense) (ts.TimeStep, bool, error) {
	if action.Len() != f.engine.Nu() {
		return ts.TimeStep{}, true, fmt.Errorf("step: invalid action "+
			"dimensions \n\thave(%v) \n\twant(%v)", action.Len(),
			f.engine.Nu())
	}

	if err := f.engine.StepSimulation(action, f.frameSkip); err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: %v", err)
	}

	obs, err := f.observe()
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: %v", err)
	}

	reward := f.GetReward(f.currentTimeStep.Observation, action, obs)

	t := ts.New(ts.Mid, reward, f.discount, obs,
		f.currentTimeStep.Number+1)
	last := f.End(&t)
	f.currentTimeStep = t

	return t, last, nil
}

// CurrentTimeStep returns the current time step
func (f *Finger) CurrentTimeStep() ts.TimeStep {
	return f.currentTimeStep
}

// EnableDiagnostics turns on the environment's diagnostic output,
// which carries no behavioural meaning and exists for verification
// tooling
func (f *Finger) EnableDiagnostics() {
	f.diagnostics = true
}

// SetMaxInitAttempts adjusts the bound on the rejection-sampling loop
// used by subsequent Resets
func (f *Finger) SetMaxInitAttempts(n int) {
	if n <= 0 {
		panic("setMaxInitAttempts: attempt bound should be positive")
	}
	f.maxInitAttempts = n
}

// InitialJointPositions returns the joint configuration accepted by
// the last Reset, or nil when diagnostics are disabled
func (f *Finger) InitialJointPositions() *mat.VecDense {
	if !f.diagnostics {
		return nil
	}
	return f.initQPos
}

// TargetLocation returns the planar location at which the last Reset
// placed the target site, or nil when diagnostics are disabled or the
// task has no target
func (f *Finger) TargetLocation() *mat.VecDense {
	if !f.diagnostics {
		return nil
	}
	turn, ok := f.fingerTask.(*TurnTask)
	if !ok {
		return nil
	}
	return turn.target
}

// observe builds the observation vector for the engine's current state
func (f *Finger) observe() (*mat.VecDense, error) {
	sn, err := f.sensors.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("observe: %v", err)
	}
	return sn.Observation(f.hasTarget()), nil
}

// obsLen returns the length of the environment's observation vectors
func (f *Finger) obsLen() int {
	if f.hasTarget() {
		return obsLenTurn
	}
	return obsLenSpin
}

// ObservationSpec returns the observation specification of the
// environment
func (f *Finger) ObservationSpec() environment.Spec {
	length := f.obsLen()
	shape := mat.NewVecDense(length, nil)

	low := mat.NewVecDense(length, nil)
	high := mat.NewVecDense(length, nil)
	for i := 0; i < length; i++ {
		low.SetVec(i, math.Inf(-1))
		high.SetVec(i, math.Inf(1))
	}

	return environment.NewSpec(shape, environment.Observation, low, high,
		environment.Continuous)
}

// ActionSpec returns the action specification of the environment
func (f *Finger) ActionSpec() environment.Spec {
	nu := f.engine.Nu()
	shape := mat.NewVecDense(nu, nil)

	low := mat.NewVecDense(nu, nil)
	high := mat.NewVecDense(nu, nil)
	for i := 0; i < nu; i++ {
		low.SetVec(i, -1.0)
		high.SetVec(i, 1.0)
	}

	return environment.NewSpec(shape, environment.Action, low, high,
		environment.Continuous)
}

// RewardSpec returns the reward specification of the environment
func (f *Finger) RewardSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	low := mat.NewVecDense(1, []float64{0.0})
	high := mat.NewVecDense(1, []float64{1.0})

	return environment.NewSpec(shape, environment.Reward, low, high,
		environment.Continuous)
}

// DiscountSpec returns the discount specification of the environment
func (f *Finger) DiscountSpec() environment.Spec {
	bounds := mat.NewVecDense(1, []float64{f.discount})

	return environment.NewSpec(mat.NewVecDense(1, nil),
		environment.Discount, bounds, bounds, environment.Continuous)
}
