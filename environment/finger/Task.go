package finger

import (
	"errors"
	"fmt"
	"math"

	"github.com/samuelfneumann/gofinger/environment"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Task names accepted by NewTask
const (
	SpinTaskName     string = "spin"
	TurnEasyTaskName string = "turn_easy"
	TurnHardTaskName string = "turn_hard"
)

const (
	// Target disc radii of the two turn tasks
	easyTargetRadius float64 = 0.07
	hardTargetRadius float64 = 0.03

	// spinVelocity is the hinge angular velocity the spinner must
	// reach, in the negative rotation direction, for the spin task to
	// pay out
	spinVelocity float64 = 15.0

	// spinHingeDamping is the damping coefficient applied to the
	// hinge joint during spin episodes
	spinHingeDamping float64 = 0.03
)

// ErrUnknownTask is returned when constructing a finger Task from an
// unrecognized task name
var ErrUnknownTask = errors.New("unknown task name")

// fingerTask is implemented by every Task that can be registered with
// a Finger environment
type fingerTask interface {
	environment.Task

	// initializeEpisode prepares the engine's model parameters for a
	// new episode, before the joint configuration is randomized
	initializeEpisode(e Engine, src rand.Source) error

	// hasTarget denotes whether the task places a target for the
	// spinner tip to reach, increasing the observation vector with the
	// target position and the distance to the target
	hasTarget() bool
}

// NewTask returns the finger Task with the argument name, one of
// SpinTaskName, TurnEasyTaskName, or TurnHardTaskName. Episodes of all
// finger Tasks end only when maxEpisodeSteps is reached, never due to
// task success or failure: success is signalled purely through reward.
func NewTask(taskName string, maxEpisodeSteps int) (environment.Task, error) {
	if maxEpisodeSteps <= 0 {
		return nil, fmt.Errorf("newTask: maxEpisodeSteps should be positive")
	}
	stepLimit := environment.NewStepLimit(maxEpisodeSteps)

	switch taskName {
	case SpinTaskName:
		return &SpinTask{StepLimit: stepLimit}, nil

	case TurnEasyTaskName:
		return &TurnTask{StepLimit: stepLimit,
			targetRadius: easyTargetRadius}, nil

	case TurnHardTaskName:
		return &TurnTask{StepLimit: stepLimit,
			targetRadius: hardTargetRadius}, nil

	default:
		return nil, fmt.Errorf("newTask: %w: %q", ErrUnknownTask, taskName)
	}
}

// spinReward is the spin task's reward function: 1.0 when the hinge
// spins at least as fast as the required velocity in the negative
// direction, 0.0 otherwise. The threshold is inclusive.
func spinReward(hingeVelocity float64) float64 {
	if hingeVelocity <= -spinVelocity {
		return 1.0
	}
	return 0.0
}

// turnReward is the turn tasks' reward function: 1.0 when the spinner
// tip is within the target disc, 0.0 otherwise. The boundary counts as
// within.
func turnReward(distToTarget float64) float64 {
	if distToTarget <= 0.0 {
		return 1.0
	}
	return 0.0
}

// SpinTask rewards spinning the free hinge of the finger model's
// spinner in the negative rotation direction at high velocity. It has
// no target: the target-indicator sites are hidden during episodes.
type SpinTask struct {
	environment.StepLimit
}

// GetReward returns the reward for transitioning to nextState
func (s *SpinTask) GetReward(_, _, nextState mat.Vector) float64 {
	if nextState.Len() != obsLenSpin {
		panic(fmt.Sprintf("getReward: spin observations should have "+
			"length %v but have length %v", obsLenSpin, nextState.Len()))
	}
	return spinReward(nextState.AtVec(hingeVelocityIndex))
}

// AtGoal returns whether the argument observation has the spinner
// rotating fast enough to be rewarded
func (s *SpinTask) AtGoal(state mat.Matrix) bool {
	rows, c := state.Dims()
	if c != 1 || rows != obsLenSpin {
		panic("atGoal: argument state should be a spin observation vector")
	}
	return spinReward(state.At(hingeVelocityIndex, 0)) == 1.0
}

// initializeEpisode hides the two target-indicator sites, which have
// no meaning when spinning, and raises the hinge damping so that the
// spinner does not rotate freely forever
func (s *SpinTask) initializeEpisode(e Engine, _ rand.Source) error {
	if err := e.SetSiteAlpha(siteTarget, 0.0); err != nil {
		return fmt.Errorf("initializeEpisode: %v", err)
	}
	if err := e.SetSiteAlpha(siteTip, 0.0); err != nil {
		return fmt.Errorf("initializeEpisode: %v", err)
	}
	if err := e.SetJointDamping(jointHinge, spinHingeDamping); err != nil {
		return fmt.Errorf("initializeEpisode: %v", err)
	}
	return nil
}

func (s *SpinTask) hasTarget() bool { return false }

// TurnTask rewards turning the spinner until its tip rests within a
// target disc placed at a random bearing around the hinge. The easy
// and hard variants differ only in the radius of the target disc.
type TurnTask struct {
	environment.StepLimit
	targetRadius float64

	// target is the planar location at which the target site was
	// placed during the last episode initialization
	target *mat.VecDense
}

// GetReward returns the reward for transitioning to nextState
func (t *TurnTask) GetReward(_, _, nextState mat.Vector) float64 {
	if nextState.Len() != obsLenTurn {
		panic(fmt.Sprintf("getReward: turn observations should have "+
			"length %v but have length %v", obsLenTurn, nextState.Len()))
	}
	return turnReward(nextState.AtVec(distToTargetIndex))
}

// AtGoal returns whether the argument observation has the spinner tip
// within the target disc
func (t *TurnTask) AtGoal(state mat.Matrix) bool {
	rows, c := state.Dims()
	if c != 1 || rows != obsLenTurn {
		panic("atGoal: argument state should be a turn observation vector")
	}
	return turnReward(state.At(distToTargetIndex, 0)) == 1.0
}

// TargetRadius returns the radius of the task's target disc
func (t *TurnTask) TargetRadius() float64 {
	return t.targetRadius
}

// initializeEpisode places the target site at a uniformly random
// bearing around the hinge anchor, at a radius derived from the
// spinner cap geometry, then writes the task's target radius into the
// target site parameters
func (t *TurnTask) initializeEpisode(e Engine, src rand.Source) error {
	bearing := distuv.Uniform{Min: -math.Pi, Max: math.Pi, Src: src}.Rand()

	anchor, err := e.JointAnchor(jointHinge)
	if err != nil {
		return fmt.Errorf("initializeEpisode: %v", err)
	}

	capSize, err := e.GeomSize(geomSpinnerCap)
	if err != nil {
		return fmt.Errorf("initializeEpisode: %v", err)
	}
	radius := mat.Sum(capSize)

	targetX := anchor.AtVec(0) + radius*math.Sin(bearing)
	targetZ := anchor.AtVec(2) + radius*math.Cos(bearing)

	pos, err := e.SitePosition(siteTarget)
	if err != nil {
		return fmt.Errorf("initializeEpisode: %v", err)
	}
	pos.SetVec(0, targetX)
	pos.SetVec(2, targetZ)
	if err := e.SetSitePosition(siteTarget, pos); err != nil {
		return fmt.Errorf("initializeEpisode: %v", err)
	}

	size, err := e.SiteSize(siteTarget)
	if err != nil {
		return fmt.Errorf("initializeEpisode: %v", err)
	}
	size.SetVec(0, t.targetRadius)
	if err := e.SetSiteSize(siteTarget, size); err != nil {
		return fmt.Errorf("initializeEpisode: %v", err)
	}

	t.target = mat.NewVecDense(2, []float64{targetX, targetZ})
	return nil
}

func (t *TurnTask) hasTarget() bool { return true }
