// Package environment outlines the interfaces and structs needed to implement
// concrete environments
package environment

import (
	"github.com/samuelfneumann/gofinger/timestep"
	"gonum.org/v1/gonum/mat"
)

// Ender determines when and how episodes end
type Ender interface {
	// End takes the current timestep and, if the episode should end
	// at that timestep, modifies its StepType and EndType accordingly,
	// returning whether the episode ended
	End(*timestep.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some
// environment, along with the task-specific episode ending conditions
type Task interface {
	Ender

	// GetReward returns the reward for a (state, action, nextState)
	// transition. States are environment observation vectors.
	GetReward(state, action, nextState mat.Vector) float64

	// AtGoal returns whether the argument state is a goal state of
	// the Task
	AtGoal(state mat.Matrix) bool
}

// Environment implements a simulated environment, which includes a
// Task to complete
type Environment interface {
	Task

	// Reset resets the environment between episodes, returning the
	// first timestep of the new episode
	Reset() (timestep.TimeStep, error)

	// Step takes one environmental step given some action, returning
	// the next timestep and whether it is the last in the episode
	Step(action *mat.VecDense) (timestep.TimeStep, bool, error)

	// CurrentTimeStep returns the last timestep of the environment
	CurrentTimeStep() timestep.TimeStep

	RewardSpec() Spec
	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}
