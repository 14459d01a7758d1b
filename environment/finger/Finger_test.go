package finger_test

import (
	"math"
	"testing"

	"github.com/samuelfneumann/gofinger/environment"
	"github.com/samuelfneumann/gofinger/environment/box2d/fingersim"
	"github.com/samuelfneumann/gofinger/environment/finger"
	ts "github.com/samuelfneumann/gofinger/timestep"
	"gonum.org/v1/gonum/mat"
)

// notFingerTask is a Task that no Finger environment can run
type notFingerTask struct {
	environment.StepLimit
}

func (n notFingerTask) GetReward(_, _, _ mat.Vector) float64 { return 0 }

func (n notFingerTask) AtGoal(_ mat.Matrix) bool { return false }

func newEnv(t *testing.T, taskName string, maxEpisodeSteps int,
	seed uint64) (environment.Environment, ts.TimeStep, *fingersim.FingerSim) {
	t.Helper()

	sim := fingersim.New()
	task, err := finger.NewTask(taskName, maxEpisodeSteps)
	if err != nil {
		t.Fatal(err)
	}

	env, step, err := finger.New(sim, task, 2, seed, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	return env, step, sim
}

func TestNew(t *testing.T) {
	for _, c := range []struct {
		taskName string
		obsLen   int
	}{
		{finger.SpinTaskName, 9},
		{finger.TurnEasyTaskName, 12},
		{finger.TurnHardTaskName, 12},
	} {
		env, step, sim := newEnv(t, c.taskName, 1000, 123)

		if !step.First() {
			t.Errorf("task %v: first timestep should have StepType First",
				c.taskName)
		}
		if step.Observation.Len() != c.obsLen {
			t.Errorf("task %v: observations should have length %v, got %v",
				c.taskName, c.obsLen, step.Observation.Len())
		}
		if sim.ContactCount() != 0 {
			t.Errorf("task %v: initial state should be contact-free, "+
				"got %v contacts", c.taskName, sim.ContactCount())
		}
		if env.ObservationSpec().Shape.Len() != c.obsLen {
			t.Errorf("task %v: observation spec does not match "+
				"observation length", c.taskName)
		}
	}
}

func TestNewInvalidArguments(t *testing.T) {
	task, err := finger.NewTask(finger.SpinTaskName, 1000)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := finger.New(fingersim.New(), task, 0, 123,
		1.0); err == nil {
		t.Error("frame skip 0 should be rejected")
	}

	other := notFingerTask{environment.NewStepLimit(1000)}
	if _, _, err := finger.New(fingersim.New(), other, 2, 123,
		1.0); err == nil {
		t.Error("tasks of foreign types should be rejected")
	}
}

func TestStep(t *testing.T) {
	env, step, _ := newEnv(t, finger.TurnEasyTaskName, 1000, 123)

	distToTargetIndex := step.Observation.Len() - 1
	lastDist := step.Observation.AtVec(distToTargetIndex)

	for i := 1; i <= 20; i++ {
		next, last, err := env.Step(mat.NewVecDense(2,
			[]float64{0.1, -0.1}))
		if err != nil {
			t.Fatal(err)
		}
		if last {
			t.Fatalf("step %v: episode should not end before the step "+
				"limit", i)
		}
		if next.Number != step.Number+1 {
			t.Errorf("step numbers should increase by 1: %v to %v",
				step.Number, next.Number)
		}

		for j := 0; j < next.Observation.Len(); j++ {
			if math.IsNaN(next.Observation.AtVec(j)) {
				t.Fatalf("step %v: observation index %v is NaN", i, j)
			}
		}
		if next.Reward != 0.0 && next.Reward != 1.0 {
			t.Errorf("rewards should be sparse 0 or 1, got %v", next.Reward)
		}

		// The signed distance to the target evolves continuously
		dist := next.Observation.AtVec(distToTargetIndex)
		if math.Abs(dist-lastDist) > 0.5 {
			t.Errorf("step %v: dist to target jumped from %v to %v",
				i, lastDist, dist)
		}
		lastDist = dist

		step = next
		if env.CurrentTimeStep().Number != step.Number {
			t.Error("CurrentTimeStep should track the last step")
		}
	}
}

func TestZeroActionStep(t *testing.T) {
	env, _, _ := newEnv(t, finger.SpinTaskName, 1000, 123)

	// With no applied torque the state evolves only through gravity
	// and momentum and stays finite
	next, _, err := env.Step(mat.NewVecDense(2, []float64{0.0, 0.0}))
	if err != nil {
		t.Fatal(err)
	}
	for j := 0; j < next.Observation.Len(); j++ {
		if math.IsNaN(next.Observation.AtVec(j)) {
			t.Errorf("observation index %v is NaN", j)
		}
	}
}

func TestStepInvalidActionDimensions(t *testing.T) {
	env, _, _ := newEnv(t, finger.SpinTaskName, 1000, 123)

	for _, length := range []int{1, 3} {
		if _, _, err := env.Step(mat.NewVecDense(length, nil)); err == nil {
			t.Errorf("actions of length %v should be rejected", length)
		}
	}
}

func TestEpisodeEndsOnlyAtStepLimit(t *testing.T) {
	cutoff := 25
	env, _, _ := newEnv(t, finger.SpinTaskName, cutoff, 123)

	steps := 0
	for {
		step, last, err := env.Step(mat.NewVecDense(2, nil))
		if err != nil {
			t.Fatal(err)
		}
		steps++

		if last != step.Last() {
			t.Error("returned last flag should agree with the timestep")
		}
		if last {
			if step.End() != ts.Timeout {
				t.Errorf("episodes should end by timeout, got end type %v",
					step.End())
			}
			break
		}
		if steps > cutoff {
			t.Fatalf("episode should have ended after %v steps", cutoff)
		}
	}

	if steps != cutoff {
		t.Errorf("episode should last exactly %v steps, got %v",
			cutoff, steps)
	}

	// The environment starts a fresh episode on Reset
	step, err := env.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if !step.First() || step.Number != 0 {
		t.Error("reset should return the first timestep of a new episode")
	}
}

func TestSpinEpisodeInitialization(t *testing.T) {
	_, _, sim := newEnv(t, finger.SpinTaskName, 1000, 123)

	for _, site := range []string{"target", "tip"} {
		alpha, err := sim.SiteAlpha(site)
		if err != nil {
			t.Fatal(err)
		}
		if alpha != 0.0 {
			t.Errorf("site %v should be hidden in spin episodes, got "+
				"alpha %v", site, alpha)
		}
	}

	damping, err := sim.JointDamping("hinge")
	if err != nil {
		t.Fatal(err)
	}
	if damping != 0.03 {
		t.Errorf("spin episodes should raise hinge damping to 0.03, "+
			"got %v", damping)
	}
}

func TestTurnEpisodeInitialization(t *testing.T) {
	env, _, sim := newEnv(t, finger.TurnEasyTaskName, 1000, 123)

	size, err := sim.SiteSize("target")
	if err != nil {
		t.Fatal(err)
	}
	if size.AtVec(0) != 0.07 {
		t.Errorf("turn_easy target radius should be 0.07, got %v",
			size.AtVec(0))
	}

	anchor, err := sim.JointAnchor("hinge")
	if err != nil {
		t.Fatal(err)
	}
	capSize, err := sim.GeomSize("cap1")
	if err != nil {
		t.Fatal(err)
	}
	ringRadius := mat.Sum(capSize)

	pos, err := sim.SitePosition("target")
	if err != nil {
		t.Fatal(err)
	}
	dx := pos.AtVec(0) - anchor.AtVec(0)
	dz := pos.AtVec(2) - anchor.AtVec(2)
	if dist := math.Hypot(dx, dz); math.Abs(dist-ringRadius) > 1e-12 {
		t.Errorf("target should sit %v from the hinge anchor, got %v",
			ringRadius, dist)
	}

	f := env.(*finger.Finger)
	if f.TargetLocation() != nil {
		t.Error("diagnostics should be disabled by default")
	}

	f.EnableDiagnostics()
	target := f.TargetLocation()
	if target == nil {
		t.Fatal("turn tasks should expose the target location under " +
			"diagnostics")
	}
	if target.AtVec(0) != pos.AtVec(0) || target.AtVec(1) != pos.AtVec(2) {
		t.Errorf("diagnostic target (%v) does not match the placed site "+
			"(%v, %v)", target, pos.AtVec(0), pos.AtVec(2))
	}
}

func TestDiagnostics(t *testing.T) {
	env, _, sim := newEnv(t, finger.SpinTaskName, 1000, 123)
	f := env.(*finger.Finger)

	if f.InitialJointPositions() != nil {
		t.Error("diagnostics should be disabled by default")
	}

	f.EnableDiagnostics()
	qpos := f.InitialJointPositions()
	if qpos == nil || qpos.Len() != len(sim.QPos()) {
		t.Fatalf("initial joint positions should have one entry per "+
			"joint, got %v", qpos)
	}

	// Spin tasks have no target to report
	if f.TargetLocation() != nil {
		t.Error("spin tasks should not expose a target location")
	}
}

func TestResetsAreSeeded(t *testing.T) {
	env1, step1, _ := newEnv(t, finger.TurnHardTaskName, 1000, 987)
	env2, step2, _ := newEnv(t, finger.TurnHardTaskName, 1000, 987)

	if !mat.Equal(step1.Observation, step2.Observation) {
		t.Error("environments with equal seeds should start in equal " +
			"states")
	}

	// The shared stream keeps evolving across resets
	next1, err := env1.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if mat.Equal(step1.Observation, next1.Observation) {
		t.Error("consecutive resets should draw different initial states")
	}

	next2, err := env2.Reset()
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(next1.Observation, next2.Observation) {
		t.Error("equal seeds should replay the same reset sequence")
	}
}
