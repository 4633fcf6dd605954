package flow

import (
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
	"github.com/P4ST4S/session-sdk-demo-sub000/verdict"
	"sync"
	"time"
)

// defaultAnimationTick is the fixed interval between visible progress steps.
const defaultAnimationTick = 500 * time.Millisecond

// AnimatorState is the externally visible state of the processing animation.
type AnimatorState struct {
	CurrentStep int
	HasError    bool
	IsDone      bool
}

// Animator drives the step-by-step progress animation shown while an
// analysis result is being presented. It stays pinned at step 0 until Start
// is called with the resolved outcome, then advances one step per tick and
// halts at the step the verdict classifies to. The completion callback fires
// exactly once, when the animation halts.
//
// Re-invoking Start while a run is in flight is not supported; callers
// guarantee single flight through the submission latch.
type Animator struct {
	lock     sync.Mutex
	tick     time.Duration
	onHalt   func(success bool)
	state    AnimatorState
	stopStep int
	started  bool
	halted   bool
	timer    *time.Timer
}

func newAnimator(tick time.Duration, onHalt func(success bool)) *Animator {
	if tick == 0 {
		tick = defaultAnimationTick
	}
	return &Animator{tick: tick, onHalt: onHalt}
}

// Start begins the animation once the analysis call has settled. An empty
// code (including a thrown submission error) classifies as a generic error,
// which always halts visibly at the first step, never at step 0.
func (animator *Animator) Start(code string) {
	animator.lock.Lock()
	if animator.started || animator.halted {
		animator.lock.Unlock()
		return
	}
	animator.started = true
	animator.state.IsDone = true
	animator.stopStep = utils.Max(1, verdict.Classify(code))
	animator.lock.Unlock()
	animator.advance()
}

func (animator *Animator) advance() {
	animator.lock.Lock()
	if animator.halted {
		animator.lock.Unlock()
		return
	}
	if animator.state.CurrentStep < animator.stopStep-1 {
		animator.timer = time.AfterFunc(animator.tick, animator.step)
		animator.lock.Unlock()
		return
	}
	// animation halts here
	animator.halted = true
	animator.state.HasError = animator.stopStep < verdict.TotalSteps
	success := animator.stopStep == verdict.TotalSteps
	onHalt := animator.onHalt
	animator.lock.Unlock()
	if onHalt != nil {
		onHalt(success)
	}
}

func (animator *Animator) step() {
	animator.lock.Lock()
	if animator.halted {
		animator.lock.Unlock()
		return
	}
	animator.state.CurrentStep++
	animator.lock.Unlock()
	animator.advance()
}

// Stop clears the outstanding tick timer. After Stop, no further step is
// taken and the completion callback will not fire.
func (animator *Animator) Stop() {
	animator.lock.Lock()
	defer animator.lock.Unlock()
	animator.halted = true
	if animator.timer != nil {
		animator.timer.Stop()
		animator.timer = nil
	}
}

// State returns a snapshot of the animation state.
func (animator *Animator) State() AnimatorState {
	animator.lock.Lock()
	defer animator.lock.Unlock()
	return animator.state
}
