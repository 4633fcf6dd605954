package flow

import (
	"github.com/P4ST4S/session-sdk-demo-sub000/analysis"
	"github.com/P4ST4S/session-sdk-demo-sub000/capture"
	"github.com/P4ST4S/session-sdk-demo-sub000/common_models"
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
	"github.com/ztrue/tracerr"
)

var (
	// ErrorRecorderNotReady is returned when triggering a capture before the recorder signalled readiness
	ErrorRecorderNotReady = utils.NewVerifError("FLOW_RECORDER_NOT_READY", "the recorder is not ready to capture")
	// ErrorNoRecorder is returned when the selfie stage is entered without a configured recorder
	ErrorNoRecorder = utils.NewVerifError("FLOW_NO_RECORDER", "no recorder configured")
	// ErrorNoSelfieMedia is returned when confirming without captured media
	ErrorNoSelfieMedia = utils.NewVerifError("FLOW_NO_SELFIE_MEDIA", "no captured selfie media to confirm")
)

// SelfieFlow is the selfie-stage sub-state-machine. Capture goes through the
// external recorder SDK rather than direct artifact attachment.
type SelfieFlow struct {
	session       *SessionFlow
	state         SelfieState
	recorderReady bool
	media         *common_models.CapturedArtifact
	preview       []byte
	latch         submitLatch
	animator      *Animator
	retries       int
}

func newSelfieFlow(session *SessionFlow) *SelfieFlow {
	return &SelfieFlow{
		session: session,
		state:   SelfieStatePreIntroduction,
	}
}

// State returns the current selfie sub-flow state.
func (selfie *SelfieFlow) State() SelfieState {
	selfie.session.lock.Lock()
	defer selfie.session.lock.Unlock()
	return selfie.state
}

// Preview returns the decoded confirmation still, nil outside the
// confirmation state.
func (selfie *SelfieFlow) Preview() []byte {
	selfie.session.lock.Lock()
	defer selfie.session.lock.Unlock()
	return selfie.preview
}

// Animation returns a snapshot of the processing animation.
func (selfie *SelfieFlow) Animation() AnimatorState {
	selfie.session.lock.Lock()
	animator := selfie.animator
	selfie.session.lock.Unlock()
	if animator == nil {
		return AnimatorState{}
	}
	return animator.State()
}

func (selfie *SelfieFlow) check(state SelfieState) error {
	if selfie.session.closed || selfie.session.selfie != selfie {
		return tracerr.Wrap(ErrorSessionClosed)
	}
	if selfie.state != state {
		return tracerr.Wrap(ErrorInvalidTransition.AddDetails(string(selfie.state)))
	}
	return nil
}

// Continue advances through the presentation states: pre-introduction to
// instructions, and instructions to the live capture step. Entering capture
// binds the recorder callbacks and acquires the camera.
func (selfie *SelfieFlow) Continue() error {
	selfie.session.lock.Lock()
	defer selfie.session.lock.Unlock()
	if selfie.session.closed || selfie.session.selfie != selfie {
		return tracerr.Wrap(ErrorSessionClosed)
	}
	switch selfie.state {
	case SelfieStatePreIntroduction:
		selfie.state = SelfieStateInstructions
		return nil
	case SelfieStateInstructions:
		return selfie.enterCaptureLocked()
	default:
		return tracerr.Wrap(ErrorInvalidTransition.AddDetails(string(selfie.state)))
	}
}

func (selfie *SelfieFlow) enterCaptureLocked() error {
	recorder := selfie.session.options.Recorder
	if recorder == nil {
		return tracerr.Wrap(ErrorNoRecorder)
	}
	recorder.Bind(capture.RecorderHandlers{
		Ready:     selfie.onRecorderReady,
		Completed: selfie.onRecorderCompleted,
	})
	err := selfie.session.camera.Acquire()
	if err != nil {
		selfie.session.logger.Warn().Err(err).Msg("Cannot acquire camera for selfie capture")
	}
	selfie.state = SelfieStateCapture
	return nil
}

// onRecorderReady runs on the recorder SDK's goroutine.
func (selfie *SelfieFlow) onRecorderReady() {
	selfie.session.lock.Lock()
	defer selfie.session.lock.Unlock()
	if selfie.session.closed || selfie.session.selfie != selfie {
		return
	}
	selfie.recorderReady = true
}

// onRecorderCompleted receives the captured media and moves to confirmation.
// The preview decode happens here; a decode failure shows the preview-error
// screen, from which only a recapture is possible.
func (selfie *SelfieFlow) onRecorderCompleted(media common_models.CapturedArtifact) {
	selfie.session.lock.Lock()
	defer selfie.session.lock.Unlock()
	if selfie.session.closed || selfie.session.selfie != selfie || selfie.state != SelfieStateCapture {
		return
	}
	media.Side = common_models.ArtifactSideSelfie
	if err := media.Validate(); err != nil {
		selfie.session.logger.Error().Err(err).Msg("Captured selfie media is invalid")
		selfie.state = SelfieStatePreviewError
		return
	}
	selfie.media = &media
	decoder := selfie.session.options.PreviewDecoder
	if decoder == nil {
		selfie.preview = nil
		selfie.state = SelfieStateConfirmation
		return
	}
	preview, err := decoder.DecodeStill(media)
	if err != nil {
		selfie.session.logger.Warn().Err(err).Msg("Cannot decode selfie preview frame")
		selfie.media = nil
		selfie.state = SelfieStatePreviewError
		return
	}
	selfie.preview = preview
	selfie.state = SelfieStateConfirmation
}

// TriggerCapture asks the recorder to capture. It requires the recorder to
// have signalled readiness first.
func (selfie *SelfieFlow) TriggerCapture() error {
	selfie.session.lock.Lock()
	if err := selfie.check(SelfieStateCapture); err != nil {
		selfie.session.lock.Unlock()
		return err
	}
	if !selfie.recorderReady {
		selfie.session.lock.Unlock()
		return tracerr.Wrap(ErrorRecorderNotReady)
	}
	recorder := selfie.session.options.Recorder
	selfie.session.lock.Unlock()
	err := recorder.Capture()
	if err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}

// Recapture discards the captured media and returns to the live capture
// step, from the confirmation or preview-error screens.
func (selfie *SelfieFlow) Recapture() error {
	selfie.session.lock.Lock()
	defer selfie.session.lock.Unlock()
	if selfie.session.closed || selfie.session.selfie != selfie {
		return tracerr.Wrap(ErrorSessionClosed)
	}
	if selfie.state != SelfieStateConfirmation && selfie.state != SelfieStatePreviewError {
		return tracerr.Wrap(ErrorInvalidTransition.AddDetails(string(selfie.state)))
	}
	selfie.media = nil
	selfie.preview = nil
	selfie.state = SelfieStateCapture
	return nil
}

// Confirm submits the captured selfie for analysis. Like document
// submission, the duplicate check is synchronous and the upload runs in the
// background under the processing animation.
func (selfie *SelfieFlow) Confirm() error {
	selfie.session.lock.Lock()
	if err := selfie.check(SelfieStateConfirmation); err != nil {
		selfie.session.lock.Unlock()
		return err
	}
	if selfie.media == nil {
		selfie.session.lock.Unlock()
		return tracerr.Wrap(ErrorNoSelfieMedia)
	}
	artifacts := []common_models.CapturedArtifact{*selfie.media}
	token, err := artifactSetToken(artifacts)
	if err != nil {
		selfie.session.lock.Unlock()
		return tracerr.Wrap(err)
	}
	if !selfie.latch.tryAcquire(token) {
		selfie.session.lock.Unlock()
		return tracerr.Wrap(ErrorDuplicateSubmission)
	}
	selfie.state = SelfieStateProcessing
	selfie.animator = newAnimator(selfie.session.options.AnimationTick, selfie.onAnimationHalt)
	animator := selfie.animator
	submitter := selfie.session.submitter
	sessionId := selfie.session.sessionId
	options := analysis.SubmitOptions{
		Save:              true,
		IncrementAnalysis: selfie.retries > 0,
	}
	selfie.session.lock.Unlock()

	go func() {
		code, err := submitter.Submit(sessionId, artifacts, common_models.DocumentCategorySelfie, options)
		if err != nil {
			selfie.session.logger.Error().Err(err).Msg("Selfie analysis submission failed")
			animator.Start("")
			return
		}
		animator.Start(code)
	}()
	return nil
}

// onAnimationHalt runs on the animation timer goroutine. A successful selfie
// analysis advances the session directly: there is no selfie success screen.
func (selfie *SelfieFlow) onAnimationHalt(success bool) {
	selfie.session.lock.Lock()
	defer selfie.session.lock.Unlock()
	if selfie.session.closed || selfie.session.selfie != selfie || selfie.state != SelfieStateProcessing {
		return
	}
	if success {
		selfie.session.advanceLocked()
	} else {
		selfie.state = SelfieStateError
		selfie.session.reportError(tracerr.Wrap(analysis.ErrorSubmissionFailed))
	}
}

// Retry restarts the capture after a failed analysis, clearing the media and
// the duplicate-submission latch.
func (selfie *SelfieFlow) Retry() error {
	selfie.session.lock.Lock()
	defer selfie.session.lock.Unlock()
	if err := selfie.check(SelfieStateError); err != nil {
		return err
	}
	selfie.media = nil
	selfie.preview = nil
	selfie.latch.reset()
	selfie.animator = nil
	selfie.retries++
	selfie.state = SelfieStateCapture
	return nil
}

// Back moves one step backwards, or hands control back to the session from
// the pre-introduction screen.
func (selfie *SelfieFlow) Back() error {
	selfie.session.lock.Lock()
	defer selfie.session.lock.Unlock()
	if selfie.session.closed || selfie.session.selfie != selfie {
		return tracerr.Wrap(ErrorSessionClosed)
	}
	switch selfie.state {
	case SelfieStatePreIntroduction:
		selfie.session.backLocked()
	case SelfieStateInstructions:
		selfie.state = SelfieStatePreIntroduction
	case SelfieStateCapture:
		selfie.session.camera.Release()
		selfie.recorderReady = false
		selfie.state = SelfieStateInstructions
	case SelfieStateConfirmation:
		selfie.media = nil
		selfie.preview = nil
		selfie.state = SelfieStateCapture
	default:
		return tracerr.Wrap(ErrorInvalidTransition.AddDetails(string(selfie.state)))
	}
	return nil
}

func (selfie *SelfieFlow) teardown() {
	if selfie.animator != nil {
		selfie.animator.Stop()
		selfie.animator = nil
	}
	selfie.session.camera.Release()
}
