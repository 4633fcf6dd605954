package flow

import (
	"github.com/P4ST4S/session-sdk-demo-sub000/analysis"
	"github.com/P4ST4S/session-sdk-demo-sub000/common_models"
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
	"github.com/ztrue/tracerr"
)

var (
	// ErrorUnknownDocumentOption is returned when selecting an option the stage does not offer
	ErrorUnknownDocumentOption = utils.NewVerifError("FLOW_UNKNOWN_DOCUMENT_OPTION", "unknown document option")
	// ErrorArtifactWrongSide is returned when an attached artifact does not match the expected side
	ErrorArtifactWrongSide = utils.NewVerifError("FLOW_ARTIFACT_WRONG_SIDE", "the artifact side does not match the current capture step")
	// ErrorArtifactSetIncomplete is returned when submitting before all required sides are attached
	ErrorArtifactSetIncomplete = utils.NewVerifError("FLOW_ARTIFACT_SET_INCOMPLETE", "not all required sides have been captured")
	// ErrorDuplicateSubmission is returned when re-submitting an unchanged artifact set
	ErrorDuplicateSubmission = utils.NewVerifError("FLOW_DUPLICATE_SUBMISSION", "this artifact set has already been submitted")
	// ErrorNotRetryable is returned when retrying a terminal failure
	ErrorNotRetryable = utils.NewVerifError("FLOW_NOT_RETRYABLE", "this failure cannot be retried")
)

// DocumentFlow is the per-document-stage sub-state-machine. It is created by
// the session flow when its stage is entered, and must not outlive it.
type DocumentFlow struct {
	session   *SessionFlow
	category  common_models.DocumentCategory
	options   []common_models.DocumentOption
	state     DocumentState
	selection *common_models.DocumentOption
	artifacts artifactSet
	latch     submitLatch
	animator  *Animator
	retries   int
	fatal     bool
	lastError error
}

func newDocumentFlow(session *SessionFlow, category common_models.DocumentCategory, options []common_models.DocumentOption) *DocumentFlow {
	return &DocumentFlow{
		session:  session,
		category: category,
		options:  options,
		state:    DocumentStateIntroduction,
	}
}

// State returns the current document sub-flow state.
func (doc *DocumentFlow) State() DocumentState {
	doc.session.lock.Lock()
	defer doc.session.lock.Unlock()
	return doc.state
}

// Category returns the document category this stage verifies.
func (doc *DocumentFlow) Category() common_models.DocumentCategory {
	return doc.category
}

// Options returns the selectable document options of this stage.
func (doc *DocumentFlow) Options() []common_models.DocumentOption {
	return doc.options
}

// Animation returns a snapshot of the processing animation, zero outside the
// processing and error states.
func (doc *DocumentFlow) Animation() AnimatorState {
	doc.session.lock.Lock()
	animator := doc.animator
	doc.session.lock.Unlock()
	if animator == nil {
		return AnimatorState{}
	}
	return animator.State()
}

// LastError returns the error that put the sub-flow in its error state.
func (doc *DocumentFlow) LastError() error {
	doc.session.lock.Lock()
	defer doc.session.lock.Unlock()
	return doc.lastError
}

func (doc *DocumentFlow) check(state DocumentState) error {
	if doc.session.closed || doc.session.document != doc {
		return tracerr.Wrap(ErrorSessionClosed)
	}
	if doc.state != state {
		return tracerr.Wrap(ErrorInvalidTransition.AddDetails(string(doc.state)))
	}
	return nil
}

// Continue advances past the states that only display content: the
// introduction screen, and the success screen which hands control back to
// the session.
func (doc *DocumentFlow) Continue() error {
	doc.session.lock.Lock()
	defer doc.session.lock.Unlock()
	if doc.session.closed || doc.session.document != doc {
		return tracerr.Wrap(ErrorSessionClosed)
	}
	switch doc.state {
	case DocumentStateIntroduction:
		doc.state = DocumentStateTypeSelection
		return nil
	case DocumentStateSuccess:
		doc.session.advanceLocked()
		return nil
	default:
		return tracerr.Wrap(ErrorInvalidTransition.AddDetails(string(doc.state)))
	}
}

// SelectOption picks a document option and enters the front capture step.
func (doc *DocumentFlow) SelectOption(optionId string) error {
	doc.session.lock.Lock()
	defer doc.session.lock.Unlock()
	if err := doc.check(DocumentStateTypeSelection); err != nil {
		return err
	}
	for i := range doc.options {
		if doc.options[i].Id == optionId {
			doc.selection = &doc.options[i]
			doc.state = DocumentStateCaptureFront
			doc.acquireCameraLocked()
			return nil
		}
	}
	return tracerr.Wrap(ErrorUnknownDocumentOption.AddDetails(optionId))
}

func (doc *DocumentFlow) acquireCameraLocked() {
	err := doc.session.camera.Acquire()
	if err != nil {
		doc.session.logger.Warn().Err(err).Msg("Cannot acquire camera, capture is upload-only")
	}
}

// Attach validates an artifact and stores it for the current capture step. A
// rejected artifact leaves the step unchanged so a new capture can replace
// it. Attaching the front side of a two-sided document moves to the back
// capture step.
func (doc *DocumentFlow) Attach(artifact common_models.CapturedArtifact) error {
	doc.session.lock.Lock()
	defer doc.session.lock.Unlock()
	var expected common_models.ArtifactSide
	switch doc.state {
	case DocumentStateCaptureFront:
		expected = common_models.ArtifactSideFront
	case DocumentStateCaptureBack:
		expected = common_models.ArtifactSideBack
	default:
		return tracerr.Wrap(ErrorInvalidTransition.AddDetails(string(doc.state)))
	}
	if doc.session.closed || doc.session.document != doc {
		return tracerr.Wrap(ErrorSessionClosed)
	}
	if artifact.Side != expected {
		return tracerr.Wrap(ErrorArtifactWrongSide.AddDetails(string(artifact.Side)))
	}
	if err := artifact.Validate(); err != nil {
		return err
	}
	doc.artifacts.put(artifact)
	if doc.state == DocumentStateCaptureFront && doc.selection.HasTwoSides {
		doc.state = DocumentStateCaptureBack
	}
	return nil
}

// ReadyToSubmit reports whether all required sides have been attached.
func (doc *DocumentFlow) ReadyToSubmit() bool {
	doc.session.lock.Lock()
	defer doc.session.lock.Unlock()
	return doc.completeLocked()
}

func (doc *DocumentFlow) completeLocked() bool {
	if doc.selection == nil || doc.artifacts.get(common_models.ArtifactSideFront) == nil {
		return false
	}
	if doc.selection.HasTwoSides && doc.artifacts.get(common_models.ArtifactSideBack) == nil {
		return false
	}
	return true
}

// Submit sends the captured artifact set for analysis. The duplicate check
// runs synchronously: an unchanged set is rejected before any state change.
// The upload itself runs in the background while the processing animation
// plays.
func (doc *DocumentFlow) Submit() error {
	doc.session.lock.Lock()
	state := doc.state
	if doc.session.closed || doc.session.document != doc {
		doc.session.lock.Unlock()
		return tracerr.Wrap(ErrorSessionClosed)
	}
	if state != DocumentStateCaptureFront && state != DocumentStateCaptureBack {
		doc.session.lock.Unlock()
		return tracerr.Wrap(ErrorInvalidTransition.AddDetails(string(state)))
	}
	if doc.session.sessionId == "" {
		doc.fatal = true
		doc.lastError = tracerr.Wrap(ErrorNoSessionId)
		doc.state = DocumentStateError
		doc.session.reportError(doc.lastError)
		doc.session.lock.Unlock()
		return doc.lastError
	}
	if !doc.completeLocked() {
		doc.session.lock.Unlock()
		return tracerr.Wrap(ErrorArtifactSetIncomplete)
	}
	artifacts := doc.artifacts.list()
	token, err := artifactSetToken(artifacts)
	if err != nil {
		doc.session.lock.Unlock()
		return tracerr.Wrap(err)
	}
	if !doc.latch.tryAcquire(token) {
		doc.session.lock.Unlock()
		return tracerr.Wrap(ErrorDuplicateSubmission)
	}
	doc.state = DocumentStateProcessing
	doc.animator = newAnimator(doc.session.options.AnimationTick, doc.onAnimationHalt)
	animator := doc.animator
	submitter := doc.session.submitter
	sessionId := doc.session.sessionId
	options := analysis.SubmitOptions{
		Save:              true,
		IncrementAnalysis: doc.retries > 0,
	}
	doc.session.lock.Unlock()

	go func() {
		code, err := submitter.Submit(sessionId, artifacts, doc.category, options)
		if err != nil {
			doc.session.logger.Error().Err(err).Msg("Document analysis submission failed")
			animator.Start("")
			return
		}
		animator.Start(code)
	}()
	return nil
}

// onAnimationHalt maps the animation outcome onto the success or error
// state. It runs on the animation timer goroutine.
func (doc *DocumentFlow) onAnimationHalt(success bool) {
	doc.session.lock.Lock()
	defer doc.session.lock.Unlock()
	if doc.session.closed || doc.session.document != doc || doc.state != DocumentStateProcessing {
		return
	}
	if success {
		doc.state = DocumentStateSuccess
	} else {
		doc.lastError = tracerr.Wrap(analysis.ErrorSubmissionFailed)
		doc.state = DocumentStateError
		doc.session.reportError(doc.lastError)
	}
}

// Retry restarts the capture after a failed analysis. The previous artifacts
// and the duplicate-submission latch are cleared, so the next submission is
// a fresh one. Fatal failures cannot be retried.
func (doc *DocumentFlow) Retry() error {
	doc.session.lock.Lock()
	defer doc.session.lock.Unlock()
	if err := doc.check(DocumentStateError); err != nil {
		return err
	}
	if doc.fatal {
		return tracerr.Wrap(ErrorNotRetryable)
	}
	doc.artifacts.clear()
	doc.latch.reset()
	doc.animator = nil
	doc.lastError = nil
	doc.retries++
	doc.state = DocumentStateCaptureFront
	return nil
}

// Back moves one step backwards inside the sub-flow, or hands control back
// to the session from the introduction screen. Backing out of the back-side
// capture returns to the front capture; both sides are recaptured together.
func (doc *DocumentFlow) Back() error {
	doc.session.lock.Lock()
	defer doc.session.lock.Unlock()
	if doc.session.closed || doc.session.document != doc {
		return tracerr.Wrap(ErrorSessionClosed)
	}
	switch doc.state {
	case DocumentStateIntroduction:
		doc.session.backLocked()
	case DocumentStateTypeSelection:
		doc.state = DocumentStateIntroduction
	case DocumentStateCaptureFront:
		doc.selection = nil
		doc.artifacts.clear()
		doc.state = DocumentStateTypeSelection
	case DocumentStateCaptureBack:
		doc.artifacts.clear()
		doc.state = DocumentStateCaptureFront
	default:
		return tracerr.Wrap(ErrorInvalidTransition.AddDetails(string(doc.state)))
	}
	return nil
}

func (doc *DocumentFlow) teardown() {
	if doc.animator != nil {
		doc.animator.Stop()
		doc.animator = nil
	}
	doc.session.camera.Release()
}
