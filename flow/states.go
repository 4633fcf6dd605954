package flow

import (
	"github.com/P4ST4S/session-sdk-demo-sub000/common_models"
)

// StageKind is the type of one top-level stage of the verification session.
type StageKind string

const (
	StageConsent      StageKind = "consent"
	StageIdentityForm StageKind = "identity"
	StageContactForm  StageKind = "contact"
	StageOTP          StageKind = "otp"
	StageDocument     StageKind = "document"
	StageSelfie       StageKind = "selfie"
	StageEnd          StageKind = "end"
	// StageFatal is terminal at mount: no session id, no work.
	StageFatal StageKind = "fatal"
)

// stageNode is one resolved entry of the session's ordered stage list.
// Document stages carry their category and active options.
type stageNode struct {
	Kind     StageKind
	Category common_models.DocumentCategory
	Options  []common_models.DocumentOption
}

// defaultStages is the hard-coded stage order used when the session template
// provides none.
func defaultStages() []stageNode {
	return []stageNode{
		{Kind: StageConsent},
		{Kind: StageIdentityForm},
		{Kind: StageContactForm},
		{Kind: StageOTP},
		{Kind: StageDocument, Category: common_models.DocumentCategoryIdCard, Options: common_models.DefaultOptionsForCategory(common_models.DocumentCategoryIdCard)},
		{Kind: StageSelfie},
		{Kind: StageEnd},
	}
}

// DocumentState is the internal state of one document sub-flow.
type DocumentState string

const (
	DocumentStateIntroduction  DocumentState = "introduction"
	DocumentStateTypeSelection DocumentState = "type-selection"
	DocumentStateCaptureFront  DocumentState = "capture-front"
	DocumentStateCaptureBack   DocumentState = "capture-back"
	DocumentStateProcessing    DocumentState = "processing"
	DocumentStateSuccess       DocumentState = "success"
	DocumentStateError         DocumentState = "error"
)

// SelfieState is the internal state of the liveness-selfie sub-flow.
type SelfieState string

const (
	SelfieStatePreIntroduction SelfieState = "pre-introduction"
	SelfieStateInstructions    SelfieState = "instructions"
	SelfieStateCapture         SelfieState = "capture"
	SelfieStateConfirmation    SelfieState = "confirmation"
	// SelfieStatePreviewError is the retry-only view shown when no preview
	// frame can be decoded; it never blocks submission of the original media.
	SelfieStatePreviewError SelfieState = "preview-error"
	SelfieStateProcessing   SelfieState = "processing"
	SelfieStateError        SelfieState = "error"
)

// SessionStatus is the single completion signal handed to the hosting
// context at session end.
type SessionStatus string

const (
	SessionStatusVerified SessionStatus = "verified"
	SessionStatusFailed   SessionStatus = "failed"
)
