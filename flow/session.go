// Package flow implements the verification widget's state machines: the
// top-level session stage sequence, the per-document and selfie sub-flows,
// the processing animation and the submission idempotency latch.
package flow

import (
	"encoding/json"
	"github.com/P4ST4S/session-sdk-demo-sub000/analysis"
	"github.com/P4ST4S/session-sdk-demo-sub000/api_helper"
	"github.com/P4ST4S/session-sdk-demo-sub000/capture"
	"github.com/P4ST4S/session-sdk-demo-sub000/common_models"
	"github.com/P4ST4S/session-sdk-demo-sub000/session_api"
	"github.com/P4ST4S/session-sdk-demo-sub000/session_store"
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
	"github.com/rs/zerolog"
	"github.com/ztrue/tracerr"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	// ErrorDatabaseRequired is returned when InitializeOptions carries no Database
	ErrorDatabaseRequired = utils.NewVerifError("FLOW_DATABASE_REQUIRED", "Database argument is required")
	// ErrorNoSessionId is the fatal mount error: without a session identifier no partial flow is attempted
	ErrorNoSessionId = utils.NewVerifError("FLOW_NO_SESSION_ID", "no session identifier")
	// ErrorInvalidTransition is returned when an operation is not allowed in the current state
	ErrorInvalidTransition = utils.NewVerifError("FLOW_INVALID_TRANSITION", "operation not allowed in the current state")
	// ErrorSessionClosed is returned when using a flow after Close
	ErrorSessionClosed = utils.NewVerifError("FLOW_SESSION_CLOSED", "this session flow has been closed")
	// ErrorMissingName is returned when the identity form is submitted without both names
	ErrorMissingName = utils.NewVerifError("FLOW_MISSING_NAME", "first name and last name are required")
	// ErrorUnknownStageType is returned when the session template contains a stage this SDK does not implement
	ErrorUnknownStageType = utils.NewVerifError("FLOW_UNKNOWN_STAGE_TYPE", "unknown stage type in session template")
	// ErrorUnknownDocumentCategory is returned when the session template asks for a document category this SDK cannot submit
	ErrorUnknownDocumentCategory = utils.NewVerifError("FLOW_UNKNOWN_DOCUMENT_CATEGORY", "unknown document category in session template")
)

// AnalysisSubmitter is the submission dependency of the flows; implemented by
// analysis.Submitter.
type AnalysisSubmitter interface {
	Submit(sessionId string, artifacts []common_models.CapturedArtifact, category common_models.DocumentCategory, options analysis.SubmitOptions) (string, error)
}

// SessionAPI is the metadata dependency of the flows; implemented by
// session_api.Client.
type SessionAPI interface {
	GetTemplate(sessionId string) (*session_api.SessionTemplate, error)
	SaveUserInput(sessionId string, input common_models.IdentityInput) error
	SaveContactInfo(sessionId string, info common_models.ContactInfo) error
}

// InitializeOptions is the main options object for initializing a session
// flow instance.
type InitializeOptions struct {
	// ApiURL is the verification backend to use.
	ApiURL string
	// SessionToken is the signed token the hosting page mounts the widget with.
	SessionToken string
	// Database is the local storage backend for persisted session fields.
	Database session_store.Database
	// LogLevel is the minimum level of logs you want. Use one of the zerolog level constants.
	LogLevel zerolog.Level
	// LogNoColor should be set to true if you want to disable colors in the log output.
	LogNoColor bool
	// InstanceName is an arbitrary name to give to this instance, added to logs.
	InstanceName string
	// Platform is a name that references the platform on which the widget is running.
	Platform string
	// LogWriter is the io.Writer to which to write the logs. Defaults to os.Stdout.
	LogWriter io.Writer
	// Recorder is the external capture SDK surface used by the selfie sub-flow.
	Recorder capture.Recorder
	// PreviewDecoder extracts the selfie confirmation still frame.
	PreviewDecoder capture.PreviewDecoder
	// CameraDevice is the camera used by document capture steps. Optional:
	// without it, document capture is upload-only.
	CameraDevice capture.Device
	// OnSessionEnd is called exactly once with the completion status.
	OnSessionEnd func(status SessionStatus)
	// OnError is called whenever the widget reports a failure to the hosting
	// context: the fatal mount error and terminal sub-flow errors, in
	// serialized form.
	OnError func(err *utils.SerializableError)
	// AnimationTick overrides the processing animation interval. For tests.
	AnimationTick time.Duration
	// Now overrides the clock. For tests.
	Now func() time.Time
	// API overrides the session metadata client. For tests.
	API SessionAPI
	// Submitter overrides the analysis submitter. For tests.
	Submitter AnalysisSubmitter
}

// SessionFlow is the top-level state machine of the verification widget. You
// must never create a SessionFlow yourself. Instead, always use Initialize.
type SessionFlow struct {
	lock      sync.Mutex
	logger    zerolog.Logger
	options   *InitializeOptions
	store     session_store.Database
	api       SessionAPI
	submitter AnalysisSubmitter
	camera    *capture.Handle

	sessionId string
	stages    []stageNode
	pos       int
	fatalErr  error

	identity *common_models.IdentityInput
	contact  *common_models.ContactInfo
	otp      *otpState
	document *DocumentFlow
	selfie   *SelfieFlow

	closed bool
	ended  bool
}

// Initialize creates a session flow instance from the given options. A
// missing or unusable session token does not return an error: the flow
// mounts directly in the fatal stage, and performs no further work.
func Initialize(options *InitializeOptions) (*SessionFlow, error) {
	if options.LogWriter == nil {
		options.LogWriter = os.Stdout
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	instanceLogger := zerolog.New(zerolog.ConsoleWriter{Out: options.LogWriter, TimeFormat: time.StampMilli, NoColor: options.LogNoColor}).With().Timestamp().Logger()
	instanceLogger = instanceLogger.Level(options.LogLevel)
	if options.InstanceName != "" {
		instanceLogger = instanceLogger.With().Str("instance", options.InstanceName).Logger()
	}

	instanceLogger.Debug().Msg("Initialize new session flow instance...")
	instanceLogger.Debug().Str("version", "widget-go/"+options.Platform+"/"+utils.Version).Msg("Version")

	if options.Database == nil {
		return nil, tracerr.Wrap(ErrorDatabaseRequired)
	}
	err := options.Database.Initialize()
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	flow := &SessionFlow{
		logger:  instanceLogger,
		options: options,
		store:   options.Database,
		camera:  capture.NewHandle(options.CameraDevice),
	}

	sessionId, err := session_api.ParseSessionToken(options.SessionToken)
	if err != nil {
		instanceLogger.Error().Err(err).Msg("No usable session identifier, halting at mount")
		flow.fatalErr = tracerr.Wrap(ErrorNoSessionId.AddDetails(err.Error()))
		flow.stages = []stageNode{{Kind: StageFatal}}
		flow.reportError(flow.fatalErr)
		return flow, nil
	}
	flow.sessionId = sessionId

	if options.API != nil {
		flow.api = options.API
	} else {
		apiLogger := instanceLogger.With().Str("component", "sessionApiClient").Logger()
		flow.api = session_api.NewClient(options.ApiURL, []api_helper.Header{{Name: "X-VERIF-VERSION", Value: utils.Version}}, apiLogger)
	}
	if options.Submitter != nil {
		flow.submitter = options.Submitter
	} else {
		submitterLogger := instanceLogger.With().Str("component", "analysisSubmitter").Logger()
		flow.submitter = analysis.NewSubmitter(options.ApiURL, []api_helper.Header{{Name: "X-VERIF-VERSION", Value: utils.Version}}, options.Database, submitterLogger)
	}

	err = flow.resolveStages()
	if err != nil {
		instanceLogger.Error().Err(err).Msg("Session template is unusable, halting at mount")
		flow.fatalErr = tracerr.Wrap(err)
		flow.stages = []stageNode{{Kind: StageFatal}}
		flow.reportError(flow.fatalErr)
		return flow, nil
	}
	flow.enterStageLocked()

	instanceLogger.Debug().Msg("New session flow instance created.")
	return flow, nil
}

// resolveStages fetches the workflow template and maps it to the ordered
// stage list, falling back to the default order when the backend has none.
func (flow *SessionFlow) resolveStages() error {
	template, err := flow.api.GetTemplate(flow.sessionId)
	if err != nil {
		flow.logger.Warn().Err(err).Msg("Cannot fetch session template, falling back to default stages")
		template = nil
	}
	if template == nil {
		flow.stages = defaultStages()
		return nil
	}

	var stages []stageNode
	for _, node := range template.Nodes {
		switch StageKind(node.Type) {
		case StageConsent, StageIdentityForm, StageContactForm, StageOTP, StageSelfie:
			stages = append(stages, stageNode{Kind: StageKind(node.Type)})
		case StageDocument:
			category := common_models.DocumentCategory(node.Category)
			if !common_models.KnownCategory(category) {
				return tracerr.Wrap(ErrorUnknownDocumentCategory.AddDetails(node.Category))
			}
			stages = append(stages, stageNode{
				Kind:     StageDocument,
				Category: category,
				Options:  resolveOptions(category, node.Options),
			})
		case StageEnd:
			stages = append(stages, stageNode{Kind: StageEnd})
		default:
			return tracerr.Wrap(ErrorUnknownStageType.AddDetails(node.Type))
		}
	}
	if len(stages) == 0 || stages[len(stages)-1].Kind != StageEnd {
		stages = append(stages, stageNode{Kind: StageEnd})
	}
	flow.stages = stages
	flow.cacheOptions()
	return nil
}

// resolveOptions maps template option ids onto concrete options, resolving
// the two-sided flag from the static lookup. Without template options the
// category defaults apply.
func resolveOptions(category common_models.DocumentCategory, optionIds []string) []common_models.DocumentOption {
	if len(optionIds) == 0 {
		return common_models.DefaultOptionsForCategory(category)
	}
	defaults := map[string]common_models.DocumentOption{}
	for _, option := range common_models.DefaultOptionsForCategory(category) {
		defaults[option.Id] = option
	}
	options := make([]common_models.DocumentOption, 0, len(optionIds))
	for _, id := range optionIds {
		if option, ok := defaults[id]; ok {
			options = append(options, option)
		} else {
			options = append(options, common_models.DocumentOption{
				Id:          id,
				Label:       id,
				HasTwoSides: common_models.OptionHasTwoSides(category, id),
			})
		}
	}
	return options
}

// cacheOptions persists the per-category option lists, so a remounted widget
// can restore them without refetching the template.
func (flow *SessionFlow) cacheOptions() {
	for _, stage := range flow.stages {
		if stage.Kind != StageDocument {
			continue
		}
		encoded, err := json.Marshal(stage.Options)
		if err != nil {
			continue
		}
		err = flow.store.Write(session_store.KeyCategoryOptions(stage.Category, flow.sessionId), encoded)
		if err != nil {
			flow.logger.Warn().Err(err).Msg("Cannot cache document options")
		}
	}
}

// reportError hands a failure to the hosting context in serialized form.
// Fired on its own goroutine: the host must not re-enter the flow
// synchronously, and callers may hold the session lock.
func (flow *SessionFlow) reportError(err error) {
	if flow.options.OnError == nil || err == nil {
		return
	}
	serialized := utils.ToSerializableError(err)
	go flow.options.OnError(serialized)
}

// SessionId returns the resolved session identifier, empty in the fatal
// stage.
func (flow *SessionFlow) SessionId() string {
	return flow.sessionId
}

// CurrentStage returns the kind of the current top-level stage.
func (flow *SessionFlow) CurrentStage() StageKind {
	flow.lock.Lock()
	defer flow.lock.Unlock()
	return flow.stages[flow.pos].Kind
}

// FatalError returns the mount error when the flow is in the fatal stage.
func (flow *SessionFlow) FatalError() error {
	flow.lock.Lock()
	defer flow.lock.Unlock()
	return flow.fatalErr
}

// Document returns the active document sub-flow, nil outside document stages.
func (flow *SessionFlow) Document() *DocumentFlow {
	flow.lock.Lock()
	defer flow.lock.Unlock()
	return flow.document
}

// Selfie returns the active selfie sub-flow, nil outside the selfie stage.
func (flow *SessionFlow) Selfie() *SelfieFlow {
	flow.lock.Lock()
	defer flow.lock.Unlock()
	return flow.selfie
}

func (flow *SessionFlow) checkStage(kind StageKind) error {
	if flow.closed {
		return tracerr.Wrap(ErrorSessionClosed)
	}
	if flow.stages[flow.pos].Kind != kind {
		return tracerr.Wrap(ErrorInvalidTransition.AddDetails(string(flow.stages[flow.pos].Kind)))
	}
	return nil
}

// AcceptConsent advances past the start/consent stage.
func (flow *SessionFlow) AcceptConsent() error {
	flow.lock.Lock()
	defer flow.lock.Unlock()
	if err := flow.checkStage(StageConsent); err != nil {
		return err
	}
	flow.advanceLocked()
	return nil
}

// SubmitIdentity validates and persists the identity fields, then advances.
// The fields are written once: every later analysis submission reads this
// same persisted value.
func (flow *SessionFlow) SubmitIdentity(input common_models.IdentityInput) error {
	flow.lock.Lock()
	defer flow.lock.Unlock()
	if err := flow.checkStage(StageIdentityForm); err != nil {
		return err
	}
	input.FirstName = utils.NormalizeString(strings.TrimSpace(input.FirstName))
	input.LastName = utils.NormalizeString(strings.TrimSpace(input.LastName))
	if input.FirstName == "" || input.LastName == "" {
		return tracerr.Wrap(ErrorMissingName)
	}
	if err := utils.CheckAdult(input.BirthDate, flow.options.Now()); err != nil {
		return err
	}

	err := flow.api.SaveUserInput(flow.sessionId, input)
	if err != nil {
		return tracerr.Wrap(err)
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return tracerr.Wrap(err)
	}
	err = flow.store.Write(session_store.KeyUserInput(flow.sessionId), encoded)
	if err != nil {
		return tracerr.Wrap(err)
	}
	flow.identity = &input
	flow.advanceLocked()
	return nil
}

// SubmitContact validates and persists the contact fields, then advances to
// the OTP stage and sends the first code.
func (flow *SessionFlow) SubmitContact(info common_models.ContactInfo) error {
	flow.lock.Lock()
	defer flow.lock.Unlock()
	if err := flow.checkStage(StageContactForm); err != nil {
		return err
	}
	if err := utils.CheckEmail(info.Email); err != nil {
		return err
	}
	if err := utils.CheckFrenchPhoneNumber(info.PhoneNumber); err != nil {
		return err
	}

	err := flow.api.SaveContactInfo(flow.sessionId, info)
	if err != nil {
		return tracerr.Wrap(err)
	}
	encoded, err := json.Marshal(info)
	if err != nil {
		return tracerr.Wrap(err)
	}
	err = flow.store.Write(session_store.KeyContactInfo(flow.sessionId), encoded)
	if err != nil {
		return tracerr.Wrap(err)
	}
	flow.contact = &info
	flow.advanceLocked()
	return nil
}

// Back moves one top-level stage backwards. A no-op on the first stage.
func (flow *SessionFlow) Back() {
	flow.lock.Lock()
	defer flow.lock.Unlock()
	flow.backLocked()
}

func (flow *SessionFlow) backLocked() {
	if flow.closed || flow.pos == 0 {
		return
	}
	flow.teardownStageLocked()
	flow.pos--
	flow.enterStageLocked()
}

func (flow *SessionFlow) advanceLocked() {
	flow.teardownStageLocked()
	flow.pos++
	flow.enterStageLocked()
}

func (flow *SessionFlow) enterStageLocked() {
	stage := flow.stages[flow.pos]
	flow.logger.Debug().Str("stage", string(stage.Kind)).Msg("Entering stage")
	switch stage.Kind {
	case StageOTP:
		flow.otp = newOTPState(flow.options.Now())
	case StageDocument:
		flow.document = newDocumentFlow(flow, stage.Category, stage.Options)
	case StageSelfie:
		flow.selfie = newSelfieFlow(flow)
	case StageEnd:
		flow.finishLocked()
	}
}

func (flow *SessionFlow) teardownStageLocked() {
	switch flow.stages[flow.pos].Kind {
	case StageOTP:
		flow.otp = nil
	case StageDocument:
		if flow.document != nil {
			flow.document.teardown()
			flow.document = nil
		}
	case StageSelfie:
		if flow.selfie != nil {
			flow.selfie.teardown()
			flow.selfie = nil
		}
	}
}

// finishLocked clears the persisted session keys and signals completion to
// the hosting context, exactly once.
func (flow *SessionFlow) finishLocked() {
	if flow.ended {
		return
	}
	flow.ended = true
	err := flow.store.ClearSession(flow.sessionId)
	if err != nil {
		flow.logger.Warn().Err(err).Msg("Cannot clear session storage")
	}
	flow.logger.Debug().Msg("Session flow finished")
	if flow.options.OnSessionEnd != nil {
		go flow.options.OnSessionEnd(SessionStatusVerified)
	}
}

// failureTerminalLocked reports whether the flow sits in a dead end the user
// cannot recover from: the fatal mount stage, or a sub-flow error with no
// retry available.
func (flow *SessionFlow) failureTerminalLocked() bool {
	if flow.stages[flow.pos].Kind == StageFatal {
		return true
	}
	return flow.document != nil && flow.document.fatal
}

// Close tears down the flow: it stops any outstanding animation timer,
// releases the camera stream and closes the local storage. Closing from a
// dead-end failure state signals a failed session to the hosting context.
// An in-flight submission is not cancelled; its result is ignored.
func (flow *SessionFlow) Close() error {
	flow.lock.Lock()
	defer flow.lock.Unlock()
	if flow.closed {
		return nil
	}
	flow.closed = true
	if !flow.ended && flow.failureTerminalLocked() {
		flow.ended = true
		if flow.options.OnSessionEnd != nil {
			go flow.options.OnSessionEnd(SessionStatusFailed)
		}
	}
	if flow.document != nil {
		flow.document.teardown()
		flow.document = nil
	}
	if flow.selfie != nil {
		flow.selfie.teardown()
		flow.selfie = nil
	}
	flow.camera.Release()
	err := flow.store.Close()
	if err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}
