package flow

import (
	"github.com/P4ST4S/session-sdk-demo-sub000/analysis"
	"github.com/P4ST4S/session-sdk-demo-sub000/capture"
	"github.com/P4ST4S/session-sdk-demo-sub000/common_models"
	"github.com/P4ST4S/session-sdk-demo-sub000/session_api"
	"github.com/P4ST4S/session-sdk-demo-sub000/session_store"
	"github.com/P4ST4S/session-sdk-demo-sub000/test_utils"
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ztrue/tracerr"
	"io"
	"sync"
	"testing"
	"time"
)

func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

type testClock struct {
	lock sync.Mutex
	now  time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)}
}

func (clock *testClock) Now() time.Time {
	clock.lock.Lock()
	defer clock.lock.Unlock()
	return clock.now
}

func (clock *testClock) Advance(d time.Duration) {
	clock.lock.Lock()
	defer clock.lock.Unlock()
	clock.now = clock.now.Add(d)
}

type fakeSessionAPI struct {
	lock        sync.Mutex
	template    *session_api.SessionTemplate
	templateErr error
	saveErr     error
	userInputs  []common_models.IdentityInput
	contacts    []common_models.ContactInfo
}

func (api *fakeSessionAPI) GetTemplate(_ string) (*session_api.SessionTemplate, error) {
	api.lock.Lock()
	defer api.lock.Unlock()
	return api.template, api.templateErr
}

func (api *fakeSessionAPI) SaveUserInput(_ string, input common_models.IdentityInput) error {
	api.lock.Lock()
	defer api.lock.Unlock()
	if api.saveErr != nil {
		return api.saveErr
	}
	api.userInputs = append(api.userInputs, input)
	return nil
}

func (api *fakeSessionAPI) SaveContactInfo(_ string, info common_models.ContactInfo) error {
	api.lock.Lock()
	defer api.lock.Unlock()
	if api.saveErr != nil {
		return api.saveErr
	}
	api.contacts = append(api.contacts, info)
	return nil
}

type submitCall struct {
	sessionId string
	artifacts []common_models.CapturedArtifact
	category  common_models.DocumentCategory
	options   analysis.SubmitOptions
}

type fakeSubmitter struct {
	lock  sync.Mutex
	code  string
	err   error
	calls []submitCall
}

func (submitter *fakeSubmitter) Submit(sessionId string, artifacts []common_models.CapturedArtifact, category common_models.DocumentCategory, options analysis.SubmitOptions) (string, error) {
	submitter.lock.Lock()
	defer submitter.lock.Unlock()
	submitter.calls = append(submitter.calls, submitCall{sessionId: sessionId, artifacts: artifacts, category: category, options: options})
	return submitter.code, submitter.err
}

func (submitter *fakeSubmitter) callCount() int {
	submitter.lock.Lock()
	defer submitter.lock.Unlock()
	return len(submitter.calls)
}

func (submitter *fakeSubmitter) lastCall() submitCall {
	submitter.lock.Lock()
	defer submitter.lock.Unlock()
	return submitter.calls[len(submitter.calls)-1]
}

func (submitter *fakeSubmitter) setOutcome(code string, err error) {
	submitter.lock.Lock()
	defer submitter.lock.Unlock()
	submitter.code = code
	submitter.err = err
}

type fakeRecorder struct {
	lock       sync.Mutex
	handlers   capture.RecorderHandlers
	captures   int
	captureErr error
}

func (recorder *fakeRecorder) Bind(handlers capture.RecorderHandlers) {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()
	recorder.handlers = handlers
}

func (recorder *fakeRecorder) Capture() error {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()
	if recorder.captureErr != nil {
		return recorder.captureErr
	}
	recorder.captures++
	return nil
}

func (recorder *fakeRecorder) boundHandlers() capture.RecorderHandlers {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()
	return recorder.handlers
}

type fakeDecoder struct {
	frame []byte
	err   error
}

func (decoder *fakeDecoder) DecodeStill(_ common_models.CapturedArtifact) ([]byte, error) {
	return decoder.frame, decoder.err
}

type fakeStream struct{ stopped int }

func (stream *fakeStream) StopTracks() { stream.stopped++ }

type fakeDevice struct{ err error }

func (device *fakeDevice) Acquire() (capture.Stream, error) {
	if device.err != nil {
		return nil, device.err
	}
	return &fakeStream{}, nil
}

type testEnv struct {
	flow      *SessionFlow
	api       *fakeSessionAPI
	submitter *fakeSubmitter
	store     *session_store.MemoryStorage
	clock     *testClock
	recorder  *fakeRecorder
	decoder   *fakeDecoder
	status    chan SessionStatus
	errs      chan *utils.SerializableError
}

func newTestFlow(t *testing.T, configure func(options *InitializeOptions, env *testEnv)) *testEnv {
	env := &testEnv{
		api:       &fakeSessionAPI{},
		submitter: &fakeSubmitter{code: "1.0"},
		store:     &session_store.MemoryStorage{},
		clock:     newTestClock(),
		recorder:  &fakeRecorder{},
		decoder:   &fakeDecoder{frame: []byte("still-frame")},
		status:    make(chan SessionStatus, 2),
		errs:      make(chan *utils.SerializableError, 4),
	}
	options := &InitializeOptions{
		SessionToken:   signTestToken(t, jwt.MapClaims{"sessionId": "session-test-id"}),
		Database:       env.store,
		LogLevel:       zerolog.DebugLevel,
		LogWriter:      io.Discard,
		InstanceName:   t.Name(),
		Platform:       "go-tests",
		Recorder:       env.recorder,
		PreviewDecoder: env.decoder,
		CameraDevice:   &fakeDevice{},
		OnSessionEnd:   func(status SessionStatus) { env.status <- status },
		OnError:        func(err *utils.SerializableError) { env.errs <- err },
		AnimationTick:  time.Millisecond,
		Now:            env.clock.Now,
		API:            env.api,
		Submitter:      env.submitter,
	}
	if configure != nil {
		configure(options, env)
	}
	flow, err := Initialize(options)
	require.NoError(t, err)
	env.flow = flow
	t.Cleanup(func() { _ = flow.Close() })
	return env
}

func (env *testEnv) advancePastOTP(t *testing.T) {
	require.NoError(t, env.flow.AcceptConsent())
	require.NoError(t, env.flow.SubmitIdentity(common_models.IdentityInput{FirstName: "Jean", LastName: "Dupont", BirthDate: "2000-01-01"}))
	require.NoError(t, env.flow.SubmitContact(common_models.ContactInfo{Email: "jean@test.fr", PhoneNumber: "0612345678"}))
	require.NoError(t, env.flow.EnterOTP("123456"))
}

func requireDocumentState(t *testing.T, doc *DocumentFlow, state DocumentState) {
	require.Eventually(t, func() bool {
		return doc.State() == state
	}, time.Second, time.Millisecond)
}

func requireSelfieState(t *testing.T, selfie *SelfieFlow, state SelfieState) {
	require.Eventually(t, func() bool {
		return selfie.State() == state
	}, time.Second, time.Millisecond)
}

func TestInitialize(t *testing.T) {
	t.Parallel()
	t.Run("requires a database", func(t *testing.T) {
		_, err := Initialize(&InitializeOptions{SessionToken: "whatever", LogWriter: io.Discard})
		assert.ErrorIs(t, err, ErrorDatabaseRequired)
	})
	t.Run("unusable token halts at mount", func(t *testing.T) {
		store := &session_store.MemoryStorage{}
		flow, err := Initialize(&InitializeOptions{SessionToken: "not-a-jwt", Database: store, LogWriter: io.Discard})
		require.NoError(t, err)
		assert.Equal(t, StageFatal, flow.CurrentStage())
		assert.ErrorIs(t, flow.FatalError(), ErrorNoSessionId)
		assert.Equal(t, "", flow.SessionId())
		assert.ErrorIs(t, flow.AcceptConsent(), ErrorInvalidTransition)
	})
	t.Run("token without session claim halts at mount", func(t *testing.T) {
		store := &session_store.MemoryStorage{}
		flow, err := Initialize(&InitializeOptions{
			SessionToken: signTestToken(t, jwt.MapClaims{"foo": "bar"}),
			Database:     store,
			LogWriter:    io.Discard,
		})
		require.NoError(t, err)
		assert.Equal(t, StageFatal, flow.CurrentStage())
	})
	t.Run("falls back to default stages without template", func(t *testing.T) {
		env := newTestFlow(t, nil)
		assert.Equal(t, "session-test-id", env.flow.SessionId())
		assert.Equal(t, StageConsent, env.flow.CurrentStage())
	})
	t.Run("falls back to default stages when the template fetch fails", func(t *testing.T) {
		env := newTestFlow(t, func(options *InitializeOptions, env *testEnv) {
			env.api.templateErr = tracerr.Wrap(test_utils.ErrorSyntheticTestError)
		})
		assert.Equal(t, StageConsent, env.flow.CurrentStage())
	})
	t.Run("unknown stage type in template is fatal", func(t *testing.T) {
		env := newTestFlow(t, func(options *InitializeOptions, env *testEnv) {
			env.api.template = &session_api.SessionTemplate{Nodes: []session_api.TemplateNode{{Type: "hologram-check"}}}
		})
		assert.Equal(t, StageFatal, env.flow.CurrentStage())
		assert.ErrorIs(t, env.flow.FatalError(), ErrorUnknownStageType)
	})
	t.Run("unknown document category in template is fatal", func(t *testing.T) {
		env := newTestFlow(t, func(options *InitializeOptions, env *testEnv) {
			env.api.template = &session_api.SessionTemplate{Nodes: []session_api.TemplateNode{{Type: "document", Category: "dna-sample"}}}
		})
		assert.Equal(t, StageFatal, env.flow.CurrentStage())
		assert.ErrorIs(t, env.flow.FatalError(), ErrorUnknownDocumentCategory)
	})
	t.Run("template drives the stage order and caches options", func(t *testing.T) {
		env := newTestFlow(t, func(options *InitializeOptions, env *testEnv) {
			env.api.template = &session_api.SessionTemplate{Nodes: []session_api.TemplateNode{
				{Type: "document", Category: "id-card", Options: []string{"passport"}},
				{Type: "end"},
			}}
		})
		assert.Equal(t, StageDocument, env.flow.CurrentStage())
		doc := env.flow.Document()
		require.NotNil(t, doc)
		require.Len(t, doc.Options(), 1)
		assert.Equal(t, "passport", doc.Options()[0].Id)
		assert.False(t, doc.Options()[0].HasTwoSides)
		cached, err := env.store.Read(session_store.KeyCategoryOptions(common_models.DocumentCategoryIdCard, "session-test-id"))
		require.NoError(t, err)
		assert.NotNil(t, cached)
	})
	t.Run("template without end node gets one appended", func(t *testing.T) {
		env := newTestFlow(t, func(options *InitializeOptions, env *testEnv) {
			env.api.template = &session_api.SessionTemplate{Nodes: []session_api.TemplateNode{{Type: "consent"}}}
		})
		require.NoError(t, env.flow.AcceptConsent())
		assert.Equal(t, StageEnd, env.flow.CurrentStage())
	})
}

func TestIdentityStage(t *testing.T) {
	t.Parallel()
	t.Run("identity cannot be submitted before consent", func(t *testing.T) {
		env := newTestFlow(t, nil)
		err := env.flow.SubmitIdentity(common_models.IdentityInput{FirstName: "Jean", LastName: "Dupont", BirthDate: "2000-01-01"})
		assert.ErrorIs(t, err, ErrorInvalidTransition)
	})
	t.Run("names are required", func(t *testing.T) {
		env := newTestFlow(t, nil)
		require.NoError(t, env.flow.AcceptConsent())
		err := env.flow.SubmitIdentity(common_models.IdentityInput{FirstName: "  ", LastName: "Dupont", BirthDate: "2000-01-01"})
		assert.ErrorIs(t, err, ErrorMissingName)
		assert.Equal(t, StageIdentityForm, env.flow.CurrentStage())
	})
	t.Run("underage subject is rejected", func(t *testing.T) {
		env := newTestFlow(t, nil) // clock pinned at 2024-06-15
		require.NoError(t, env.flow.AcceptConsent())
		err := env.flow.SubmitIdentity(common_models.IdentityInput{FirstName: "Jean", LastName: "Dupont", BirthDate: "2006-06-16"})
		assert.ErrorIs(t, err, utils.ErrorUnderageSubject)
		assert.Equal(t, StageIdentityForm, env.flow.CurrentStage())
	})
	t.Run("exactly eighteen passes", func(t *testing.T) {
		env := newTestFlow(t, nil)
		require.NoError(t, env.flow.AcceptConsent())
		err := env.flow.SubmitIdentity(common_models.IdentityInput{FirstName: "Jean", LastName: "Dupont", BirthDate: "2006-06-15"})
		assert.NoError(t, err)
		assert.Equal(t, StageContactForm, env.flow.CurrentStage())
	})
	t.Run("valid identity is normalized, persisted and sent", func(t *testing.T) {
		env := newTestFlow(t, nil)
		require.NoError(t, env.flow.AcceptConsent())
		err := env.flow.SubmitIdentity(common_models.IdentityInput{FirstName: " Jean ", LastName: "Dupont", BirthDate: "2000-01-01"})
		require.NoError(t, err)
		require.Len(t, env.api.userInputs, 1)
		assert.Equal(t, "Jean", env.api.userInputs[0].FirstName)
		stored, err := env.store.Read(session_store.KeyUserInput("session-test-id"))
		require.NoError(t, err)
		assert.Contains(t, string(stored), "Jean")
	})
	t.Run("backend failure leaves the stage unchanged", func(t *testing.T) {
		env := newTestFlow(t, func(options *InitializeOptions, env *testEnv) {
			env.api.saveErr = tracerr.Wrap(test_utils.ErrorSyntheticTestError)
		})
		require.NoError(t, env.flow.AcceptConsent())
		err := env.flow.SubmitIdentity(common_models.IdentityInput{FirstName: "Jean", LastName: "Dupont", BirthDate: "2000-01-01"})
		assert.Error(t, err)
		assert.Equal(t, StageIdentityForm, env.flow.CurrentStage())
	})
}

func TestContactStage(t *testing.T) {
	t.Parallel()
	env := newTestFlow(t, nil)
	require.NoError(t, env.flow.AcceptConsent())
	require.NoError(t, env.flow.SubmitIdentity(common_models.IdentityInput{FirstName: "Jean", LastName: "Dupont", BirthDate: "2000-01-01"}))

	err := env.flow.SubmitContact(common_models.ContactInfo{Email: "not-an-email", PhoneNumber: "0612345678"})
	assert.ErrorIs(t, err, utils.ErrorInvalidEmail)
	err = env.flow.SubmitContact(common_models.ContactInfo{Email: "jean@test.fr", PhoneNumber: "12345"})
	assert.ErrorIs(t, err, utils.ErrorInvalidPhoneNumber)
	assert.Equal(t, StageContactForm, env.flow.CurrentStage())

	require.NoError(t, env.flow.SubmitContact(common_models.ContactInfo{Email: "jean@test.fr", PhoneNumber: "0612345678"}))
	assert.Equal(t, StageOTP, env.flow.CurrentStage())
	require.Len(t, env.api.contacts, 1)
	stored, err := env.store.Read(session_store.KeyContactInfo("session-test-id"))
	require.NoError(t, err)
	assert.Contains(t, string(stored), "jean@test.fr")
}

func TestSessionBack(t *testing.T) {
	t.Parallel()
	env := newTestFlow(t, nil)
	env.flow.Back() // no-op on the first stage
	assert.Equal(t, StageConsent, env.flow.CurrentStage())
	require.NoError(t, env.flow.AcceptConsent())
	assert.Equal(t, StageIdentityForm, env.flow.CurrentStage())
	env.flow.Back()
	assert.Equal(t, StageConsent, env.flow.CurrentStage())
}

func TestSessionEnd(t *testing.T) {
	t.Parallel()
	env := newTestFlow(t, func(options *InitializeOptions, env *testEnv) {
		env.api.template = &session_api.SessionTemplate{Nodes: []session_api.TemplateNode{{Type: "consent"}, {Type: "end"}}}
	})
	require.NoError(t, env.flow.AcceptConsent())
	assert.Equal(t, StageEnd, env.flow.CurrentStage())
	select {
	case status := <-env.status:
		assert.Equal(t, SessionStatusVerified, status)
	case <-time.After(time.Second):
		t.Fatal("session end was not signalled")
	}
	select {
	case <-env.status:
		t.Fatal("session end was signalled twice")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSessionClose(t *testing.T) {
	t.Parallel()
	env := newTestFlow(t, nil)
	require.NoError(t, env.flow.Close())
	assert.ErrorIs(t, env.flow.AcceptConsent(), ErrorSessionClosed)
	assert.NoError(t, env.flow.Close()) // idempotent

	// an open, healthy flow that gets closed is abandoned, not failed
	select {
	case status := <-env.status:
		t.Fatalf("unexpected session end signal: %s", status)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestFatalMountReportsSerializedError(t *testing.T) {
	t.Parallel()
	errs := make(chan *utils.SerializableError, 1)
	flow, err := Initialize(&InitializeOptions{
		SessionToken: "not-a-jwt",
		Database:     &session_store.MemoryStorage{},
		LogWriter:    io.Discard,
		OnError:      func(serialized *utils.SerializableError) { errs <- serialized },
	})
	require.NoError(t, err)
	require.Equal(t, StageFatal, flow.CurrentStage())
	select {
	case serialized := <-errs:
		assert.Equal(t, ErrorNoSessionId.Code, serialized.Code)
		assert.Equal(t, "GOSDK_"+ErrorNoSessionId.Code, serialized.Id)
		assert.NotEmpty(t, serialized.Details)
		assert.NotEmpty(t, serialized.Stack)
	case <-time.After(time.Second):
		t.Fatal("no serialized error was reported")
	}
}

func TestCloseFromFatalStateSignalsFailure(t *testing.T) {
	t.Parallel()
	status := make(chan SessionStatus, 2)
	flow, err := Initialize(&InitializeOptions{
		SessionToken: "not-a-jwt",
		Database:     &session_store.MemoryStorage{},
		LogWriter:    io.Discard,
		OnSessionEnd: func(s SessionStatus) { status <- s },
	})
	require.NoError(t, err)
	require.Equal(t, StageFatal, flow.CurrentStage())
	require.NoError(t, flow.Close())
	select {
	case s := <-status:
		assert.Equal(t, SessionStatusFailed, s)
	case <-time.After(time.Second):
		t.Fatal("closing a fatal flow did not signal a failed session")
	}
	// signalled once, even if closed again
	require.NoError(t, flow.Close())
	select {
	case <-status:
		t.Fatal("session end was signalled twice")
	case <-time.After(20 * time.Millisecond):
	}
}
