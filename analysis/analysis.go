// Package analysis submits captured artifacts to the backend analysis
// service and returns the verdict code of the resulting prediction.
package analysis

import (
	"encoding/json"
	"github.com/P4ST4S/session-sdk-demo-sub000/api_helper"
	"github.com/P4ST4S/session-sdk-demo-sub000/common_models"
	"github.com/P4ST4S/session-sdk-demo-sub000/session_store"
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
	"github.com/rs/zerolog"
	"github.com/ztrue/tracerr"
)

var (
	// ErrorSubmitMissingParameter is returned when sessionId, artifacts or documentCategory is missing
	ErrorSubmitMissingParameter = utils.NewVerifError("SUBMIT_MISSING_PARAMETER", "sessionId, artifacts and documentCategory are required")
	// ErrorSubmitMissingIdentity is returned when no persisted identity exists for the session at submission time
	ErrorSubmitMissingIdentity = utils.NewVerifError("SUBMIT_MISSING_IDENTITY", "identity must be entered before any document or selfie submission")
	// ErrorSubmissionFailed is returned when the transport to the analysis backend fails
	ErrorSubmissionFailed = utils.NewVerifError("SUBMISSION_FAILED", "analysis submission failed")
)

// Submitter builds the analysis request payload from captured artifacts plus
// the persisted identity fields, and issues the submission. It never retries:
// resubmission is always an explicit user action at the sub-flow level.
type Submitter struct {
	apiClient apiClientInterface
	store     session_store.Database
	Logger    zerolog.Logger
}

func NewSubmitter(apiUrl string, extraHeaders []api_helper.Header, store session_store.Database, logger zerolog.Logger) *Submitter {
	return &Submitter{
		apiClient: &apiClient{ApiClient: *api_helper.NewApiClient(apiUrl, extraHeaders, logger)},
		store:     store,
		Logger:    logger,
	}
}

// SubmitOptions carries the backend flags of one submission.
type SubmitOptions struct {
	Save              bool
	IncrementAnalysis bool
	ForceUpload       bool
	PersonPhotoId     string
}

// Submit sends one artifact set for analysis and returns the verdict code.
// An empty code means the backend answered without a prediction; callers
// treat it as the generic error code.
func (submitter *Submitter) Submit(sessionId string, artifacts []common_models.CapturedArtifact, category common_models.DocumentCategory, options SubmitOptions) (string, error) {
	if sessionId == "" || len(artifacts) == 0 || category == "" {
		return "", tracerr.Wrap(ErrorSubmitMissingParameter)
	}

	identity, err := submitter.readIdentity(sessionId)
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	if identity == nil {
		return "", tracerr.Wrap(ErrorSubmitMissingIdentity)
	}

	fields := map[string]string{
		"sessionId":         sessionId,
		"save":              utils.Ternary(options.Save, "true", "false"),
		"incrementAnalysis": utils.Ternary(options.IncrementAnalysis, "true", "false"),
		"forceUpload":       utils.Ternary(options.ForceUpload, "true", "false"),
		"firstName":         utils.NormalizeString(identity.FirstName),
		"lastName":          utils.NormalizeString(identity.LastName),
		"birthDate":         identity.BirthDate,
		"documentType":      string(category),
	}
	if options.PersonPhotoId != "" {
		fields["personPhoto"] = options.PersonPhotoId
	}

	var files []api_helper.FilePart
	for _, artifact := range artifacts {
		fileName, err := artifact.FileName()
		if err != nil {
			return "", tracerr.Wrap(err)
		}
		mimeType, err := artifact.MimeType()
		if err != nil {
			return "", tracerr.Wrap(err)
		}
		data, err := artifact.Decode()
		if err != nil {
			return "", tracerr.Wrap(err)
		}
		files = append(files, api_helper.FilePart{
			FieldName:   string(artifact.Side),
			FileName:    fileName,
			ContentType: mimeType,
			Data:        data,
		})
	}

	submitter.Logger.Debug().Str("category", string(category)).Int("artifacts", len(artifacts)).Msg("Submitting artifacts for analysis")
	code, err := submitter.apiClient.analyze(sessionId, fields, files)
	if err != nil {
		submitter.Logger.Warn().Err(err).Msg("Analysis submission failed")
		return "", tracerr.Wrap(ErrorSubmissionFailed.AddDetails(err.Error()))
	}
	submitter.Logger.Debug().Str("code", code).Msg("Analysis verdict received")
	return code, nil
}

func (submitter *Submitter) readIdentity(sessionId string) (*common_models.IdentityInput, error) {
	raw, err := submitter.store.Read(session_store.KeyUserInput(sessionId))
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if raw == nil {
		return nil, nil
	}
	var identity common_models.IdentityInput
	err = json.Unmarshal(raw, &identity)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &identity, nil
}
