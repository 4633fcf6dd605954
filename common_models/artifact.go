package common_models

import (
	"encoding/base64"
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
	"github.com/ztrue/tracerr"
	"strings"
)

var (
	// ErrorArtifactNotDataURL is returned when an artifact payload is not a base64 data URL
	ErrorArtifactNotDataURL = utils.NewVerifError("ARTIFACT_NOT_DATA_URL", "artifact payload must be a base64 data URL")
	// ErrorArtifactUnknownMimeType is returned when the MIME type cannot be resolved from the artifact encoding
	ErrorArtifactUnknownMimeType = utils.NewVerifError("ARTIFACT_UNKNOWN_MIME_TYPE", "cannot resolve a file extension from the artifact MIME type")
	// ErrorArtifactBadMimeClass is returned when the artifact is neither an image, a video, nor a PDF
	ErrorArtifactBadMimeClass = utils.NewVerifError("ARTIFACT_BAD_MIME_CLASS", "artifact must be an image, a video or a PDF")
	// ErrorArtifactTooLarge is returned when the decoded artifact exceeds the size limit for its capture source
	ErrorArtifactTooLarge = utils.NewVerifError("ARTIFACT_TOO_LARGE", "artifact exceeds the maximum allowed size")
	// ErrorArtifactTooSmall is returned when the decoded artifact is too small to be a real capture
	ErrorArtifactTooSmall = utils.NewVerifError("ARTIFACT_TOO_SMALL", "artifact payload is too small")
)

const (
	// MaxCameraArtifactSize is the limit for camera captures.
	MaxCameraArtifactSize = 10 << 20
	// MaxUploadArtifactSize is the per-file limit for manual uploads.
	MaxUploadArtifactSize = 5 << 20
	// MinArtifactSize rejects trivially small payloads that cannot be a capture.
	MinArtifactSize = 64
)

// CapturedArtifact is one captured image or video payload, as produced by the
// capture UI. The payload is a data URL so the MIME type travels with the
// bytes, as in `data:image/jpeg;base64,...`.
type CapturedArtifact struct {
	Side    ArtifactSide  `json:"side"`
	Payload string        `json:"payload"`
	Source  CaptureSource `json:"source"`
}

var mimeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
	"video/webm":      ".webm",
	"video/mp4":       ".mp4",
}

// MimeType extracts the MIME type embedded in the data URL.
func (artifact CapturedArtifact) MimeType() (string, error) {
	if !strings.HasPrefix(artifact.Payload, "data:") {
		return "", tracerr.Wrap(ErrorArtifactNotDataURL)
	}
	semicolon := strings.Index(artifact.Payload, ";")
	if semicolon < 0 {
		return "", tracerr.Wrap(ErrorArtifactNotDataURL)
	}
	mimeType := artifact.Payload[len("data:"):semicolon]
	if mimeType == "" {
		return "", tracerr.Wrap(ErrorArtifactUnknownMimeType)
	}
	return mimeType, nil
}

// FileName derives the multipart filename for this artifact from its side and
// its embedded MIME type.
func (artifact CapturedArtifact) FileName() (string, error) {
	mimeType, err := artifact.MimeType()
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	extension, ok := mimeExtensions[mimeType]
	if !ok {
		return "", tracerr.Wrap(ErrorArtifactUnknownMimeType.AddDetails(mimeType))
	}
	return string(artifact.Side) + extension, nil
}

// Decode returns the raw bytes of the artifact payload.
func (artifact CapturedArtifact) Decode() ([]byte, error) {
	comma := strings.Index(artifact.Payload, ",")
	if comma < 0 || !strings.Contains(artifact.Payload[:comma], ";base64") {
		return nil, tracerr.Wrap(ErrorArtifactNotDataURL)
	}
	data, err := base64.StdEncoding.DecodeString(artifact.Payload[comma+1:])
	if err != nil {
		return nil, tracerr.Wrap(ErrorArtifactNotDataURL.AddDetails(err.Error()))
	}
	return data, nil
}

// Validate checks MIME class and size limits for the artifact's capture
// source. Violations must block the sub-flow transition to Processing.
func (artifact CapturedArtifact) Validate() error {
	mimeType, err := artifact.MimeType()
	if err != nil {
		return tracerr.Wrap(err)
	}
	isImage := strings.HasPrefix(mimeType, "image/")
	isVideo := strings.HasPrefix(mimeType, "video/")
	if !isImage && !isVideo && mimeType != "application/pdf" {
		return tracerr.Wrap(ErrorArtifactBadMimeClass.AddDetails(mimeType))
	}
	data, err := artifact.Decode()
	if err != nil {
		return tracerr.Wrap(err)
	}
	maxSize := utils.Ternary(artifact.Source == CaptureSourceUpload, MaxUploadArtifactSize, MaxCameraArtifactSize)
	if len(data) > maxSize {
		return tracerr.Wrap(ErrorArtifactTooLarge)
	}
	if len(data) < MinArtifactSize {
		return tracerr.Wrap(ErrorArtifactTooSmall)
	}
	return nil
}
