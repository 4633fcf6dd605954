// Package capture defines the contracts between the flows and the media
// acquisition layer: the external recorder SDK, the camera resource, and the
// still-frame preview decoder. None of these are implemented here; the
// hosting context provides them.
package capture

import (
	"github.com/P4ST4S/session-sdk-demo-sub000/common_models"
	"github.com/P4ST4S/session-sdk-demo-sub000/utils"
	"github.com/ztrue/tracerr"
	"sync"
)

var (
	// ErrorCameraAcquire is returned when the camera stream cannot be acquired
	ErrorCameraAcquire = utils.NewVerifError("CAMERA_ACQUIRE", "cannot acquire camera stream")
	// ErrorCameraNoDevice is returned when no camera device was configured
	ErrorCameraNoDevice = utils.NewVerifError("CAMERA_NO_DEVICE", "no camera device configured")
	// ErrorPreviewDecode is returned when no still frame can be decoded from the captured media
	ErrorPreviewDecode = utils.NewVerifError("PREVIEW_DECODE", "cannot decode a preview frame from the captured media")
)

// RecorderHandlers are the callbacks a flow registers on the external capture
// SDK. The SDK calls Ready once the recorder can be triggered, and Completed
// with the captured media after a Capture call.
type RecorderHandlers struct {
	Ready     func()
	Completed func(media common_models.CapturedArtifact)
}

// Recorder is the control surface of the external capture SDK. The flows only
// consume these three contract points.
type Recorder interface {
	Bind(handlers RecorderHandlers)
	Capture() error
}

// PreviewDecoder extracts one still frame from captured media, purely for
// user review before submission. A decode failure must not block submission
// of the original media.
type PreviewDecoder interface {
	DecodeStill(media common_models.CapturedArtifact) ([]byte, error)
}

// Stream is an acquired camera/media stream. Stopping it releases the
// underlying device tracks.
type Stream interface {
	StopTracks()
}

// Device acquires the camera. It is held by exactly one capture step at a
// time.
type Device interface {
	Acquire() (Stream, error)
}

// Handle owns the single global camera resource. Acquiring stops any previous
// stream first; Release is safe to call multiple times and must be called on
// teardown regardless of outcome.
type Handle struct {
	device Device
	lock   sync.Mutex
	active Stream
}

func NewHandle(device Device) *Handle {
	return &Handle{device: device}
}

func (handle *Handle) Acquire() error {
	handle.lock.Lock()
	defer handle.lock.Unlock()
	if handle.device == nil {
		return tracerr.Wrap(ErrorCameraNoDevice)
	}
	if handle.active != nil {
		handle.active.StopTracks()
		handle.active = nil
	}
	stream, err := handle.device.Acquire()
	if err != nil {
		return tracerr.Wrap(ErrorCameraAcquire.AddDetails(err.Error()))
	}
	handle.active = stream
	return nil
}

func (handle *Handle) Release() {
	handle.lock.Lock()
	defer handle.lock.Unlock()
	if handle.active != nil {
		handle.active.StopTracks()
		handle.active = nil
	}
}

// Held reports whether a stream is currently active.
func (handle *Handle) Held() bool {
	handle.lock.Lock()
	defer handle.lock.Unlock()
	return handle.active != nil
}
