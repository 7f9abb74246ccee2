package session

import (
	"errors"

	"github.com/kozaktomas/stylemate/internal/capture"
	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/classify"
	"github.com/kozaktomas/stylemate/internal/compositor"
	"github.com/kozaktomas/stylemate/internal/face"
)

// Hint maps an error to a message for the user, or "" if there is none.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, face.ErrNoFaceDetected):
		return "No face detected. Look at the camera and make sure your face is well lit."
	case errors.Is(err, face.ErrFaceTooSmallOrLowConfidence):
		return "Your face is too small or unclear. Move closer to the camera and face it directly."
	case errors.Is(err, compositor.ErrAssetLoadFailure):
		return "The hairstyle image could not be loaded. Please try again."
	case errors.Is(err, capture.ErrDeviceBusy):
		return "The camera is being used by another mode. Stop it first."
	case errors.Is(err, capture.ErrDeviceAccess):
		return "The camera is not available. Check the connection and permissions, then try again."
	case errors.Is(err, compositor.ErrPreconditionViolation):
		return "Capture a photo with your face in view first."
	case errors.Is(err, ErrFrozen):
		return "Analysis is paused. Resume to continue."
	case errors.Is(err, catalog.ErrUnknownCategory), errors.Is(err, catalog.ErrInvalidStyleKey):
		return "Unknown hairstyle."
	case errors.Is(err, face.ErrLocatorFailure), errors.Is(err, classify.ErrClassifierFailure):
		return "Analysis failed. Please try again."
	}
	return ""
}
