// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face detection constants
const (
	// FaceDetectionThreshold is the minimum detector confidence for a usable face
	FaceDetectionThreshold = 0.9

	// MinFaceSize is the minimum face box side, in pixels, for a usable face
	MinFaceSize = 50

	// DuplicateFaceIoU is the overlap above which two detections are treated as the same face
	DuplicateFaceIoU = 0.6

	// LocatorCallTimeout bounds one websocket detection round trip when the
	// caller's context has no deadline
	LocatorCallTimeout = 5 * time.Second
)

// Live try-on constants
const (
	// LiveScaleFactor is the sticker width relative to face width while tracking
	LiveScaleFactor = 1.6

	// LiveYOffsetRatio shifts the live sticker from the face top edge, in face widths
	LiveYOffsetRatio = 0.1

	// LiveStickerAsset is the sticker shown during live try-on when none is chosen
	LiveStickerAsset = "images/oval_long_sticker.png"
)

// Processing constants
const (
	// MaxImageSize is the maximum dimension (width or height) sent to classifiers
	MaxImageSize = 800

	// MaxClassifierRetries is how often a classifier re-asks after a malformed reply
	MaxClassifierRetries = 5

	// DefaultCameraFPS is the frame rate requested from capture devices
	DefaultCameraFPS = 15

	// DefaultCameraWidth and DefaultCameraHeight match the browser preview size
	DefaultCameraWidth  = 400
	DefaultCameraHeight = 300
)

// Export constants
const (
	// ProductName prefixes exported composite filenames
	ProductName = "stylemate"

	// ExportDateLayout is the date part of exported filenames
	ExportDateLayout = "20060102"
)
