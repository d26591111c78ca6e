package config

import "errors"

// Sentinel configuration validation errors.
var (
	ErrNoCameras        = errors.New("at least one camera must be configured")
	ErrCameraIDRequired = errors.New("camera id is required")
)
