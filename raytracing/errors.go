package raytracing

import "errors"

var (
	// ErrRayTracingUnsupported is returned by Initialize when the device has
	// no ray-tracing capability. It is not retried.
	ErrRayTracingUnsupported = errors.New("raytracing: device does not support ray tracing")

	// ErrNotInitialized is returned when a structure is used before Initialize.
	ErrNotInitialized = errors.New("raytracing: acceleration structure not initialized")

	// ErrReleased is returned when a released structure is rebuilt.
	ErrReleased = errors.New("raytracing: acceleration structure released")
)
