package core

import (
	"github.com/pkg/errors"
)

var (
	// ErrLayoutCreation is returned when any native object backing a
	// binding layout could not be created.
	ErrLayoutCreation = errors.New("layout creation failed")
	// ErrTooManyBindings is returned when a descriptor collection exceeds
	// the configured binding capacity.
	ErrTooManyBindings   = errors.New("too many active bindings")
	ErrPipelineCreation  = errors.New("pipeline creation failed")
	ErrBufferCreation    = errors.New("buffer creation failed")
	ErrShaderMissing     = errors.New("required shader stage missing")
	ErrDeviceUnavailable = errors.New("no suitable device available")
)
