package domain

import "errors"

// Sentinel errors of the conversion pipeline. Wrap them with fmt.Errorf("%w: ...")
// and match with errors.Is.
var (
	// ErrInvalidInput covers missing Markdown and malformed request bodies.
	// It is reported before any engine resource is touched.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRenderFailure means the engine could not load the document or print it.
	ErrRenderFailure = errors.New("render failure")
	// ErrEngineUnavailable means the shared browser could not be started or died.
	ErrEngineUnavailable = errors.New("render engine unavailable")
)
