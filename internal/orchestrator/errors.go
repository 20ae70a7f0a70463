package orchestrator

import "errors"

// loadError signals that acquiring a model resource failed (artifact fetch,
// parse, or unsupported target).
type loadError struct{ cause error }

func (e loadError) Error() string { return "model load failed: " + e.cause.Error() }
func (e loadError) Unwrap() error { return e.cause }

// ErrLoad wraps a load failure with its underlying cause.
func ErrLoad(cause error) error { return loadError{cause: cause} }

// IsLoadError reports whether err arose while loading a model resource.
func IsLoadError(err error) bool {
	var le loadError
	return errors.As(err, &le)
}

// modelNotFoundError signals a config naming a model absent from the registry.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound constructs a modelNotFoundError.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	var me modelNotFoundError
	return errors.As(err, &me)
}

// encodingError signals that the tokenizer could not produce a usable request.
type encodingError struct{ cause error }

func (e encodingError) Error() string { return "prompt encoding failed: " + e.cause.Error() }
func (e encodingError) Unwrap() error { return e.cause }

// ErrEncoding wraps a tokenizer failure.
func ErrEncoding(cause error) error { return encodingError{cause: cause} }

// IsEncodingError reports whether err arose while encoding history.
func IsEncodingError(err error) bool {
	var ee encodingError
	return errors.As(err, &ee)
}

// engineError signals that the decoding loop itself failed.
type engineError struct{ cause error }

func (e engineError) Error() string { return "generation failed: " + e.cause.Error() }
func (e engineError) Unwrap() error { return e.cause }

// ErrEngine wraps a decode-loop failure.
func ErrEngine(cause error) error { return engineError{cause: cause} }

// IsEngineError reports whether err arose inside the decoding loop.
func IsEngineError(err error) bool {
	var ee engineError
	return errors.As(err, &ee)
}

// protocolError signals a malformed or inadmissible command.
type protocolError struct{ msg string }

func (e protocolError) Error() string { return e.msg }

// ErrProtocol constructs a protocolError.
func ErrProtocol(msg string) error { return protocolError{msg: msg} }

// IsProtocolError reports whether err indicates a command the router refused.
func IsProtocolError(err error) bool {
	var pe protocolError
	return errors.As(err, &pe)
}
