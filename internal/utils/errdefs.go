package utils // nolint:revive // utils is an acceptable name for internal utility package

import "errors"

// Sentinel errors used for branching and classification across the application.
//
// These errors follow Go's sentinel error pattern for programmatic error handling.
// They enable callers to use errors.Is() to check error categories regardless of
// wrapping:
//
//	if errors.Is(err, utils.ErrJobNotFound) {
//	    // Respond with 404
//	}
//
// When wrapping these errors, always use %w to preserve the error chain. Rich
// errors that carry extra payload (exit codes, script indexes) are struct types
// in their own packages whose Unwrap() returns one of these sentinels.
var (
	// ErrCanceled indicates the operation was canceled, typically via context
	// cancellation after an operator requested job termination.
	ErrCanceled = errors.New("operation canceled")

	// ErrBadConnectionString indicates a connection string that could not be
	// tokenized into key/value pairs or is missing a required field.
	ErrBadConnectionString = errors.New("invalid connection string")

	// ErrConnectionFailed indicates all connection strategies were exhausted.
	// The wrapped message carries the last attempt's error.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrProvisionFailed indicates the target database could not be looked up
	// or created through the server's administrative database.
	ErrProvisionFailed = errors.New("target provisioning failed")

	// ErrExternalTool indicates the archive tool is missing, or ran and
	// returned a nonzero exit code. The two cases carry distinct messages.
	ErrExternalTool = errors.New("archive tool failure")

	// ErrScriptFailed indicates a post-migration script failed. The wrapping
	// error carries the 1-based script index and a preview of the script text.
	ErrScriptFailed = errors.New("configuration script failed")

	// ErrValidation indicates a replication request referenced a connection
	// that is not flagged as a valid replication target.
	ErrValidation = errors.New("validation failed")

	// ErrJobNotFound indicates an unknown replication job id.
	ErrJobNotFound = errors.New("replication job not found")

	// ErrRecordNotFound indicates an unknown saved connection, script, or
	// replication configuration id.
	ErrRecordNotFound = errors.New("stored record not found")

	// ErrCrypto indicates a malformed or tampered encrypted credential token.
	// Decryption never silently returns garbage as if it were valid plaintext.
	ErrCrypto = errors.New("credential decryption failed")
)
