// Package lrserr defines the scheduler's error taxonomy as
// wrapped sentinel errors, together with a mapping to the negative POSIX
// error numbers the boundary historically returned.
package lrserr

import "errors"

var (
	// ErrInvalid: missing required field, unknown operation, or inconsistent
	// DSS vs OS device info.
	ErrInvalid = errors.New("invalid input")
	// ErrNotFound: no such medium or object.
	ErrNotFound = errors.New("no such resource")
	// ErrAmbiguous: locate matched more than one uuid.
	ErrAmbiguous = errors.New("ambiguous input")
	// ErrNoSpace: no medium fits the requested size.
	ErrNoSpace = errors.New("capacity exhausted")
	// ErrNoDevice: no compatible drive exists.
	ErrNoDevice = errors.New("no device available")
	// ErrAgain: transient contention, retry the whole request.
	ErrAgain = errors.New("transient contention")
	// ErrBusy: library rejected a drive-to-drive media move. Callers outside
	// the mount/load state machine should see this surfaced as ErrAgain.
	ErrBusy = errors.New("library motion rejected")
	// ErrIOFatal: adapter failure propagated verbatim; device is marked failed.
	ErrIOFatal = errors.New("fatal i/o or adapter failure")
)

// Code maps an error in the taxonomy to its negative POSIX errno, for
// callers that need the boundary's historical numeric contract. Returns 0
// for a nil error and -1 for an error outside the taxonomy.
func Code(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalid):
		return -22 // EINVAL
	case errors.Is(err, ErrNotFound):
		return -2 // ENOENT-ish; ENXIO for media, mapped by caller when needed
	case errors.Is(err, ErrAmbiguous):
		return -22 // EINVAL
	case errors.Is(err, ErrNoSpace):
		return -28 // ENOSPC
	case errors.Is(err, ErrNoDevice):
		return -19 // ENODEV
	case errors.Is(err, ErrAgain):
		return -11 // EAGAIN
	case errors.Is(err, ErrBusy):
		return -11 // library motion rejection surfaces to callers as EAGAIN
	case errors.Is(err, ErrIOFatal):
		return -5 // EIO
	default:
		return -1
	}
}
