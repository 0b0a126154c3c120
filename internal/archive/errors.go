package archive

import "golang.org/x/xerrors"

// ArchivingError is produced during writes into the archive; it wraps the
// failing archive path and the underlying cause.
type ArchivingError struct {
	Path string
	Err  error
}

func (e *ArchivingError) Error() string {
	return xerrors.Errorf("archiving %s: %w", e.Path, e.Err).Error()
}

func (e *ArchivingError) Unwrap() error { return e.Err }

// UnarchivingError is produced during reads, extraction, or verification.
type UnarchivingError struct {
	Path string
	Err  error
}

func (e *UnarchivingError) Error() string {
	return xerrors.Errorf("unarchiving %s: %w", e.Path, e.Err).Error()
}

func (e *UnarchivingError) Unwrap() error { return e.Err }

// InvalidPathError is raised when an archive path fails normalization or
// (for the updater) a filesystem path fails to relativize against a
// strip prefix.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return xerrors.Errorf("invalid path %s: %s", e.Path, e.Reason).Error()
}

// IntegrityError is raised by test/verify when a stored CRC32 does not
// match the freshly computed one.
type IntegrityError struct {
	Path      string
	Want, Got uint32
}

func (e *IntegrityError) Error() string {
	return xerrors.Errorf("integrity check failed for %s: stored crc32 %#x, computed %#x", e.Path, e.Want, e.Got).Error()
}

// NotFoundError is raised when an archive path lookup fails.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return xerrors.Errorf("no such entry: %s", e.Path).Error()
}

// IllegalStateError is raised when a write is attempted on a read-only
// archive.
type IllegalStateError struct {
	Reason string
}

func (e *IllegalStateError) Error() string {
	return xerrors.Errorf("illegal state: %s", e.Reason).Error()
}

// StorageError wraps a failure surfaced by the underlying internal/h5
// storage seam.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return xerrors.Errorf("storage: %s: %w", e.Op, e.Err).Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// ErrorStrategy is consulted for every failure the archiver surfaces; it
// decides whether an operation aborts or continues, following spec §7.
type ErrorStrategy interface {
	// DealWithError is called on a hard failure. Returning non-nil aborts
	// the current operation; returning nil means "continue, the offending
	// entry has been dropped".
	DealWithError(err error) error
	// Warning is called for a soft failure (e.g. deleting an unknown
	// path) that never aborts regardless of strategy.
	Warning(msg string)
}

// FailFast is the default ErrorStrategy: it rethrows every error.
type FailFast struct{}

func (FailFast) DealWithError(err error) error { return err }
func (FailFast) Warning(msg string)            {}

// BestEffort logs and continues past errors (batch mode), following the
// "log and continue" alternative spec §7 describes. Log is the function
// used to report both dropped errors and warnings; pass a *log.Logger's
// Printf-style func, or nil to discard.
type BestEffort struct {
	Log func(format string, args ...interface{})
}

func (s BestEffort) DealWithError(err error) error {
	if s.Log != nil {
		s.Log("continuing past error: %v", err)
	}
	return nil
}

func (s BestEffort) Warning(msg string) {
	if s.Log != nil {
		s.Log("warning: %s", msg)
	}
}
