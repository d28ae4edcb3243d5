package media

import "errors"

// Sentinel errors.
var (
	ErrAccessDenied    = errors.New("access denied")
	ErrInvalidName     = errors.New("invalid name")
	ErrFolderExists    = errors.New("folder already exists")
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrTooLarge        = errors.New("file too large")
)

// Path rejection reasons. They are logged, never returned to clients.
const (
	ReasonTraversal   = "parent_segment"
	ReasonSeparator   = "disallowed_separator"
	ReasonNullByte    = "null_byte"
	ReasonOutsideRoot = "outside_root"
	ReasonNotFound    = "not_found"
	ReasonNotDir      = "not_directory"
	ReasonNotMedia    = "not_media_file"
)

// PathError rejects a client-supplied path. Its message is always the
// generic "access denied"; Reason and Path are for server-side logs.
type PathError struct {
	Path   string
	Reason string
	Err    error
}

func (e *PathError) Error() string {
	return ErrAccessDenied.Error()
}

// Is matches ErrAccessDenied.
func (e *PathError) Is(target error) bool {
	return target == ErrAccessDenied
}

func (e *PathError) Unwrap() error {
	return e.Err
}
