package activitylog

import "errors"

// ErrInvalidFormat is returned when the decompressed stream does not start
// with the "SLF0" magic, or a token's length/numeric prefix cannot be
// parsed.
var ErrInvalidFormat = errors.New("invalid activity log format")

// ErrTruncatedStream is returned when the stream ends in the middle of a
// token (a length-prefixed string/class payload that never completes).
var ErrTruncatedStream = errors.New("truncated activity log stream")
