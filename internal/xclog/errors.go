package xclog

import "errors"

// errMalformedSection is wrapped with section-specific context and logged
// as a warning (spec §4.B: "a malformed section is skipped with a warning
// to stderr; the parser continues").
var errMalformedSection = errors.New("malformed log section")
