package bsp

import "errors"

// ErrBadURI is raised when a params.uri does not have the file: scheme
// (spec §7 "BadUri").
var ErrBadURI = errors.New("uri is not a file: uri")

// errUnknownMethod is used internally to build the JSON-RPC error for an
// unrecognized method with an id (spec §4.G, code 123).
var errUnknownMethod = errors.New("unhandled method")
