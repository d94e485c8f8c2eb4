package bsp

import (
	"fmt"
	"net/url"
)

// pathFromURI extracts a filesystem path from a document URI. Only the
// file: scheme is supported (spec §7 "BadUri (non-file: scheme)").
func pathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrBadURI, uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: %s", ErrBadURI, uri)
	}
	return u.Path, nil
}
