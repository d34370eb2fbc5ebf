package patcher

import "errors"

// Error kinds reported by the patcher. Every one of them aborts the run;
// match them with errors.Is.
var (
	ErrMalformedArgument = errors.New("malformed subscription argument")
	ErrDuplicateTag      = errors.New("duplicate subscription tag")
	ErrInvalidURLScheme  = errors.New("invalid subscription url scheme")
	ErrFetchFailed       = errors.New("failed to fetch subscription")
	ErrNoProxyURLFound   = errors.New("no proxy URL found")
	ErrMalformedProxyURL = errors.New("malformed proxy URL")
	ErrRestartFailed     = errors.New("restart command failed")
)
