package descriptor

import "errors"

var (
	errBadLength       = errors.New("descriptor: decoded value has wrong length")
	errMalformedHeader = errors.New("descriptor: malformed descriptor header")
	errMissingKey      = errors.New("descriptor: missing permanent key")
	errMissingTime     = errors.New("descriptor: missing or malformed publication-time")
)
