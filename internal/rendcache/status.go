package rendcache

// Status is the closed result enum rendcache.spec.md §7 defines for the
// module's exposed operations: callers branch on this, never on a raw
// Go error, so the contract surface matches the spec exactly.
type Status int

const (
	OK Status = iota
	NotFound
	InvalidQuery
	NotADirectory
	BadDescriptor
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case NotFound:
		return "NOT_FOUND"
	case InvalidQuery:
		return "INVALID_QUERY"
	case NotADirectory:
		return "NOT_A_DIRECTORY"
	case BadDescriptor:
		return "BAD_DESCRIPTOR"
	default:
		return "UNKNOWN"
	}
}

// LookupResult mirrors rendcache.spec.md §4.C's {Found, NotFound,
// InvalidQuery} and §4.D's {Found, WellFormedButMissing, Malformed}.
type LookupResult int

const (
	LookupFound LookupResult = iota
	LookupNotFound
	LookupInvalidQuery
	LookupMalformed
)
