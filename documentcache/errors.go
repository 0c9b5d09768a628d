package documentcache

import "errors"

var (
	// ErrNotFound reports that the store confirmed no record matches a
	// well-formed identifier. It is a cacheable outcome, not a transport
	// failure, and is distinct from ErrInvalidID.
	ErrNotFound = errors.New("documentcache: record not found")

	// ErrInvalidID reports that an identifier candidate could not be
	// canonicalized into an ObjectID. Lookups fail with it before any
	// cache or store IO happens.
	ErrInvalidID = errors.New("documentcache: invalid identifier")

	// ErrInvalidSelector reports that a DeleteFromCache selector is
	// neither an identifier nor a normalizable filter.
	ErrInvalidSelector = errors.New("documentcache: invalid selector")

	// ErrInvalidFilter reports that a query filter could not be
	// normalized into a BSON document.
	ErrInvalidFilter = errors.New("documentcache: invalid filter")
)
