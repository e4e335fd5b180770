package symstore

import "errors"

// Static errors
var (
	// ErrUnknownKeyType indicates a key category name that is not recognized.
	ErrUnknownKeyType = errors.New("unknown key type")
)
