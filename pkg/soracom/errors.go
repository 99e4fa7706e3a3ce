package soracom

import "errors"

// ErrAuth indicates the API rejected the auth key id and secret pair.
var ErrAuth = errors.New("failed to authenticate with auth key id and secret given")

// ErrInvalidLimit indicates a data entries limit outside of [1, 1000].
var ErrInvalidLimit = errors.New("invalid limit, should be from 1 to 1000")
