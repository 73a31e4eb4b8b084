package mqtt

import "errors"

// ErrInvalidRequest is returned for malformed run requests.
var ErrInvalidRequest = errors.New("invalid run request")
