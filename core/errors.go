package core

import "errors"

// ErrConfiguration marks a problem that only an operator can fix, such as a
// missing provider credential or a duplicate tool name. It is never retried.
var ErrConfiguration = errors.New("configuration error")
