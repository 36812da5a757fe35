package proxy

import "errors"

// ErrRefNotFound is returned when the upstream reports the media reference as
// permanently unknown. It is never retried.
var ErrRefNotFound = errors.New("proxy: media reference not found")
