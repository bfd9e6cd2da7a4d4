package service

import "errors"

// ErrInvalidInput marks a request rejected before any quota is consumed.
var ErrInvalidInput = errors.New("invalid input")
