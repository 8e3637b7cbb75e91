package pinger

import "errors"

// ErrPingerAlreadyRegistered is returned when a component name is registered twice.
var ErrPingerAlreadyRegistered = errors.New("pinger already registered")
