package domain

import "errors"

var (
	// ErrDeviceNotFound means no attached device matched the identifiers.
	ErrDeviceNotFound = errors.New("geiger device not found")
	// ErrLink is a transport-level failure of a single request.
	ErrLink = errors.New("device link error")
	// ErrInvalidArgument is a value outside what the protocol can carry.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrOutOfRange is a value outside the physical bounds of the device.
	ErrOutOfRange = errors.New("value out of range")
	// ErrSink is a failed delivery to one sink.
	ErrSink = errors.New("sink error")
	// ErrConfiguration prevents the monitor from starting.
	ErrConfiguration = errors.New("configuration error")
)
