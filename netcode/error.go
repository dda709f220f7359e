package netcode

import "github.com/pkg/errors"

var (
	ClosedError        = errors.New("Netcode:ClosedError")
	InactiveError      = errors.New("Netcode:InactiveError")
	InvalidConfigError = errors.New("Netcode:InvalidConfigError")
	NoRouteError       = errors.New("Netcode:NoRouteError")
	SignalError        = errors.New("Netcode:SignalError")
)
