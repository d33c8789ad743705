package models

import "errors"

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrParse            = errors.New("snapshot parse error")
	ErrTransport        = errors.New("transport error")
	ErrCapacityExceeded = errors.New("node capacity exceeded")
	ErrDeploymentFailed = errors.New("deployment failed")
)

// ErrorKind returns a short label for the error class of err, suitable for
// logs and metric labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrDeploymentFailed):
		return "deployment_failed"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
