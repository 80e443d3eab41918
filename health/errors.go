package health

import "errors"

var (
	ErrCheckTimeout     = errors.New("health: check did not finish in time")
	ErrCheckerNotFound  = errors.New("health: no checker registered under that name")
	ErrBackendUnhealthy = errors.New("health: cache backend probe failed")
)
