//go:build !linux && !darwin && !windows

package t32

import (
	"errors"
	"runtime"
)

func load(string) (*funcs, error) {
	return nil, errors.New("remote API library not supported on " + runtime.GOOS)
}
