//go:build !linux

package input

import (
	"errors"
	"runtime"
)

// ErrNoPlatformBackend is returned where no native backend is implemented.
var ErrNoPlatformBackend = errors.New("no native input backend for " + runtime.GOOS)

// NewPlatformInjector opens the native backend for this OS.
func NewPlatformInjector() (Injector, error) {
	return nil, ErrNoPlatformBackend
}
