package core

import (
	"github.com/cockroachdb/errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrNotInitialized   = errors.New("not initialized")
	ErrUnknown          = errors.New("unknown")
)

// Assert panics with an assertion failure when cond does not hold.
// Reserved for programmer errors: double frees, exhausted fixed-size pools, misuse of a builder.
func Assert(cond bool, format string, args ...interface{}) {
	if cond {
		return
	}
	err := errors.AssertionFailedWithDepthf(1, format, args...)
	LogError("%v", err)
	panic(err)
}
