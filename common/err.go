package common

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ClosedError   = errors.New("Lockstep:ClosedError")
	CanceledError = errors.New("Lockstep:CanceledError")
	TimeoutError  = errors.New("Lockstep:TimeoutError")
)

func Or(l error, r error) error {
	if l != nil {
		return l
	} else {
		return r
	}
}

// Panics if the condition does not hold.  Reserved for contract
// violations that indicate a programming error.
func Assert(cond bool, format string, vals ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, vals...))
	}
}

func IsCanceled(cancel <-chan struct{}) bool {
	select {
	default:
		return false
	case <-cancel:
		return true
	}
}
