package concurrent

import "sync/atomic"

type AtomicBool int32

func NewAtomicBool() *AtomicBool {
	var ret AtomicBool
	return &ret
}

func (ab *AtomicBool) Get() bool {
	return atomic.LoadInt32((*int32)(ab)) == 1
}

func (ab *AtomicBool) Set(b bool) {
	if b {
		atomic.StoreInt32((*int32)(ab), 1)
	} else {
		atomic.StoreInt32((*int32)(ab), 0)
	}
}

func (ab *AtomicBool) Swap(e bool, t bool) bool {
	var src int32
	var dst int32

	if e {
		src = 1
	}
	if t {
		dst = 1
	}

	return atomic.CompareAndSwapInt32((*int32)(ab), src, dst)
}

type AtomicCounter int64

func NewAtomicCounter() *AtomicCounter {
	var ret AtomicCounter
	return &ret
}

func (a *AtomicCounter) Get() int {
	return int(atomic.LoadInt64((*int64)(a)))
}

func (a *AtomicCounter) Inc() int {
	return int(atomic.AddInt64((*int64)(a), 1))
}

func (a *AtomicCounter) Dec() int {
	return int(atomic.AddInt64((*int64)(a), -1))
}
