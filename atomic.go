package corplink

import "sync/atomic"

type atomicInt64 struct {
	v int64
}

func (x *atomicInt64) Load() int64 { return atomic.LoadInt64(&x.v) }

func (x *atomicInt64) Store(val int64) { atomic.StoreInt64(&x.v, val) }

type atomicBool struct {
	v uint32
}

func (x *atomicBool) Load() bool { return atomic.LoadUint32(&x.v) != 0 }

func (x *atomicBool) Store(val bool) {
	if val {
		atomic.StoreUint32(&x.v, 1)
	} else {
		atomic.StoreUint32(&x.v, 0)
	}
}
