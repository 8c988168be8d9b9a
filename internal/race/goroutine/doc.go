// Package goroutine keeps per-thread happens-before and lock state for
// drivers that feed the detector.
//
// A Context couples a thread's vector clock with its held-lock tracker and
// implements the clock rules of the synchronization events:
//
//	Acquire(m): C := C ⊔ L_m
//	Release(m): L_m := C; C[t]++
//	Fork(u):    C_u := C_u ⊔ C; C[t]++
//	Join(u):    C := C ⊔ C_u; C_u[u]++
//
// Memory accesses do not advance the clock, so consecutive accesses between
// two synchronization events share one history tick.
package goroutine
