// Package syncshadow tracks the vector clocks carried by synchronization
// objects during replay.
//
// Each object has a SyncVar in shadow memory:
//
//	Release(m): L_m := C_t       (stored copy)
//	Acquire(m): C_t := C_t ⊔ L_m
//	Notify(o):  S_o := S_o ⊔ C_t
//	Await(o):   C_t := C_t ⊔ S_o
//
// Example:
//
//	// Thread 1
//	acq 1 m
//	wr  1 x 10      // write at C1
//	rel 1 m         // L_m = C1
//
//	// Thread 2
//	acq 2 m         // C2 ⊔= L_m, now ordered after thread 1's write
//	rd  2 x 20      // no race
//	rel 2 m
package syncshadow
