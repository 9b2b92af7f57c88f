// Package rawsync implements blocking synchronization primitives directly on
// top of futex words.
//
// Every primitive is generic over a [futex.Scope]. The scope decides whether
// the kernel wait queue is private to the process or shared across every
// process mapping the same memory; it changes nothing else. The root package
// and package shm export the two instantiations.
//
// The zero value of each primitive is ready to use, and its memory is
// nothing but the documented 32-bit words, so a zero-filled region of shared
// memory can be reinterpreted as any of them.
package rawsync
