// Package potency memoizes expensive computations into a durable backend.
// A result is keyed by the namespace of the store plus the ordered
// parameters of the call, so a restarted process picks up where the last
// one left off.
//
// Components:
//   - Backend: byte store with exclusive sessions (memory, SQLite, Redis,
//     BigCache, or a Ristretto tier in front of any of them).
//   - Codec: (de)serializes results <-> []byte. JSON unless the backend or
//     Options say otherwise.
//   - Store: a backend plus a namespace. Namespace returns a narrower handle.
//
// Keys:
//
//	<ns...>,<param fragment>,<param fragment>...
//
// Each fragment is the canonical rendering of one parameter (see package
// key). Swapping two parameters yields a different key.
//
// Usage:
//
//	s, _ := potency.New(sqlite, potency.Options{Namespace: []string{"reports"}})
//	v, err := potency.EntryContext[int](s, buildReport).
//		Param(year).
//		Param(region).
//		Run(ctx)
//
// Failed computations are never stored. Once a value is stored under a key
// it is returned as is until the entry is forgotten or the backend is
// cleared.
package potency
