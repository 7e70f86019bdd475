// Package backend defines the processing capability the supervisor drains
// work items through, plus the concrete implementations scribe ships.
//
// Backends are interchangeable: each advertises an availability predicate
// and the Selector resolves a fixed priority order at every processor
// start. The supervisor never inspects implementation types; new backends
// only need to satisfy the Backend interface and register in NewSelector.
package backend
