// Package domain defines the core types and capability contracts for the
// meshpipe data pipeline.
//
// This package contains pure domain logic with no dependencies on the routing
// engine or any concrete store. All types in this package are:
//
// - Independent of infrastructure (no database, HTTP, etc.)
// - Testable in isolation without mocks
// - Stable and unlikely to change frequently
//
// The three capability contracts are Source (produces values of declared
// types for a query), Sink (accepts values of declared types for storage) and
// Transformer (converts values between types at an integer cost). Concrete
// capabilities either implement the interfaces directly or are assembled from
// per-type functions with the builders in registry.go. Other packages
// (typegraph, pipeline, storage) depend on these types; the dependency
// direction is always:
//
//	Engine → Domain (CORRECT)
//	Domain → Engine (FORBIDDEN)
package domain
