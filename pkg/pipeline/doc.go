// Package pipeline implements the type-directed orchestration engine.
//
// Architecture:
//
// pipeline.go - orchestrator (element registry, handler caches, get/put entry points)
// factory.go  - handler construction over the type graph (cheapest-route binding)
// handler.go  - bound execution units (source fetch + fan-out, sink convert + write)
// routes.go   - read-only route introspection for tooling
//
// A pipeline is built once from an ordered list of sources and sinks plus a
// set of transformers. Requests name a type key; the engine resolves which
// source can produce it (converting when needed), which sinks receive the
// result before or after conversion, and memoizes the bound handlers per
// type for the pipeline's lifetime. The orchestrator performs no internal
// scheduling: everything runs on the calling goroutine, and streaming
// results suspend exactly where the consumer stops pulling.
package pipeline
