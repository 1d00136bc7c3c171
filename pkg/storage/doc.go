// Package storage provides ready-made pipeline capabilities backed by common
// stores: an in-memory table (dual-role source and sink, the typical cache
// tier), a SQLite database, and a read-only HTTP JSON origin.
//
// Each store declares an explicit type set at construction and validates its
// queries with the query package before touching the backend. They are
// reference implementations of the capability contracts as much as usable
// elements; applications with richer needs implement domain.Source and
// domain.Sink directly.
package storage
