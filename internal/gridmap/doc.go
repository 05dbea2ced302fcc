// Package gridmap implements the layered planar grid map that the
// traversability engine operates on.
//
// A Map is a rectangular region of fixed resolution carrying one or more
// named float64 layers of identical geometry. Cell values may be NaN,
// the no-data sentinel. The package also provides the geometric iterators
// (polygon, circle, line) used for footprint and path evaluation.
//
// Maps are plain data: they carry no locking. Concurrent ownership is the
// job of the stores in internal/traverse.
package gridmap
