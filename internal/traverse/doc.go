// Package traverse implements the traversability computation engine:
// derivation of hazard and traversability layers from an elevation grid,
// footprint-aware evaluation of individual placements, and path-level
// safety checking.
//
// Shared state lives in two single-owner stores (ElevationStore,
// TraversabilityStore) exposing only atomic snapshot/replace operations.
// All evaluation helpers take a map snapshot as an explicit parameter, so
// no code path ever holds more than one store lock; the Manager's Compute
// copies the elevation snapshot, derives on the private copy, then takes
// the traversability lock only for the replace. Readers are therefore
// never blocked for the duration of a recompute.
package traverse
