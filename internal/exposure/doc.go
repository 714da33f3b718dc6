// Package exposure implements the ownership-exposure math: delta-adjusted
// share equivalents, reconciliation of disagreeing shares-outstanding
// sources, and recursive look-through decomposition of exposure held
// through composite instruments.
//
// Everything here is a pure function of its inputs; callers pass an
// immutable holdings snapshot.
package exposure
