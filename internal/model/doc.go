// Package model defines shared data types used across the exposure monitor.
//
// Conventions:
//   - Shares and quantities: float64 (option deltas make fractional
//     share-equivalents unavoidable)
//   - Percentages: float64 in the 0-100 range
//   - Timestamps: time.Time in memory; writers convert to int64
//     microseconds since epoch for persisted rows
package model
