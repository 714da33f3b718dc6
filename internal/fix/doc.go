// Package fix implements the trade-protocol decoder.
//
// Only the subset of FIX 4.4 needed to recover symbol, side, quantity,
// price, and execution identifiers is parsed; unknown tags are ignored.
// Frames with a checksum mismatch or a missing required tag are reported
// as integrity failures and never surface as trades.
package fix
