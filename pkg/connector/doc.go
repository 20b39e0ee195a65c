// Package connector groups the sources and destinations at the edges of a
// forestdata pipeline.
//
//   - sources/csv reads datalogger exports and processed files into a
//     table.Table, dropping leading metadata rows and classifying each cell
//     as a number or a string by whether it was quoted.
//   - destinations/csv writes a table.Table back out with quoted strings,
//     bare numbers and CRLF line endings.
//
// Both satisfy the Source and Destination interfaces of internal/pipeline.
// Inputs ending in .gz, .zst or .lz4 are decompressed transparently.
package connector
