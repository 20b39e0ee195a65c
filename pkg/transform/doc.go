// Package transform holds the table stages of the forestdata pipeline.
//
// Every stage takes a *table.Table and returns a new one; none modifies its
// input. The stages are:
//
//   - Project: keep columns by name, in keep-list order
//   - FilterWindow: keep rows whose timestamp lies in an inclusive window
//   - Rename: literal substring substitution across string cells
//   - Aggregate: append per-row mean and population standard deviation
//   - ConvertRDH, ConvertRDHColumns: turn dendrometer voltages into radial
//     growth deltas, by position or by column name
//
// Row 0 is always the header. Stages that compute values leave it alone or,
// for Aggregate, label the appended columns there.
package transform
