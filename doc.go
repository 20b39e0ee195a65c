// Package forestdata turns Black Rock Forest sensor exports into analysis
// ready CSV files.
//
// Dataloggers in the forest produce two kinds of exports. Dendrometer
// exports carry stem-growth voltages for a handful of trees at a site;
// environmental exports carry temperature, vapor pressure, rain, soil
// moisture and light. Each export starts with device metadata rows, then a
// header, then one row per sampling interval.
//
// # Architecture
//
// A run loads a YAML configuration (pkg/config) listing datasets. For every
// dataset the runner (internal/pipeline) builds a pipeline of:
//
//   - a CSV source (pkg/connector/sources/csv) that drops metadata rows and
//     keeps the numeric or quoted nature of every cell
//   - transform stages (pkg/transform): column projection, time window
//     filtering, tree label renaming, per-row mean and standard deviation,
//     radial increment (RDH) conversion
//   - a CSV destination (pkg/connector/destinations/csv) that writes quoted
//     strings, bare numbers and CRLF line endings
//
// Dendrometer datasets with RDH baselines get a second pipeline that reads
// the processed file back and rewrites sensor voltages as growth deltas.
//
// # Quick Start
//
//	forestdata list --config forestdata.yaml
//	forestdata run --config forestdata.yaml --report run.json
//	forestdata process mnt-misery --config forestdata.yaml
//
// Datasets are independent: one failing export is logged, counted in the
// Prometheus metrics and recorded in the run report while the others
// continue.
package forestdata
