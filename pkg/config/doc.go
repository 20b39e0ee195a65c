// Package config provides the forestdata configuration.
//
// A single Config value describes where raw exports are found, where
// processed files go, how the reader treats leading rows, and which
// datasets the pipeline processes. It is loaded once from YAML and then
// passed by value; nothing in the pipeline reads the environment.
//
// # Key Features
//
// - Environment variable substitution with ${VAR_NAME} syntax
// - Defaults applied before the file is decoded, so omitted keys keep them
// - Validate catches bad kinds, windows and aggregation groups before a run
//
// # Usage
//
//	cfg, err := config.Load("forestdata.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, ds := range cfg.Datasets {
//		fmt.Println(ds.Name, cfg.InputPath(ds))
//	}
//
// # Datasets
//
// A dendrometer dataset projects the timestamp and sensor columns, filters
// by its window (or, when it has a rename, by the rename window before the
// rename), then appends per-row statistics. Aggregation mode single takes
// one group; two_group takes exactly two, one per species. A dendrometer
// dataset with rdh baselines gets a second pass over its processed file.
//
// An environmental dataset projects and filters only.
package config
