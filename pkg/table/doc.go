// Package table provides the in-memory dataset that flows through the
// forestdata pipeline.
//
// A Table is an ordered list of rows. Row 0 is the header and names the
// columns; every following row is data. Each cell is either a decimal number
// or a string, mirroring the numeric-quoting convention of the logger
// exports: bare tokens are numbers and quoted tokens are strings.
//
// Tables are treated as immutable values. Constructors copy their input and
// accessors hand out copies, so a pipeline stage can build a new Table from
// an old one without affecting any other holder of the old one.
//
//	t, err := table.New([]table.Row{
//	    {table.String("TIMESTAMP"), table.String("Red_Oak_1_AVG")},
//	    {table.String("2016-10-07 14:00:00"), table.Number(20.9)},
//	})
package table
