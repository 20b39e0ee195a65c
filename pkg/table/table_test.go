package table

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackrockforest/forestdata/pkg/errors"
)

func sample() []Row {
	return []Row{
		{String("TIMESTAMP"), String("Red_Oak_1_AVG"), String("Red_Oak_1_AVG")},
		{String("2016-10-07 14:00:00"), Number(20.9), Number(1)},
		{String("2016-10-07 14:20:00"), Number(21.4), Number(2)},
	}
}

func TestNewRejectsRaggedRows(t *testing.T) {
	rows := sample()
	rows[2] = rows[2][:2]

	_, err := New(rows)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedInput))
}

func TestNewCopiesInput(t *testing.T) {
	rows := sample()
	tbl, err := New(rows)
	require.NoError(t, err)

	rows[1][1] = Number(99)
	assert.True(t, tbl.Cell(1, 1).Equal(Number(20.9)))

	got := tbl.Row(1)
	got[1] = Number(42)
	assert.True(t, tbl.Cell(1, 1).Equal(Number(20.9)))
}

func TestDimensions(t *testing.T) {
	tbl, err := New(sample())
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, 2, tbl.DataLen())
	assert.Equal(t, 3, tbl.Width())
	assert.Equal(t, []string{"TIMESTAMP", "Red_Oak_1_AVG", "Red_Oak_1_AVG"}, tbl.Header().Names())

	empty := Empty()
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, 0, empty.Width())
	assert.Equal(t, 0, empty.DataLen())
	assert.Nil(t, empty.Header())
}

func TestColumnIndexPicksFirstMatch(t *testing.T) {
	tbl, err := New(sample())
	require.NoError(t, err)

	assert.Equal(t, 0, tbl.ColumnIndex("TIMESTAMP"))
	assert.Equal(t, 1, tbl.ColumnIndex("Red_Oak_1_AVG"))
	assert.Equal(t, -1, tbl.ColumnIndex("red_oak_1_avg"))
	assert.Equal(t, -1, Empty().ColumnIndex("TIMESTAMP"))
}

func TestValidate(t *testing.T) {
	rows := sample()
	rows = append(rows, Row{String("x")})
	assert.Error(t, FromRows(rows).Validate())
	assert.NoError(t, FromRows(sample()).Validate())
}

func TestCellKinds(t *testing.T) {
	n := Number(2.5)
	s := String("2.5")

	f, ok := n.Float()
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)
	_, ok = n.Text()
	assert.False(t, ok)

	txt, ok := s.Text()
	assert.True(t, ok)
	assert.Equal(t, "2.5", txt)
	_, ok = s.Float()
	assert.False(t, ok)

	assert.False(t, n.Equal(s))
	assert.True(t, Number(math.NaN()).Equal(Number(math.NaN())))
	assert.Equal(t, "number", n.Kind().String())
	assert.Equal(t, "string", Cell{}.Kind().String())
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{20.9, "20.9"},
		{20, "20.0"},
		{-3, "-3.0"},
		{0, "0.0"},
		{29.4, "29.4"},
		{1.4142135623730951, "1.4142135623730951"},
		{1e16, "1e+16"},
		{0.00001, "1e-05"},
		{math.NaN(), "nan"},
		{math.Inf(1), "inf"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatNumber(tt.in))
		})
	}
}
