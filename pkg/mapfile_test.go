package s800

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tableMap = `# focal plane map
2 2 4
2 ata
  1.0e-3  1 0 0 0
 -0.5     0 1 0 0   # linear
1 bta
  2.0     0 0 1 1
`

func TestParseTableMap(t *testing.T) {
	table, err := ParseTableMap(strings.NewReader(tableMap), "fp.map")
	require.NoError(t, err)

	want := &CoefficientTable{
		MaxOrder:  2,
		Variables: 4,
		Names:     []string{"ata", "bta"},
		Params: [][]Term{
			{
				{Coefficient: 1.0e-3, Exponents: []int{1, 0, 0, 0}, Degree: 1},
				{Coefficient: -0.5, Exponents: []int{0, 1, 0, 0}, Degree: 1},
			},
			{
				{Coefficient: 2.0, Exponents: []int{0, 0, 1, 1}, Degree: 2},
			},
		},
	}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, table.Terms())
	assert.Equal(t, 1, table.Parameter("bta"))
	assert.Equal(t, -1, table.Parameter("dta"))
}

func TestParseTableMapDefaultNames(t *testing.T) {
	table, err := ParseTableMap(strings.NewReader("2 1\n1\n1 1\n0\n"), "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"p0", "p1"}, table.Names)
	assert.Equal(t, 1, table.Variables)
	assert.Empty(t, table.Params[1])
}

func TestParseTableMapOrderZero(t *testing.T) {
	table, err := ParseTableMap(strings.NewReader("1 0 2\n1\n4.0 0 0\n"), "m")
	require.NoError(t, err)
	assert.Equal(t, 0, table.MaxOrder)

	m := NewOpticsMap()
	m.Replace(table)
	assert.False(t, m.IsLoaded())
}

func TestParseTableMapRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", "\n# nothing\n"},
		{"short header", "2\n"},
		{"no parameters", "0 1\n"},
		{"negative header", "1 -1\n"},
		{"truncated parameters", "2 1\n1\n1 1\n"},
		{"truncated terms", "1 1\n3\n1 1\n"},
		{"degree above max order", "1 1\n1\n1 1 1\n"},
		{"negative exponent", "1 1\n1\n1 -1 0\n"},
		{"wrong exponent count", "1 2 2\n1\n1 1\n"},
		{"bad coefficient", "1 1\n1\nabc 1\n"},
		{"trailing content", "1 1\n1\n1 1\n5 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTableMap(strings.NewReader(tt.content), "bad.map")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMapFormat)
		})
	}
}

func TestParseTableMapErrorLine(t *testing.T) {
	_, err := ParseTableMap(strings.NewReader("1 1\n\n1\n1 2\n"), "bad.map")
	var formatErr *MapFormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, "bad.map", formatErr.Filename)
	assert.Equal(t, 4, formatErr.Line)
}

const cosyMap = `S800 inverse map, 156 MeV/u
     COEFFICIENT            ORDER EXPONENTS
   1  0.1234567890000000D-01  1   1 0 0 0 0 0
   2 -0.2000000000000000D+00  2   1 1 0 0 0 0
------------------------------------------------
   1   1.500000000000000       1   0 0 1 0 0 0
------------------------------------------------
`

func TestParseCosyMap(t *testing.T) {
	table, err := ParseCosyMap(strings.NewReader(cosyMap), "s800.map")
	require.NoError(t, err)
	assert.Equal(t, 2, table.MaxOrder)
	assert.Equal(t, 3, table.Variables)
	assert.Equal(t, []string{"p0", "p1"}, table.Names)
	require.Len(t, table.Params, 2)

	first := table.Params[0]
	require.Len(t, first, 2)
	assert.InDelta(t, 0.01234567890, first[0].Coefficient, 1e-15)
	assert.Equal(t, []int{1, 0, 0}, first[0].Exponents)
	assert.Equal(t, -0.2, first[1].Coefficient)
	assert.Equal(t, 2, first[1].Degree)
	assert.Equal(t, []int{0, 0, 1}, table.Params[1][0].Exponents)

	value, err := table.Evaluate(2, 0, []float64{0.5, 2, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.0123456789*0.5-0.2*0.5*2, value, 1e-12)
}

func TestParseCosyMapRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no terms", "title\n---\n"},
		{"order mismatch", "1 1.0 2 1 0 0 0\n"},
		{"exponent count", "1 1.0 1 1 0 0 0\n2 1.0 1 1 0 0\n"},
		{"bad coefficient", "1 x 1 1 0 0 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCosyMap(strings.NewReader(tt.content), "bad.map")
			assert.ErrorIs(t, err, ErrMapFormat)
		})
	}
}

func TestParseMapFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "fp.map", tableMap)
	table, err := ParseMapFile(path, MapFormatTable)
	require.NoError(t, err)
	assert.Equal(t, []string{"ata", "bta"}, table.Names)

	_, err = ParseMapFile(path+".missing", MapFormatTable)
	var openErr *ErrOpenFile
	assert.ErrorAs(t, err, &openErr)
}
