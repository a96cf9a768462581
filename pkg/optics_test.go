package s800

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantTable(c float64) *CoefficientTable {
	return &CoefficientTable{
		MaxOrder:  1,
		Variables: 4,
		Names:     []string{"ata"},
		Params: [][]Term{{
			{Coefficient: c, Exponents: []int{0, 0, 0, 0}, Degree: 0},
			{Coefficient: 2, Exponents: []int{1, 0, 0, 0}, Degree: 1},
		}},
	}
}

func TestEvaluateConstantAtOrderZero(t *testing.T) {
	table := constantTable(3.5)
	value, err := table.Evaluate(0, 0, []float64{0.5, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 3.5, value)

	value, err = table.Evaluate(1, 0, []float64{0.5, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 4.5, value)
}

func TestEvaluateOrderExceeded(t *testing.T) {
	table := &CoefficientTable{
		MaxOrder:  0,
		Variables: 4,
		Names:     []string{"p0"},
		Params:    [][]Term{{{Coefficient: 1, Exponents: []int{0, 0, 0, 0}}}},
	}
	_, err := table.Evaluate(1, 0, make([]float64, 4))
	assert.ErrorIs(t, err, ErrOrderExceeded)
	var exceeded *OrderExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 1, exceeded.Requested)
	assert.Equal(t, 0, exceeded.MaxOrder)

	_, err = constantTable(1).Evaluate(-1, 0, make([]float64, 4))
	assert.ErrorIs(t, err, ErrOrderExceeded)

	m := NewOpticsMap()
	m.Replace(table)
	assert.False(t, m.IsLoaded())
	_, err = m.Evaluate(0, 0, make([]float64, 4))
	assert.ErrorIs(t, err, ErrMapNotLoaded)
}

func TestEvaluateBeforeLoad(t *testing.T) {
	m := NewOpticsMap()
	assert.False(t, m.IsLoaded())
	assert.Equal(t, 0, m.MaxOrder())
	_, err := m.Evaluate(0, 0, nil)
	assert.ErrorIs(t, err, ErrMapNotLoaded)
}

func TestEvaluateInputs(t *testing.T) {
	table := &CoefficientTable{
		MaxOrder:  3,
		Variables: 2,
		Names:     []string{"p0"},
		Params: [][]Term{{
			{Coefficient: 1.5, Exponents: []int{2, 1}, Degree: 3},
			{Coefficient: -1, Exponents: []int{0, 1}, Degree: 1},
		}},
	}
	value, err := table.Evaluate(3, 0, []float64{2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 1.5*4*3-3, value, 1e-12)

	value, err = table.Evaluate(2, 0, []float64{2, 3})
	require.NoError(t, err)
	assert.InDelta(t, -3.0, value, 1e-12)

	_, err = table.Evaluate(3, 0, []float64{2})
	assert.ErrorIs(t, err, ErrMapInput)
	_, err = table.Evaluate(3, 1, []float64{2, 3})
	assert.ErrorIs(t, err, ErrMapInput)
}

func TestOpticsMapLoadIfChanged(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "a.map", "1 1\n1 x\n2.0 1\n")
	second := writeFile(t, dir, "b.map", "1 2\n1 x\n3.0 2\n")

	m := NewOpticsMap()
	changed, err := m.LoadIfChanged(first, MapFormatTable)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, first, m.Path())
	assert.Equal(t, 1, m.MaxOrder())

	changed, err = m.LoadIfChanged(first, MapFormatTable)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = m.LoadIfChanged(second, MapFormatTable)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, m.MaxOrder())

	_, err = m.LoadIfChanged(writeFile(t, dir, "bad.map", "x"), MapFormatTable)
	assert.Error(t, err)
	assert.Equal(t, second, m.Path(), "a failed load keeps the previous map")
	assert.Equal(t, 2, m.MaxOrder())
}

func TestOpticsMapConcurrentReaders(t *testing.T) {
	m := NewOpticsMap()
	m.Replace(constantTable(1))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				value, err := m.Evaluate(0, 0, make([]float64, 4))
				if err != nil {
					errs <- err
					return
				}
				if value != 1 && value != 2 {
					errs <- errors.New("torn table")
					return
				}
			}
		}()
	}
	for range 100 {
		m.Replace(constantTable(2))
		m.Replace(constantTable(1))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
