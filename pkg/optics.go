package s800

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Term is one monomial of an inverse map parameter.
type Term struct {
	Coefficient float64
	Exponents   []int
	Degree      int
}

// CoefficientTable holds the polynomial of every output parameter.
// It is never modified once published by an OpticsMap.
type CoefficientTable struct {
	MaxOrder  int
	Variables int
	Names     []string
	Params    [][]Term
}

// Parameter returns the index of a named parameter or -1.
func (t *CoefficientTable) Parameter(name string) int {
	if t == nil {
		return -1
	}
	for i, n := range t.Names {
		if n == name {
			return i
		}
	}
	return -1
}

func (t *CoefficientTable) Terms() int {
	n := 0
	for _, terms := range t.Params {
		n += len(terms)
	}
	return n
}

// Evaluate sums the terms of parameter whose degree does not exceed order.
func (t *CoefficientTable) Evaluate(order int, parameter int, inputs []float64) (float64, error) {
	if t == nil {
		return 0, ErrMapNotLoaded
	}
	if order < 0 || order > t.MaxOrder {
		return 0, &OrderExceededError{Requested: order, MaxOrder: t.MaxOrder}
	}
	if t.MaxOrder == 0 {
		return 0, ErrMapNotLoaded
	}
	if parameter < 0 || parameter >= len(t.Params) {
		return 0, fmt.Errorf("%w: parameter %d out of range [0, %d)", ErrMapInput, parameter, len(t.Params))
	}
	if len(inputs) < t.Variables {
		return 0, fmt.Errorf("%w: %d inputs, map needs %d", ErrMapInput, len(inputs), t.Variables)
	}

	var sum float64
	for _, term := range t.Params[parameter] {
		if term.Degree > order {
			continue
		}
		value := term.Coefficient
		for v, exponent := range term.Exponents {
			for range exponent {
				value *= inputs[v]
			}
		}
		sum += value
	}
	return sum, nil
}

// OpticsMap publishes an inverse map table to concurrent readers. Loads
// are serialized and replace the whole table at once.
type OpticsMap struct {
	mu    sync.Mutex
	path  string
	table atomic.Pointer[CoefficientTable]
}

func NewOpticsMap() *OpticsMap {
	return &OpticsMap{}
}

func (m *OpticsMap) Load(path string, format MapFormat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(path, format)
}

func (m *OpticsMap) load(path string, format MapFormat) error {
	table, err := ParseMapFile(path, format)
	if err != nil {
		return err
	}
	m.table.Store(table)
	m.path = path
	if verbosity > 0 {
		message := fmt.Sprintf("Map %s loaded: %d parameters, order %d, %d terms",
			path, len(table.Params), table.MaxOrder, table.Terms())
		logger.Info(message, "optics")
	}
	return nil
}

// LoadIfChanged reloads only when path differs from the loaded one.
func (m *OpticsMap) LoadIfChanged(path string, format MapFormat) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if path == m.path && m.table.Load() != nil {
		return false, nil
	}
	if err := m.load(path, format); err != nil {
		return false, err
	}
	return true, nil
}

// Replace publishes an already built table.
func (m *OpticsMap) Replace(table *CoefficientTable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table.Store(table)
	m.path = ""
}

func (m *OpticsMap) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

// IsLoaded is false until a table with a positive maximum order is published.
func (m *OpticsMap) IsLoaded() bool {
	table := m.table.Load()
	return table != nil && table.MaxOrder > 0
}

func (m *OpticsMap) MaxOrder() int {
	if table := m.table.Load(); table != nil {
		return table.MaxOrder
	}
	return 0
}

// Snapshot returns the current table so several parameters of one event
// are evaluated against the same map.
func (m *OpticsMap) Snapshot() *CoefficientTable {
	return m.table.Load()
}

func (m *OpticsMap) Evaluate(order int, parameter int, inputs []float64) (float64, error) {
	return m.table.Load().Evaluate(order, parameter, inputs)
}
