package s800

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParseMapFile reads an inverse map in the given format.
func ParseMapFile(path string, format MapFormat) (*CoefficientTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ErrOpenFile{Filename: path, Err: err}
	}
	defer file.Close()

	switch format {
	case MapFormatTable:
		return ParseTableMap(file, path)
	case MapFormatCosy:
		return ParseCosyMap(file, path)
	default:
		return nil, fmt.Errorf("unknown map format %d", format)
	}
}

type mapLine struct {
	number int
	fields []string
}

// readMapLines returns the non blank lines of r, without # comments.
func readMapLines(r io.Reader) ([]mapLine, error) {
	lines := make([]mapLine, 0, 256)
	scanner := bufio.NewScanner(r)
	number := 0
	for scanner.Scan() {
		number++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		lines = append(lines, mapLine{number: number, fields: fields})
	}
	return lines, scanner.Err()
}

func parseExponents(fields []string) ([]int, int, error) {
	exponents := make([]int, len(fields))
	degree := 0
	for i, field := range fields {
		e, err := strconv.Atoi(field)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid exponent %q", field)
		}
		if e < 0 {
			return nil, 0, fmt.Errorf("negative exponent %d", e)
		}
		exponents[i] = e
		degree += e
	}
	return exponents, degree, nil
}

// ParseTableMap reads the plain table format:
//
//	P MAXORDER [M]
//	T [name]                 repeated P times
//	coefficient e_1 ... e_M  repeated T times
//
// Without M in the header the number of variables is taken from the first term.
func ParseTableMap(r io.Reader, filename string) (*CoefficientTable, error) {
	lines, err := readMapLines(r)
	if err != nil {
		return nil, fmt.Errorf("reading map file %s: %w", filename, err)
	}
	formatError := func(line int, format string, args ...any) error {
		return &MapFormatError{Filename: filename, Line: line, Reason: fmt.Sprintf(format, args...)}
	}
	if len(lines) == 0 {
		return nil, formatError(0, "empty file")
	}

	header := lines[0]
	if len(header.fields) < 2 || len(header.fields) > 3 {
		return nil, formatError(header.number, "header must be: parameters max_order [variables]")
	}
	headerValues := make([]int, len(header.fields))
	for i, field := range header.fields {
		headerValues[i], err = strconv.Atoi(field)
		if err != nil || headerValues[i] < 0 {
			return nil, formatError(header.number, "invalid header value %q", field)
		}
	}
	parameters := headerValues[0]
	table := &CoefficientTable{
		MaxOrder: headerValues[1],
		Names:    make([]string, parameters),
		Params:   make([][]Term, parameters),
	}
	if parameters == 0 {
		return nil, formatError(header.number, "no parameters")
	}
	if len(headerValues) == 3 {
		table.Variables = headerValues[2]
	}

	cursor := 1
	for p := range parameters {
		if cursor >= len(lines) {
			return nil, formatError(lines[len(lines)-1].number, "file ends before parameter %d", p)
		}
		countLine := lines[cursor]
		cursor++
		if len(countLine.fields) > 2 {
			return nil, formatError(countLine.number, "term count line must be: terms [name]")
		}
		count, err := strconv.Atoi(countLine.fields[0])
		if err != nil || count < 0 {
			return nil, formatError(countLine.number, "invalid term count %q", countLine.fields[0])
		}
		table.Names[p] = fmt.Sprintf("p%d", p)
		if len(countLine.fields) == 2 {
			table.Names[p] = countLine.fields[1]
		}

		terms := make([]Term, 0, count)
		for range count {
			if cursor >= len(lines) {
				return nil, formatError(lines[len(lines)-1].number, "file ends inside parameter %s", table.Names[p])
			}
			line := lines[cursor]
			cursor++
			if table.Variables == 0 {
				table.Variables = len(line.fields) - 1
			}
			if len(line.fields) != table.Variables+1 {
				return nil, formatError(line.number, "expected coefficient and %d exponents, found %d fields",
					table.Variables, len(line.fields))
			}
			coefficient, err := strconv.ParseFloat(line.fields[0], 64)
			if err != nil {
				return nil, formatError(line.number, "invalid coefficient %q", line.fields[0])
			}
			exponents, degree, err := parseExponents(line.fields[1:])
			if err != nil {
				return nil, formatError(line.number, "%v", err)
			}
			if degree > table.MaxOrder {
				return nil, formatError(line.number, "term degree %d exceeds maximum order %d", degree, table.MaxOrder)
			}
			terms = append(terms, Term{Coefficient: coefficient, Exponents: exponents, Degree: degree})
		}
		table.Params[p] = terms
	}
	if cursor < len(lines) {
		return nil, formatError(lines[cursor].number, "unexpected content after last parameter")
	}
	return table, nil
}

// ParseCosyMap reads the inverse map listing produced by COSY for the
// S800 map server. Each term is a line "index coefficient order e_1 ... e_M";
// parameters are separated by lines of dashes. Other lines (title, column
// headers) are ignored. Trailing variables never used are dropped.
func ParseCosyMap(r io.Reader, filename string) (*CoefficientTable, error) {
	lines, err := readMapLines(r)
	if err != nil {
		return nil, fmt.Errorf("reading map file %s: %w", filename, err)
	}
	formatError := func(line int, format string, args ...any) error {
		return &MapFormatError{Filename: filename, Line: line, Reason: fmt.Sprintf(format, args...)}
	}

	table := &CoefficientTable{}
	current := make([]Term, 0, 64)
	exponentColumns := 0
	flush := func() {
		if len(current) == 0 {
			return
		}
		table.Params = append(table.Params, current)
		table.Names = append(table.Names, fmt.Sprintf("p%d", len(table.Params)-1))
		current = make([]Term, 0, 64)
	}

	for _, line := range lines {
		if strings.HasPrefix(line.fields[0], "---") {
			flush()
			continue
		}
		if _, err := strconv.Atoi(line.fields[0]); err != nil || len(line.fields) < 4 {
			continue
		}
		if exponentColumns == 0 {
			exponentColumns = len(line.fields) - 3
		}
		if len(line.fields)-3 != exponentColumns {
			return nil, formatError(line.number, "expected %d exponents, found %d", exponentColumns, len(line.fields)-3)
		}
		coefficient, err := strconv.ParseFloat(strings.Replace(line.fields[1], "D", "E", 1), 64)
		if err != nil {
			return nil, formatError(line.number, "invalid coefficient %q", line.fields[1])
		}
		order, err := strconv.Atoi(line.fields[2])
		if err != nil {
			return nil, formatError(line.number, "invalid order %q", line.fields[2])
		}
		exponents, degree, err := parseExponents(line.fields[3:])
		if err != nil {
			return nil, formatError(line.number, "%v", err)
		}
		if degree != order {
			return nil, formatError(line.number, "order %d does not match exponents (degree %d)", order, degree)
		}
		table.MaxOrder = max(table.MaxOrder, degree)
		for v, e := range exponents {
			if e > 0 {
				table.Variables = max(table.Variables, v+1)
			}
		}
		current = append(current, Term{Coefficient: coefficient, Exponents: exponents, Degree: degree})
	}
	flush()

	if len(table.Params) == 0 {
		return nil, formatError(len(lines), "no terms found")
	}
	for p := range table.Params {
		for i := range table.Params[p] {
			table.Params[p][i].Exponents = table.Params[p][i].Exponents[:table.Variables]
		}
	}
	return table, nil
}
