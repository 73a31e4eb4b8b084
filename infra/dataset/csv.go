package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kilianp07/iesdispatch/core/market"
	"github.com/kilianp07/iesdispatch/core/model"
)

var csvColumns = []string{"state", "strategy", "price_structure", "year", "component", "capacity", "marginal_cost"}

// ReadCSV parses stack entries from r. The header must name the columns
// state, strategy, price_structure, year, component, capacity and
// marginal_cost in any order.
func ReadCSV(r io.Reader) ([]market.Entry, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range csvColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}
	var out []market.Entry
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		e, err := parseEntry(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, e)
	}
}

func parseEntry(rec []string, idx map[string]int) (market.Entry, error) {
	year, err := strconv.Atoi(rec[idx["year"]])
	if err != nil {
		return market.Entry{}, fmt.Errorf("year: %w", err)
	}
	capacity, err := strconv.ParseFloat(rec[idx["capacity"]], 64)
	if err != nil {
		return market.Entry{}, fmt.Errorf("capacity: %w", err)
	}
	cost, err := strconv.ParseFloat(rec[idx["marginal_cost"]], 64)
	if err != nil {
		return market.Entry{}, fmt.Errorf("marginal_cost: %w", err)
	}
	if capacity < 0 {
		return market.Entry{}, fmt.Errorf("capacity %v must be non-negative", capacity)
	}
	e := market.Entry{
		Labels: model.CaseLabels{
			State:          rec[idx["state"]],
			Strategy:       rec[idx["strategy"]],
			PriceStructure: rec[idx["price_structure"]],
			Year:           year,
		},
		Component:    rec[idx["component"]],
		Capacity:     capacity,
		MarginalCost: cost,
	}
	if e.Component == "" {
		return market.Entry{}, errors.New("component is required")
	}
	return e, nil
}
