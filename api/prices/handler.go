package prices

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/kilianp07/iesdispatch/core/market"
	"github.com/kilianp07/iesdispatch/core/model"
)

// StackSource resolves the price stack of a label set. *market.Dataset
// implements it.
type StackSource interface {
	Stack(labels model.CaseLabels) (market.Stack, error)
}

// Clearing is the response of the clearing price endpoint.
type Clearing struct {
	Labels   model.CaseLabels `json:"labels"`
	Loads    []float64        `json:"loads"`
	Prices   []float64        `json:"prices"`
	Marginal []string         `json:"marginal"`
}

// NewClearingHandler returns an HTTP handler exposing clearing prices via
// GET /api/prices?state=..&strategy=..&price_structure=..&year=..&load=1,2,3.
func NewClearingHandler(src StackSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		labels, loads, err := parseRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		stack, err := src.Stack(labels)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, market.ErrUnknownLabels) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		out := Clearing{Labels: labels, Loads: loads, Prices: make([]float64, len(loads)), Marginal: make([]string, len(loads))}
		ids := stack.IDs()
		for i, l := range loads {
			p, idx, err := stack.ClearingPrice(l)
			if err != nil {
				status := http.StatusUnprocessableEntity
				if errors.Is(err, market.ErrInvalidLoad) {
					status = http.StatusBadRequest
				}
				http.Error(w, err.Error(), status)
				return
			}
			out.Prices[i] = p
			out.Marginal[i] = ids[idx]
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func parseRequest(r *http.Request) (model.CaseLabels, []float64, error) {
	v := r.URL.Query()
	labels := model.CaseLabels{
		State:          v.Get("state"),
		Strategy:       v.Get("strategy"),
		PriceStructure: v.Get("price_structure"),
	}
	if y := v.Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			return labels, nil, errors.New("year must be an integer")
		}
		labels.Year = year
	}
	raw := v.Get("load")
	if raw == "" {
		return labels, nil, errors.New("load is required")
	}
	var loads []float64
	for _, s := range strings.Split(raw, ",") {
		l, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return labels, nil, errors.New("load must be a comma separated list of numbers")
		}
		loads = append(loads, l)
	}
	return labels, loads, nil
}
