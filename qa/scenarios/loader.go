package scenarios

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/iesdispatch/config"
	"github.com/kilianp07/iesdispatch/core/model"
)

// Expected describes the outcome a scenario must reproduce. A nil Objective
// is not checked.
type Expected struct {
	Status    string             `yaml:"status"`
	Objective *float64           `yaml:"objective,omitempty"`
	Tolerance float64            `yaml:"tolerance,omitempty"`
	Windows   int                `yaml:"windows,omitempty"`
	Totals    map[string]float64 `yaml:"totals,omitempty"`
}

// Scenario is a dispatch regression case: a case file, an optional price
// stack dataset and the expected run outcome.
type Scenario struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description,omitempty"`
	Case         string   `yaml:"case"`
	SeriesCSV    string   `yaml:"series_csv,omitempty"`
	StackCSV     string   `yaml:"stack_csv,omitempty"`
	Sense        string   `yaml:"sense,omitempty"`
	WindowLength int      `yaml:"window_length,omitempty"`
	Expected     Expected `yaml:"expected"`

	dir string
}

// Load reads a scenario file. Paths inside it are relative to the file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Case == "" {
		return nil, fmt.Errorf("scenario %s: case is required", path)
	}
	if sc.Name == "" {
		sc.Name = filepath.Base(path)
	}
	if sc.Expected.Tolerance == 0 {
		sc.Expected.Tolerance = 1e-6
	}
	sc.dir = filepath.Dir(path)
	return &sc, nil
}

func (sc *Scenario) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(sc.dir, p)
}

// LoadCase reads the scenario case with its series.
func (sc *Scenario) LoadCase() (*model.Case, error) {
	return config.LoadCase(sc.path(sc.Case), sc.path(sc.SeriesCSV))
}
