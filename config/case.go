package config

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/iesdispatch/core/model"
)

// CaseConfig locates the case to dispatch.
type CaseConfig struct {
	// Path is a YAML or JSON case file.
	Path string `json:"path"`
	// SeriesCSV optionally supplies the case series, one column per series.
	// Columns override series of the same name in the case file.
	SeriesCSV string `json:"series_csv"`
}

// Load reads the configured case.
func (c CaseConfig) Load() (*model.Case, error) {
	if c.Path == "" {
		return nil, errors.New("case path is required")
	}
	return LoadCase(c.Path, c.SeriesCSV)
}

// LoadCase reads a case file and merges the series of seriesCSV when set. The
// case is validated before it is returned.
func LoadCase(path, seriesCSV string) (*model.Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c model.Case
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAMLCase(data, &c)
	case ".json":
		err = decodeJSONCase(data, &c)
	default:
		return nil, fmt.Errorf("unsupported case format: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", path, err)
	}
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if seriesCSV != "" {
		f, err := os.Open(seriesCSV)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		series, err := ReadSeriesCSV(f)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", seriesCSV, err)
		}
		if c.Series == nil {
			c.Series = make(map[string][]float64, len(series))
		}
		for name, v := range series {
			c.Series[name] = v
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("case %s: %w", c.Name, err)
	}
	return &c, nil
}

// decodeYAMLCase goes through JSON so the model json tags apply to both
// formats.
func decodeYAMLCase(data []byte, c *model.Case) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	js, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return decodeJSONCase(js, c)
}

func decodeJSONCase(data []byte, c *model.Case) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(c)
}

// ReadSeriesCSV parses a header row of series names followed by one row per
// step. A leading "step" or "time" column is ignored.
func ReadSeriesCSV(r io.Reader) (map[string][]float64, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	skip := 0
	if len(header) > 0 {
		switch strings.ToLower(header[0]) {
		case "step", "time":
			skip = 1
		}
	}
	if len(header) <= skip {
		return nil, errors.New("no series columns")
	}
	out := make(map[string][]float64, len(header)-skip)
	for _, name := range header[skip:] {
		if name == "" {
			return nil, errors.New("empty series name")
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("duplicate series %q", name)
		}
		out[name] = nil
	}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for i, field := range rec[skip:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, header[skip+i], err)
			}
			out[header[skip+i]] = append(out[header[skip+i]], v)
		}
	}
	return out, nil
}
