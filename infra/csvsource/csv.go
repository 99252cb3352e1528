// Package csvsource replays recorded battery telemetry from a CSV file. Rows
// are turned into feature vectors, the SOC change column is derived, and
// every feature is MinMax-scaled to [0,1] over the whole file.
package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/bmsctl/core/factory"
	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/core/source"
)

// Columns lists the CSV headers read for each feature, in FeatureVector
// order. SOC_change is derived and never read.
var Columns = model.FeatureNames[:model.FeatureCount-1]

// ErrEmpty is returned for a file without data rows.
var ErrEmpty = errors.New("csv has no data rows")

// Range is the observed minimum and maximum of a column.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Dataset is a parsed file.
type Dataset struct {
	Samples []model.FeatureVector
	// Ranges holds the raw range of every feature, keyed by FeatureNames.
	Ranges map[string]Range
}

// Config configures the "csv" source.
type Config struct {
	Path string `json:"path"`
	Loop bool   `json:"loop"`
	// Raw disables MinMax scaling.
	Raw bool `json:"raw"`
}

// Read parses r. The header must contain every entry of Columns; other
// columns such as Time are ignored.
func Read(r io.Reader, scale bool) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make([]int, len(Columns))
	for i, name := range Columns {
		idx[i] = -1
		for j, h := range header {
			if strings.TrimSpace(h) == name {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	cols := make([][]float64, model.FeatureCount)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for i, j := range idx {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, Columns[i], err)
			}
			cols[i] = append(cols[i], v)
		}
	}
	n := len(cols[0])
	if n == 0 {
		return nil, ErrEmpty
	}

	// SOC change is taken on raw values, before scaling.
	soc := cols[2]
	change := make([]float64, n)
	for i := 1; i < n; i++ {
		change[i] = soc[i] - soc[i-1]
	}
	cols[model.FeatureCount-1] = change

	ds := &Dataset{Ranges: make(map[string]Range, model.FeatureCount)}
	for i, col := range cols {
		rg := Range{Min: floats.Min(col), Max: floats.Max(col)}
		ds.Ranges[model.FeatureNames[i]] = rg
		if scale {
			minMax(col, rg)
		}
	}

	ds.Samples = make([]model.FeatureVector, n)
	row := make([]float64, model.FeatureCount)
	for r := 0; r < n; r++ {
		for c := range cols {
			row[c] = cols[c][r]
		}
		v, err := model.FeatureVectorFromValues(row)
		if err != nil {
			return nil, err
		}
		ds.Samples[r] = v
	}
	return ds, nil
}

// minMax scales col in place to [0,1]. A constant column becomes all zeros.
func minMax(col []float64, rg Range) {
	span := rg.Max - rg.Min
	if span == 0 {
		for i := range col {
			col[i] = 0
		}
		return
	}
	floats.AddConst(-rg.Min, col)
	floats.Scale(1/span, col)
}

// Load reads the CSV file at path.
func Load(path string, scale bool) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	ds, err := Read(f, scale)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// New returns a source replaying the file described by cfg.
func New(cfg Config) (*source.SliceSource, error) {
	if cfg.Path == "" {
		return nil, errors.New("csv source requires a path")
	}
	ds, err := Load(cfg.Path, !cfg.Raw)
	if err != nil {
		return nil, err
	}
	return source.NewSlice(ds.Samples, cfg.Loop), nil
}

func init() {
	_ = source.Register("csv", func(conf map[string]any) (source.Source, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return New(c)
	})
}
