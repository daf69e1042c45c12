package manifest

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// Metric is one named training or evaluation score.
type Metric struct {
	Name  string
	Value float64
}

// LoadMetrics reads a flat {"name": value} JSON metrics file, as written after
// training, and returns the metrics sorted by name.
func LoadMetrics(path string) ([]Metric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read metrics %s", path)
	}

	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "failed to parse metrics %s", path)
	}

	metrics := make([]Metric, 0, len(raw))
	for name, value := range raw {
		metrics = append(metrics, Metric{Name: name, Value: value})
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })
	return metrics, nil
}
