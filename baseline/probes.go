package baseline

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownProbe is returned when a requested probe id does not match
// any defined probe.
var ErrUnknownProbe = errors.New("unknown probe id")

//go:embed probes.yaml
var defaultProbesYAML []byte

// Probe is a single prompt with its scoring configuration
type Probe struct {
	ID      string  `yaml:"id"`
	Prompt  string  `yaml:"prompt"`
	Scoring Scoring `yaml:"scoring"`
}

// Scoring holds the per-probe scoring configuration
type Scoring struct {
	InstabilitySignals []string `yaml:"instability_signals"`
}

// probesFile is the on-disk shape of a probe definition file
type probesFile struct {
	Probes []Probe `yaml:"probes"`
}

// LoadProbes loads probe definitions from a YAML file. An empty path
// means the embedded default set.
func LoadProbes(path string) ([]Probe, error) {
	if path == "" {
		return parseProbes(defaultProbesYAML)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read probes file: %w", err)
	}

	probes, err := parseProbes(data)
	if err != nil {
		return nil, fmt.Errorf("invalid probes file %s: %w", path, err)
	}
	return probes, nil
}

func parseProbes(data []byte) ([]Probe, error) {
	var file probesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if file.Probes == nil {
		return nil, fmt.Errorf("expected a list at 'probes'")
	}

	for i, probe := range file.Probes {
		if probe.ID == "" {
			return nil, fmt.Errorf("probe %d has no id", i)
		}
	}

	return file.Probes, nil
}

// FilterProbes selects the probes matching the requested ids, keeping
// definition order. Blank ids are ignored; unknown ids are an error.
// With no ids requested, all probes are returned.
func FilterProbes(probes []Probe, ids []string) ([]Probe, error) {
	selected := make(map[string]bool)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			selected[id] = true
		}
	}
	if len(selected) == 0 {
		return probes, nil
	}

	var filtered []Probe
	for _, probe := range probes {
		if selected[probe.ID] {
			filtered = append(filtered, probe)
			delete(selected, probe.ID)
		}
	}

	if len(selected) > 0 {
		missing := make([]string, 0, len(selected))
		for id := range selected {
			missing = append(missing, id)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("%w(s): %s", ErrUnknownProbe, strings.Join(missing, ", "))
	}

	return filtered, nil
}
