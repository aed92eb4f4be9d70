package sim

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a VOPR run definition: a seed, a fault profile, and the
// client command sequence to drive, loaded from YAML exactly the way
// the corpus's conformance scenarios are (strict field decoding so a
// typo'd key fails to load instead of silently being ignored).
type Scenario struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Seed        uint64       `yaml:"seed"`
	Iterations  int          `yaml:"iterations"`
	ReplicaN    int          `yaml:"replica_count"`
	Faults      FaultProfile `yaml:"faults"`
	Requests    []Request    `yaml:"requests"`

	// CoverageThreshold overrides the default 0.80 fault-point coverage
	// gate (spec §8 property 10) for this scenario; zero means "use the
	// default."
	CoverageThreshold float64 `yaml:"coverage_threshold,omitempty"`
}

// Request is one client submission in a scenario's command sequence.
type Request struct {
	ClientID  uint64         `yaml:"client_id"`
	RequestID uint64         `yaml:"request_id"`
	Kind      string         `yaml:"kind"`
	Args      map[string]any `yaml:"args"`

	// AtTick schedules this request for a specific logical tick rather
	// than immediately after the previous one, letting a scenario
	// interleave requests with faults deterministically.
	AtTick uint64 `yaml:"at_tick,omitempty"`
}

// LoadScenario reads and strictly parses a scenario YAML file, grounded
// on the corpus's harness.LoadScenario: unknown fields are rejected so a
// renamed or mistyped key fails loudly instead of defaulting silently.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sim: read scenario file: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("sim: parse scenario yaml: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("sim: invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.ReplicaN < 3 {
		return fmt.Errorf("replica_count must be >= 3, got %d", s.ReplicaN)
	}
	if s.ReplicaN%2 == 0 {
		return fmt.Errorf("replica_count must be odd to have a well-defined quorum, got %d", s.ReplicaN)
	}
	for i, r := range s.Requests {
		if r.Kind == "" {
			return fmt.Errorf("requests[%d]: kind is required", i)
		}
	}
	return nil
}
