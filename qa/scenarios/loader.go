package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/bmsctl/core/model"
)

// ControllerDef mirrors the loop settings a scenario may override.
type ControllerDef struct {
	WindowSize int    `yaml:"window_size"`
	Policy     string `yaml:"policy"`
	Mode       string `yaml:"mode"`
	OnFailure  string `yaml:"on_failure"`
}

// OracleDef scripts the predictions, one pair per decision tick. The last
// value repeats once a list runs out.
type OracleDef struct {
	SoC   []float64 `yaml:"soc"`
	Temps []float64 `yaml:"temps"`
	Fail  bool      `yaml:"fail"`
}

// SamplesDef describes the feature stream. SoC lists explicit readings;
// otherwise Count zero vectors are fed.
type SamplesDef struct {
	Count int       `yaml:"count"`
	SoC   []float64 `yaml:"soc"`
}

// SetModeDef switches the mode once the decision of Tick has been emitted.
type SetModeDef struct {
	Tick int    `yaml:"tick"`
	Mode string `yaml:"mode"`
}

type DecisionDef struct {
	Tick            int     `yaml:"tick"`
	Mode            string  `yaml:"mode"`
	Cooling         string  `yaml:"cooling"`
	AdjustedCurrent float64 `yaml:"adjusted_current"`
	OverTempWarning bool    `yaml:"over_temp_warning"`
}

type Expected struct {
	Decisions     []DecisionDef `yaml:"decisions"`
	Warnings      *int          `yaml:"warnings,omitempty"`
	Failures      *int          `yaml:"failures,omitempty"`
	LastWindowSoC []float64     `yaml:"last_window_soc,omitempty"`
}

type Scenario struct {
	Name        string                      `yaml:"name"`
	Description string                      `yaml:"description,omitempty"`
	Controller  ControllerDef               `yaml:"controller"`
	Modes       map[string]model.ModeParams `yaml:"modes,omitempty"`
	Oracle      OracleDef                   `yaml:"oracle"`
	Classifier  string                      `yaml:"classifier,omitempty"`
	Demand      []float64                   `yaml:"demand"`
	Samples     SamplesDef                  `yaml:"samples"`
	SetMode     *SetModeDef                 `yaml:"set_mode,omitempty"`
	Expected    Expected                    `yaml:"expected"`
}

// Load reads and checks a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario name is required", path)
	}
	if sc.Samples.Count == 0 && len(sc.Samples.SoC) == 0 {
		return nil, fmt.Errorf("%s: no samples", path)
	}
	return &sc, nil
}

// Features expands the sample definition into vectors.
func (s SamplesDef) Features() []model.FeatureVector {
	if len(s.SoC) > 0 {
		out := make([]model.FeatureVector, len(s.SoC))
		for i, v := range s.SoC {
			out[i] = model.FeatureVector{SoC: v}
		}
		return out
	}
	return make([]model.FeatureVector, s.Count)
}
