package coursegen

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/moarshy/courseforge-backend/internal/platform/logger"
)

const pipelineSpecEnv = "COURSEGEN_PIPELINE_YAML"

//go:embed coursegen.yaml
var pipelineSpecFS embed.FS

type yamlPipelineSpec struct {
	Pipeline string          `yaml:"pipeline"`
	Version  int             `yaml:"version"`
	Stages   []yamlStageSpec `yaml:"stages"`
}

type yamlStageSpec struct {
	Name     string         `yaml:"name"`
	Progress yamlBand       `yaml:"progress"`
	Config   map[string]any `yaml:"config"`
}

type yamlBand struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// fallback bands used when the YAML is missing or invalid
var fallbackBands = map[Stage]yamlBand{
	StageRepoIntake:        {Start: 0, End: 15},
	StageDocumentAnalysis:  {Start: 15, End: 45},
	StagePathwayBuilding:   {Start: 45, End: 65},
	StageContentGeneration: {Start: 65, End: 100},
}

var specOnce sync.Once
var specCache map[Stage]yamlStageSpec
var specErr error

func loadPipelineSpec() (map[Stage]yamlStageSpec, error) {
	var data []byte
	var err error
	if path := strings.TrimSpace(os.Getenv(pipelineSpecEnv)); path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = pipelineSpecFS.ReadFile("coursegen.yaml")
	}
	if err != nil {
		return nil, err
	}

	var spec yamlPipelineSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}

	out := make(map[Stage]yamlStageSpec, len(spec.Stages))
	for _, st := range spec.Stages {
		stage, perr := ParseStage(st.Name)
		if perr != nil {
			return nil, perr
		}
		if st.Progress.End < st.Progress.Start {
			return nil, fmt.Errorf("coursegen: stage %s has inverted progress band", st.Name)
		}
		out[stage] = st
	}
	for _, stage := range stageOrder {
		if _, ok := out[stage]; !ok {
			return nil, fmt.Errorf("coursegen: pipeline spec missing stage %s", stage)
		}
	}
	return out, nil
}

func pipelineSpec(log *logger.Logger) map[Stage]yamlStageSpec {
	specOnce.Do(func() {
		specCache, specErr = loadPipelineSpec()
	})
	if specErr != nil {
		if log != nil {
			log.Warn("coursegen: pipeline spec load failed; using fallback bands", "error", specErr.Error())
		}
		return nil
	}
	return specCache
}

// stageBand returns the [start,end] progress band for a stage.
func stageBand(log *logger.Logger, stage Stage) (int, int) {
	if spec := pipelineSpec(log); spec != nil {
		if st, ok := spec[stage]; ok {
			return st.Progress.Start, st.Progress.End
		}
	}
	if b, ok := fallbackBands[stage]; ok {
		return b.Start, b.End
	}
	return 0, 100
}

func stageConfigInt(log *logger.Logger, stage Stage, key string, def int) int {
	if spec := pipelineSpec(log); spec != nil {
		if st, ok := spec[stage]; ok {
			if v, ok := st.Config[key]; ok {
				switch t := v.(type) {
				case int:
					return t
				case float64:
					return int(t)
				}
			}
		}
	}
	return def
}

func stageConfigFloat(log *logger.Logger, stage Stage, key string, def float64) float64 {
	if spec := pipelineSpec(log); spec != nil {
		if st, ok := spec[stage]; ok {
			if v, ok := st.Config[key]; ok {
				switch t := v.(type) {
				case int:
					return float64(t)
				case float64:
					return t
				}
			}
		}
	}
	return def
}
