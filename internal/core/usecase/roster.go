package usecase

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/constructiq/plan-analysis/internal/core/domain"
)

// ModelSpec describes one roster entry: a model plus its static
// per-task specialization scores.
type ModelSpec struct {
	Provider string                      `yaml:"provider"`
	Model    string                      `yaml:"model"`
	Scores   map[domain.TaskType]float64 `yaml:"scores"`
}

func (m ModelSpec) scoreFor(taskType domain.TaskType) float64 {
	return m.Scores[taskType]
}

// DefaultRoster is the built-in model lineup. Scores are empirical
// weights, not measured benchmarks.
func DefaultRoster() []ModelSpec {
	return []ModelSpec{
		{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-5",
			Scores: map[domain.TaskType]float64{
				domain.TaskTakeoff:        0.92,
				domain.TaskQuality:        0.94,
				domain.TaskBidAnalysis:    0.90,
				domain.TaskCodeCompliance: 0.93,
				domain.TaskCostEstimation: 0.88,
			},
		},
		{
			Provider: "openai",
			Model:    "gpt-4o",
			Scores: map[domain.TaskType]float64{
				domain.TaskTakeoff:        0.90,
				domain.TaskQuality:        0.88,
				domain.TaskBidAnalysis:    0.91,
				domain.TaskCodeCompliance: 0.87,
				domain.TaskCostEstimation: 0.90,
			},
		},
		{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			Scores: map[domain.TaskType]float64{
				domain.TaskTakeoff:        0.86,
				domain.TaskQuality:        0.84,
				domain.TaskBidAnalysis:    0.85,
				domain.TaskCodeCompliance: 0.84,
				domain.TaskCostEstimation: 0.86,
			},
		},
		{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Scores: map[domain.TaskType]float64{
				domain.TaskTakeoff:        0.78,
				domain.TaskQuality:        0.75,
				domain.TaskBidAnalysis:    0.77,
				domain.TaskCodeCompliance: 0.74,
				domain.TaskCostEstimation: 0.79,
			},
		},
	}
}

// LoadRoster reads a YAML roster file. An empty path means the
// built-in roster.
func LoadRoster(path string) ([]ModelSpec, error) {
	if path == "" {
		return DefaultRoster(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}

	var file struct {
		Models []ModelSpec `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse roster file: %w", err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("roster file %s lists no models", path)
	}
	for i, spec := range file.Models {
		if spec.Provider == "" || spec.Model == "" {
			return nil, fmt.Errorf("roster entry %d missing provider or model", i)
		}
	}
	return file.Models, nil
}

// selectModels ranks the roster by task-type score and returns up to
// maxModels entries whose provider passes the availability filter.
func selectModels(roster []ModelSpec, taskType domain.TaskType, maxModels int, available func(provider string) bool) []ModelSpec {
	ranked := make([]ModelSpec, len(roster))
	copy(ranked, roster)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].scoreFor(taskType) > ranked[j].scoreFor(taskType)
	})

	if maxModels <= 0 || maxModels > 5 {
		maxModels = 5
	}

	selected := make([]ModelSpec, 0, maxModels)
	for _, spec := range ranked {
		if len(selected) == maxModels {
			break
		}
		if available != nil && !available(spec.Provider) {
			continue
		}
		selected = append(selected, spec)
	}
	return selected
}
