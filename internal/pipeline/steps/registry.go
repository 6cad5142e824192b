// Package steps provides stage definitions and dependency validation for the
// phylogeny pipeline.
package steps

import (
	"fmt"
)

// Stage names.
const (
	Acquire     = "acquire"
	Merge       = "merge"
	Extract     = "extract"
	Align       = "align"
	ModelSelect = "model_select"
	TreeBuild   = "tree_build"
	Render      = "render"
)

// Stage categories.
const (
	CategoryAcquisition = "acquisition"
	CategoryPreparation = "preparation"
	CategoryPhylogeny   = "phylogeny"
	CategoryOutput      = "output"
)

// StageDefinition defines metadata for a pipeline stage
type StageDefinition struct {
	Name         string
	Category     string
	Dependencies []string
}

// Order is the fixed order stages run in.
var Order = []string{Acquire, Merge, Extract, Align, ModelSelect, TreeBuild, Render}

// StageRegistry holds all stage definitions
var StageRegistry = map[string]StageDefinition{
	Acquire: {
		Name:         Acquire,
		Category:     CategoryAcquisition,
		Dependencies: []string{},
	},
	Merge: {
		Name:         Merge,
		Category:     CategoryAcquisition,
		Dependencies: []string{Acquire},
	},
	Extract: {
		Name:         Extract,
		Category:     CategoryPreparation,
		Dependencies: []string{Merge},
	},
	Align: {
		Name:         Align,
		Category:     CategoryPreparation,
		Dependencies: []string{Extract},
	},
	ModelSelect: {
		Name:         ModelSelect,
		Category:     CategoryPhylogeny,
		Dependencies: []string{Align},
	},
	TreeBuild: {
		Name:         TreeBuild,
		Category:     CategoryPhylogeny,
		Dependencies: []string{Align, ModelSelect},
	},
	Render: {
		Name:         Render,
		Category:     CategoryOutput,
		Dependencies: []string{Extract, TreeBuild},
	},
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("stage %s is missing dependencies: %v", e.Step, e.MissingDependencies)
}

// ValidateDependencies checks if all required dependencies for a stage are completed
func ValidateDependencies(completed map[string]bool, stageName string) error {
	def, ok := StageRegistry[stageName]
	if !ok {
		return fmt.Errorf("unknown stage: %s", stageName)
	}

	var missing []string
	for _, dep := range def.Dependencies {
		if !completed[dep] {
			missing = append(missing, dep)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{
			Step:                stageName,
			MissingDependencies: missing,
		}
	}

	return nil
}

// ValidateSequence checks that every stage in names comes after the stages it depends on.
func ValidateSequence(names []string) error {
	completed := make(map[string]bool, len(names))
	for _, name := range names {
		if completed[name] {
			return fmt.Errorf("stage %s listed twice", name)
		}
		if err := ValidateDependencies(completed, name); err != nil {
			return err
		}
		completed[name] = true
	}
	return nil
}

// GetAvailableStages returns stages that can run next (dependencies met, not yet completed)
func GetAvailableStages(completed map[string]bool) []string {
	var available []string
	for _, name := range Order {
		if completed[name] {
			continue
		}
		if err := ValidateDependencies(completed, name); err != nil {
			continue
		}
		available = append(available, name)
	}
	return available
}

// GetBlockedStages returns stages whose dependencies are not met
func GetBlockedStages(completed map[string]bool) []string {
	var blocked []string
	for _, name := range Order {
		if completed[name] {
			continue
		}
		if err := ValidateDependencies(completed, name); err != nil {
			blocked = append(blocked, name)
		}
	}
	return blocked
}
