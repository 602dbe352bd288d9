package supervisor

import (
	"sort"
	"strings"

	"github.com/monstack/monstack/pkg/errors"
)

// TopologicalOrder returns the specs ordered so that every service appears
// after all of its dependencies, preserving the input order among ties.
// Unknown dependency ids are a configuration error; cycles are a dependency
// cycle error. Both are detected before any process is spawned.
func TopologicalOrder(specs []ServiceSpec) ([]ServiceSpec, error) {
	byID := make(map[string]ServiceSpec, len(specs))
	for _, spec := range specs {
		if _, exists := byID[spec.ID]; exists {
			return nil, errors.NewConfigurationError("duplicate service id", nil).
				WithContext("service_id", spec.ID)
		}
		byID[spec.ID] = spec
	}

	// Unknown dependencies fail before any ordering work
	for _, spec := range specs {
		for _, dep := range spec.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, errors.NewConfigurationError(
					"service depends on unknown service id: "+dep, nil).
					WithContext("service_id", spec.ID).WithContext("dependency", dep)
			}
		}
	}

	// Kahn's algorithm with a queue that preserves input order
	indegree := make(map[string]int, len(specs))
	dependents := make(map[string][]string, len(specs))
	for _, spec := range specs {
		indegree[spec.ID] = len(spec.DependsOn)
		for _, dep := range spec.DependsOn {
			dependents[dep] = append(dependents[dep], spec.ID)
		}
	}

	var queue []string
	for _, spec := range specs {
		if indegree[spec.ID] == 0 {
			queue = append(queue, spec.ID)
		}
	}

	ordered := make([]ServiceSpec, 0, len(specs))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byID[id])

		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(ordered) != len(specs) {
		var cycle []string
		for id, degree := range indegree {
			if degree > 0 {
				cycle = append(cycle, id)
			}
		}
		sort.Strings(cycle)
		return nil, errors.NewDependencyCycleError(
			"dependency cycle among services: "+strings.Join(cycle, ", "), nil)
	}

	return ordered, nil
}
