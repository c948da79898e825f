package roledef

import "sort"

// TopoSort orders definitions so that every role precedes the roles
// that inherit from it. Only inheritance edges between members of the
// candidate set are considered; inherited roles outside the set are
// assumed to already exist.
//
// A *CycleError is returned if the inheritance graph is cyclic; no
// partial order is produced in that case.
func TopoSort(defs []RoleDefinition) ([]RoleDefinition, error) {
	byName := make(map[string]RoleDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}

	// indegree counts in-set parents; dependents maps parent -> children.
	indegree := make(map[string]int, len(defs))
	dependents := make(map[string][]string, len(defs))
	for _, def := range defs {
		indegree[def.Name] += 0
		for _, parent := range def.Inherits {
			if _, ok := byName[parent]; !ok {
				continue
			}
			indegree[def.Name]++
			dependents[parent] = append(dependents[parent], def.Name)
		}
	}

	// Seed the queue in input order so independent roles keep a stable,
	// deterministic ordering.
	var queue []string
	for _, def := range defs {
		if indegree[def.Name] == 0 {
			queue = append(queue, def.Name)
		}
	}

	ordered := make([]RoleDefinition, 0, len(defs))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byName[name])
		for _, child := range dependents[name] {
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(ordered) != len(defs) {
		var cyclic []string
		for name, degree := range indegree {
			if degree > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return nil, &CycleError{Roles: cyclic}
	}
	return ordered, nil
}
