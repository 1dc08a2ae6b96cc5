package identity

import "sort"

// Aggregate flattens the permissions reachable through a user's roles into
// one capability entry per distinct resource with deduplicated actions. The
// function is pure and order-independent: any permutation of the same input
// yields the same output. Entries and actions are sorted so repeated runs
// are byte-identical.
func Aggregate(perms []Permission) []ResourcePermissions {
	if len(perms) == 0 {
		return nil
	}
	byResource := make(map[string]map[string]struct{})
	for _, p := range perms {
		if p.Resource == "" || p.Action == "" {
			continue
		}
		actions, ok := byResource[p.Resource]
		if !ok {
			actions = make(map[string]struct{})
			byResource[p.Resource] = actions
		}
		actions[p.Action] = struct{}{}
	}

	resources := make([]string, 0, len(byResource))
	for resource := range byResource {
		resources = append(resources, resource)
	}
	sort.Strings(resources)

	out := make([]ResourcePermissions, 0, len(resources))
	for _, resource := range resources {
		actions := make([]string, 0, len(byResource[resource]))
		for action := range byResource[resource] {
			actions = append(actions, action)
		}
		sort.Strings(actions)
		out = append(out, ResourcePermissions{Resource: resource, Actions: actions})
	}
	return out
}

// RoleNames extracts the deduplicated role name list in input order.
func RoleNames(roles []Role) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if r.Name == "" {
			continue
		}
		if _, ok := seen[r.Name]; ok {
			continue
		}
		seen[r.Name] = struct{}{}
		names = append(names, r.Name)
	}
	return names
}
