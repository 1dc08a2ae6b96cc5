package identity

// Well-known elevated roles and the manage-implies-all action.
const (
	ActionManage = "manage"
	ResourceAll  = "all"

	DefaultSuperAdminRole  = "super_admin"
	DefaultTenantAdminRole = "tenant_admin"
)

// Rule grants Action on Resource. Condition, when present, is an opaque
// instance-level filter the caller must enforce against concrete resources;
// the evaluator only records it.
type Rule struct {
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Condition map[string]any `json:"condition,omitempty"`
}

// AbilityConfig names the elevated roles. Zero values fall back to the
// defaults.
type AbilityConfig struct {
	SuperAdminRole  string
	TenantAdminRole string
}

// Ability is the evaluated rule table for one authenticated principal.
type Ability struct {
	rules []Rule
}

// NewAbility builds the rule table from aggregated capabilities plus the
// elevated-role shortcuts. A super administrator gets manage on all
// unconditionally. A tenant administrator gets manage on all scoped by a
// matching-tenant-id condition.
func NewAbility(roleNames []string, caps []ResourcePermissions, tenantID *string, cfg AbilityConfig) *Ability {
	superAdmin := cfg.SuperAdminRole
	if superAdmin == "" {
		superAdmin = DefaultSuperAdminRole
	}
	tenantAdmin := cfg.TenantAdminRole
	if tenantAdmin == "" {
		tenantAdmin = DefaultTenantAdminRole
	}

	var rules []Rule
	for _, cap := range caps {
		for _, action := range cap.Actions {
			rules = append(rules, Rule{Action: action, Resource: cap.Resource})
		}
	}
	for _, name := range roleNames {
		switch name {
		case superAdmin:
			rules = append(rules, Rule{Action: ActionManage, Resource: ResourceAll})
		case tenantAdmin:
			rule := Rule{Action: ActionManage, Resource: ResourceAll}
			if tenantID != nil {
				rule.Condition = map[string]any{"tenant_id": *tenantID}
			}
			rules = append(rules, rule)
		}
	}
	return &Ability{rules: rules}
}

// Can reports whether any rule grants the action on the resource. Manage is
// a superset of every other action; "all" and "*" are resource wildcards.
// Unknown pairs are denied, never an error.
func (a *Ability) Can(action, resource string) bool {
	if a == nil || action == "" || resource == "" {
		return false
	}
	for _, r := range a.rules {
		if !actionMatches(r.Action, action) {
			continue
		}
		if resourceMatches(r.Resource, resource) {
			return true
		}
	}
	return false
}

// Rules returns a copy of the rule table, including conditions, for
// downstream enforcement.
func (a *Ability) Rules() []Rule {
	if a == nil || len(a.rules) == 0 {
		return nil
	}
	out := make([]Rule, len(a.rules))
	copy(out, a.rules)
	return out
}

func actionMatches(granted, requested string) bool {
	return granted == requested || granted == ActionManage || granted == "*"
}

func resourceMatches(granted, requested string) bool {
	return granted == requested || granted == ResourceAll || granted == "*"
}
