package identity

import "testing"

func TestAbilityCan(t *testing.T) {
	caps := []ResourcePermissions{
		{Resource: "posts", Actions: []string{"read", "write"}},
		{Resource: "reports", Actions: []string{"manage"}},
	}
	a := NewAbility([]string{"editor"}, caps, nil, AbilityConfig{})

	cases := []struct {
		action, resource string
		want             bool
	}{
		{"read", "posts", true},
		{"write", "posts", true},
		{"delete", "posts", false},
		{"read", "reports", true},
		{"delete", "reports", true},
		{"read", "billing", false},
		{"", "posts", false},
		{"read", "", false},
	}
	for _, tc := range cases {
		if got := a.Can(tc.action, tc.resource); got != tc.want {
			t.Errorf("Can(%q, %q) = %v, want %v", tc.action, tc.resource, got, tc.want)
		}
	}
}

func TestAbilityWildcards(t *testing.T) {
	a := NewAbility(nil, []ResourcePermissions{
		{Resource: "*", Actions: []string{"*"}},
	}, nil, AbilityConfig{})
	if !a.Can("purge", "anything") {
		t.Fatal("full wildcard must grant any pair")
	}

	b := NewAbility(nil, []ResourcePermissions{
		{Resource: "all", Actions: []string{"read"}},
	}, nil, AbilityConfig{})
	if !b.Can("read", "billing") {
		t.Fatal(`resource "all" must match any resource`)
	}
	if b.Can("write", "billing") {
		t.Fatal(`resource "all" must not widen the action`)
	}
}

func TestAbilitySuperAdmin(t *testing.T) {
	a := NewAbility([]string{"super_admin"}, nil, nil, AbilityConfig{})
	if !a.Can("delete", "tenants") {
		t.Fatal("super admin must pass every check")
	}
	rules := a.Rules()
	if len(rules) != 1 || rules[0].Condition != nil {
		t.Fatalf("super admin rule must be unconditional, got %+v", rules)
	}
}

func TestAbilityTenantAdminCondition(t *testing.T) {
	tid := "tenant-1"
	a := NewAbility([]string{"tenant_admin"}, nil, &tid, AbilityConfig{})
	if !a.Can("manage", "users") {
		t.Fatal("tenant admin must pass action checks")
	}
	rules := a.Rules()
	if len(rules) != 1 {
		t.Fatalf("expected one rule, got %d", len(rules))
	}
	if got := rules[0].Condition["tenant_id"]; got != tid {
		t.Fatalf("tenant admin rule must carry the tenant condition, got %v", got)
	}
}

func TestAbilityCustomRoleNames(t *testing.T) {
	cfg := AbilityConfig{SuperAdminRole: "root", TenantAdminRole: "org_owner"}
	a := NewAbility([]string{"super_admin"}, nil, nil, cfg)
	if a.Can("read", "posts") {
		t.Fatal("default role name must not elevate once overridden")
	}
	b := NewAbility([]string{"root"}, nil, nil, cfg)
	if !b.Can("read", "posts") {
		t.Fatal("configured super admin role must elevate")
	}
}

func TestAbilityNilReceiver(t *testing.T) {
	var a *Ability
	if a.Can("read", "posts") {
		t.Fatal("nil ability must deny")
	}
	if a.Rules() != nil {
		t.Fatal("nil ability has no rules")
	}
}
