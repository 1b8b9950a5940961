package tenants

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"strings"
)

const FallbackName = "router"

// Registry resolves a business phone number id to an automation. The
// number-to-name table comes from static config merged with
// TENANT_REGISTRY_JSON, env entries winning.
type Registry struct {
	automations map[string]Automation
	tenants     map[string]string
	fallback    Automation
}

// Builtins returns the automations shipped with the relay.
func Builtins(menu Menu) map[string]Automation {
	return map[string]Automation{
		FallbackName: Router(),
		"default":    Default(),
		"echo":       Echo("echo"),
		"menu":       menu,
	}
}

// NewRegistry merges the static table with the JSON override. An empty
// envJSON is allowed; malformed JSON is an error.
func NewRegistry(automations map[string]Automation, static map[string]string, envJSON string) (*Registry, error) {
	tenants := maps.Clone(static)
	if tenants == nil {
		tenants = map[string]string{}
	}
	if raw := strings.TrimSpace(envJSON); raw != "" {
		var env map[string]string
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return nil, fmt.Errorf("parse TENANT_REGISTRY_JSON: %w", err)
		}
		maps.Copy(tenants, env)
	}

	r := &Registry{automations: maps.Clone(automations), tenants: tenants}
	if r.automations == nil {
		r.automations = map[string]Automation{}
	}
	r.fallback = r.automations[FallbackName]
	if r.fallback == nil {
		r.fallback = Router()
	}
	return r, nil
}

// Resolve returns the automation for tenant and its name. Unmapped tenants
// and unknown names get the fallback router.
func (r *Registry) Resolve(tenant string) (Automation, string) {
	name, ok := r.tenants[tenant]
	if !ok || tenant == "" {
		return r.fallback, FallbackName
	}
	if a, ok := r.lookup(name); ok {
		return a, name
	}
	return r.fallback, FallbackName
}

// Unknown lists mapped names that match no registered automation.
func (r *Registry) Unknown() []string {
	var out []string
	for tenant, name := range r.tenants {
		if _, ok := r.lookup(name); !ok {
			out = append(out, tenant+"="+name)
		}
	}
	sort.Strings(out)
	return out
}

// Tenants returns a copy of the number-to-name table.
func (r *Registry) Tenants() map[string]string { return maps.Clone(r.tenants) }

// lookup also accepts dotted paths and uses their last segment.
func (r *Registry) lookup(name string) (Automation, bool) {
	if a, ok := r.automations[name]; ok {
		return a, true
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		a, ok := r.automations[name[i+1:]]
		return a, ok
	}
	return nil, false
}
