package rolemgr

import (
	"github.com/tendant/pg-role-manager/pkg/registry"
	"github.com/tendant/pg-role-manager/pkg/roledef"
)

// Plan partitions candidate definitions into the work a convergence
// pass will perform.
type Plan struct {
	Create []roledef.RoleDefinition
	Update []roledef.RoleDefinition
	Skip   []roledef.RoleDefinition
}

// Pending returns the definitions that require SQL execution.
func (p Plan) Pending() []roledef.RoleDefinition {
	pending := make([]roledef.RoleDefinition, 0, len(p.Create)+len(p.Update))
	pending = append(pending, p.Create...)
	pending = append(pending, p.Update...)
	return pending
}

// Diff computes the convergence plan for a candidate set against the
// stored per-role state. It is a pure function: no SQL, no clock.
//
//   - no stored entry            -> create
//   - checksum differs, or force -> update
//   - otherwise                  -> skip
func Diff(candidates []roledef.RoleDefinition, stored map[string]registry.RoleState, forceUpdate bool) Plan {
	var plan Plan
	for _, def := range candidates {
		state, ok := stored[def.Name]
		switch {
		case !ok:
			plan.Create = append(plan.Create, def)
		case state.Checksum != def.Checksum || forceUpdate:
			plan.Update = append(plan.Update, def)
		default:
			plan.Skip = append(plan.Skip, def)
		}
	}
	return plan
}
