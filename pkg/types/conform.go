package types

import "github.com/GriffinCanCode/tswasm-compiler/pkg/logger"

// MissingMembers lists the members iface requires that class lacks or
// declares with a different kind. Optional interface members are not
// required.
func (g *Graph) MissingMembers(class, iface Ref) []string {
	cc, ic := g.Class(class), g.Class(iface)
	if cc == nil || ic == nil {
		return []string{"not an object type"}
	}
	logger.Debug("Checking structural conformance", "class", cc.Name, "interface", ic.Name)

	var missing []string
	for _, want := range ic.Members {
		have := cc.Member(want.Name)
		switch {
		case have == nil && want.Optional:
		case have == nil:
			missing = append(missing, "missing member: "+want.Name)
		case have.Kind != want.Kind && !(want.Kind == MemberField && have.Kind == MemberAccessor):
			missing = append(missing, "member kind differs: "+want.Name)
		}
	}
	return missing
}

// Conforms reports whether class structurally provides iface.
func (g *Graph) Conforms(class, iface Ref) bool {
	return len(g.MissingMembers(class, iface)) == 0
}
