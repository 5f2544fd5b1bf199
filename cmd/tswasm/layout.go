package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/compiler"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/layout"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/types"
)

func kindName(u *compiler.Unit, r types.Ref) string {
	if u.Graph.IsInterface(r) {
		return "interface"
	}
	return "class"
}

// printLayout writes type ids, recursion groups and slot tables.
func printLayout(w io.Writer, u *compiler.Unit) {
	fmt.Fprintf(w, "unit %s: %d types\n", u.Source.Name, len(u.Classes))
	for _, r := range u.Classes {
		printTable(w, u, u.Tables[r])
	}
	groups := u.RecGroups()
	if len(groups) > 0 {
		fmt.Fprintln(w, "recursion groups:")
		for i, g := range groups {
			fmt.Fprintf(w, "  %d: %s\n", i, strings.Join(g, ", "))
		}
	}
}

func printTable(w io.Writer, u *compiler.Unit, t *layout.Table) {
	fmt.Fprintf(w, "%s %s id=%d", kindName(u, t.Class), t.Name, t.TypeID)
	if t.ImplID != 0 {
		fmt.Fprintf(w, " impl=%d", t.ImplID)
	}
	fmt.Fprintf(w, " fields=%d vtable=%d\n", t.Fields, t.VtableSize)
	for _, s := range t.Slots {
		printSlot(w, u, s, "")
	}
	for _, s := range t.Hidden {
		printSlot(w, u, s, " (hidden)")
	}
	for _, s := range t.Statics {
		printSlot(w, u, s, " (static)")
	}
}

func printSlot(w io.Writer, u *compiler.Unit, s layout.MemberSlot, note string) {
	opt := ""
	if s.Optional {
		opt = "?"
	}
	typ := u.Graph.String(s.Type)
	if s.Sig.Valid() {
		typ = u.Graph.String(s.Sig)
	}
	fmt.Fprintf(w, "  %-6s %2d  %s%s: %s tag=%d%s\n", s.Kind, s.StructIndex(), s.Name, opt, typ, s.Tag, note)
}

// printMeta writes a meta descriptor as the runtime sees it.
func printMeta(w io.Writer, u *compiler.Unit, t *layout.Table) {
	m := u.Metas[t.Class]
	addr, _ := u.MetaAddr(t.Name)
	fmt.Fprintf(w, "meta %s @%d type=%d impl=%d count=%d\n", t.Name, addr, m.TypeID, m.ImplID, len(m.Entries))
	for _, e := range m.Entries {
		fmt.Fprintf(w, "  %-8s %#08x %s tag=%d\n", e.Flag, uint32(e.FlagAndIndex()), e.Name, e.Tag)
	}
}

// printTypes writes every node of the type graph.
func printTypes(w io.Writer, u *compiler.Unit) {
	g := u.Graph
	for i := 1; i < g.Len(); i++ {
		r := types.Ref(i)
		fmt.Fprintf(w, "%4d %-10s %s\n", i, g.Kind(r), g.String(r))
	}
}
