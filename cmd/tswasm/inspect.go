package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/abi"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/compiler"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/layout"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/typeid"
)

var shellCommands = []string{"classes", "table", "meta", "shape", "groups", "lookup", "help", "quit"}

// shell answers layout queries against an analyzed unit.
type shell struct {
	u   *compiler.Unit
	mem []byte
}

func newShell(u *compiler.Unit) *shell {
	mem := make([]byte, u.Pool.End())
	copy(mem[u.Pool.Base():], u.Pool.Bytes())
	return &shell{u: u, mem: mem}
}

func (s *shell) cstring(addr uint32) string {
	if int(addr) >= len(s.mem) {
		return ""
	}
	end := bytes.IndexByte(s.mem[addr:], 0)
	if end < 0 {
		return string(s.mem[addr:])
	}
	return string(s.mem[addr : addr+uint32(end)])
}

func (s *shell) table(w io.Writer, name string) (*layout.Table, bool) {
	t, ok := s.u.Table(name)
	if !ok {
		fmt.Fprintf(w, "no class or interface named %q\n", name)
	}
	return t, ok
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(w io.Writer, line string) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(w, "classes | table <name> | meta <name> | shape <name> | groups | lookup <name> <member> [flag] | quit")
	case "classes":
		for _, r := range s.u.Classes {
			t := s.u.Tables[r]
			fmt.Fprintf(w, "%-10s %s id=%d\n", kindName(s.u, r), t.Name, t.TypeID)
		}
	case "groups":
		for i, g := range s.u.RecGroups() {
			fmt.Fprintf(w, "%d: %s\n", i, strings.Join(g, ", "))
		}
	case "table", "meta", "shape":
		if len(args) != 2 {
			fmt.Fprintf(w, "usage: %s <name>\n", args[0])
			return false
		}
		t, ok := s.table(w, args[1])
		if !ok {
			return false
		}
		switch args[0] {
		case "table":
			printTable(w, s.u, t)
		case "meta":
			printMeta(w, s.u, t)
		case "shape":
			fmt.Fprintln(w, typeid.Shape(s.u.Graph, t.Class))
		}
	case "lookup":
		s.lookup(w, args[1:])
	default:
		fmt.Fprintf(w, "unknown command %q, try help\n", args[0])
	}
	return false
}

// lookup resolves a member through the encoded meta, the way the runtime
// slow path does.
func (s *shell) lookup(w io.Writer, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(w, "usage: lookup <name> <member> [field|method|getter|setter]")
		return
	}
	t, ok := s.table(w, args[0])
	if !ok {
		return
	}
	flag := abi.FlagAll
	if len(args) > 2 {
		found := false
		for f := abi.FlagField; f <= abi.FlagAll; f++ {
			if f.String() == args[2] {
				flag, found = f, true
			}
		}
		if !found {
			fmt.Fprintf(w, "unknown member kind %q\n", args[2])
			return
		}
	}
	addr, _ := s.u.MetaAddr(t.Name)
	word, tag := layout.LookupEncoded(s.mem, addr, args[1], flag, s.cstring)
	if word == abi.PropertyNotFound {
		fmt.Fprintf(w, "%s.%s: not found\n", t.Name, args[1])
		return
	}
	fmt.Fprintf(w, "%s.%s: %s index=%d tag=%d\n", t.Name, args[1], abi.UnpackFlag(word), abi.UnpackIndex(word), tag)
}

func (s *shell) complete(line string) []string {
	var out []string
	args := strings.Fields(line)
	if len(args) <= 1 && !strings.HasSuffix(line, " ") {
		for _, c := range shellCommands {
			if strings.HasPrefix(c, line) {
				out = append(out, c)
			}
		}
		return out
	}
	prefix := ""
	if !strings.HasSuffix(line, " ") {
		prefix = args[len(args)-1]
		line = strings.TrimSuffix(line, prefix)
	}
	for _, r := range s.u.Classes {
		if name := s.u.Tables[r].Name; strings.HasPrefix(name, prefix) {
			out = append(out, line+name)
		}
	}
	sort.Strings(out)
	return out
}

func inspectCmd(args []string) error {
	u, err := load("inspect", args)
	if err != nil {
		return err
	}
	sh := newShell(u)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(sh.complete)

	history := filepath.Join(os.TempDir(), ".tswasm_history")
	if f, err := os.Open(history); err == nil {
		ln.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("tswasm %s: %d types in %s (help for commands)\n", version, len(u.Classes), u.Source.Name)
	for {
		line, err := ln.Prompt("tswasm> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) != "" {
			ln.AppendHistory(line)
		}
		if sh.exec(os.Stdout, line) {
			break
		}
	}

	if f, err := os.Create(history); err == nil {
		ln.WriteHistory(f)
		f.Close()
	}
	return nil
}
