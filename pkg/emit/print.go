package emit

import (
	"fmt"
	"strconv"
	"strings"
)

var unNames = map[UnOp]string{
	I32Eqz:         "i32.eqz",
	F64ConvertI32S: "f64.convert_i32_s",
	I32TruncF64S:   "i32.trunc_f64_s",
	F64Neg:         "f64.neg",
}

var binNames = map[BinOp]string{
	I32Eq:   "i32.eq",
	I32Ne:   "i32.ne",
	I32And:  "i32.and",
	I32Or:   "i32.or",
	I32Add:  "i32.add",
	I32Sub:  "i32.sub",
	I32ShrU: "i32.shr_u",
	I32GeS:  "i32.ge_s",
	F64Add:  "f64.add",
	F64Sub:  "f64.sub",
	F64Mul:  "f64.mul",
	F64Div:  "f64.div",
	F64Eq:   "f64.eq",
	F64Lt:   "f64.lt",
}

func (op UnOp) String() string  { return unNames[op] }
func (op BinOp) String() string { return binNames[op] }

// Format renders e as a folded s-expression.
func Format(e Expr) string {
	var sb strings.Builder
	format(&sb, e)
	return sb.String()
}

// FormatFunc renders a whole function.
func FormatFunc(f *Func) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(func $%s", f.Name)
	for _, p := range f.Params {
		fmt.Fprintf(&sb, " (param %s)", p)
	}
	if !f.Result.IsNone() {
		fmt.Fprintf(&sb, " (result %s)", f.Result)
	}
	for _, l := range f.Locals {
		fmt.Fprintf(&sb, "\n  (local %s)", l)
	}
	for _, e := range f.Body {
		sb.WriteString("\n  ")
		format(&sb, e)
	}
	sb.WriteString(")")
	return sb.String()
}

func format(sb *strings.Builder, e Expr) {
	if e == nil {
		sb.WriteString("(nil)")
		return
	}
	head := ""
	switch e := e.(type) {
	case *Const:
		switch e.Type {
		case I32:
			fmt.Fprintf(sb, "(i32.const %d)", e.I32())
		case F64:
			fmt.Fprintf(sb, "(f64.const %s)", strconv.FormatFloat(e.F64(), 'g', -1, 64))
		default:
			fmt.Fprintf(sb, "(%s.const 0x%x)", e.Type, e.Bits)
		}
		return
	case *Null:
		fmt.Fprintf(sb, "(ref.null %s)", e.Type)
		return
	case *StringConst:
		fmt.Fprintf(sb, "(string.const %q)", e.Value)
		return
	case *LocalGet:
		fmt.Fprintf(sb, "(local.get %d)", e.Index)
		return
	case *GlobalGet:
		fmt.Fprintf(sb, "(global.get $%s)", e.Name)
		return
	case *StructNewDefault:
		fmt.Fprintf(sb, "(struct.new_default $%s)", e.Type)
		return
	case *Unreachable:
		sb.WriteString("(unreachable)")
		return
	case *RefFunc:
		fmt.Fprintf(sb, "(ref.func $%s)", e.Func)
		return
	case *Br:
		fmt.Fprintf(sb, "(br $%s)", e.Label)
		return
	case *StringMeasure:
		head = "string.measure_wtf16"
	case *LocalSet:
		head = fmt.Sprintf("local.set %d", e.Index)
	case *LocalTee:
		head = fmt.Sprintf("local.tee %d", e.Index)
	case *GlobalSet:
		head = "global.set $" + e.Name
	case *StructNew:
		head = "struct.new $" + e.Type
	case *StructGet:
		head = fmt.Sprintf("struct.get $%s %d", e.Type, e.Index)
	case *StructSet:
		head = fmt.Sprintf("struct.set $%s %d", e.Type, e.Index)
	case *RefCast:
		head = "ref.cast $" + e.Type
	case *RefIsNull:
		head = "ref.is_null"
	case *ArrayNewFixed:
		head = fmt.Sprintf("array.new_fixed $%s %d", e.Type, len(e.Elems))
	case *ArrayGet:
		head = "array.get $" + e.Type
	case *ArraySet:
		head = "array.set $" + e.Type
	case *ArrayLen:
		head = "array.len"
	case *Load:
		head = fmt.Sprintf("i32.load offset=%d", e.Offset)
	case *Unary:
		head = e.Op.String()
	case *Binary:
		head = e.Op.String()
	case *If:
		head = "if"
		if !e.Result.IsNone() {
			head += " (result " + e.Result.String() + ")"
		}
	case *Block:
		head = "block"
		if e.Label != "" {
			head += " $" + e.Label
		}
	case *Call:
		head = "call $" + e.Func
	case *CallRef:
		head = "call_ref $" + e.Sig
	case *TableGet:
		head = "table.get $" + e.Table
	case *Drop:
		head = "drop"
	case *Loop:
		head = "loop $" + e.Label
	case *BrIf:
		head = "br_if $" + e.Label
	case *Return:
		head = "return"
	default:
		head = fmt.Sprintf("%T", e)
	}
	sb.WriteString("(" + head)
	for _, c := range Children(e) {
		sb.WriteString(" ")
		format(sb, c)
	}
	sb.WriteString(")")
}
