package process

import (
	"fmt"
	"strings"
	"time"
)

type Kind uint8

const (
	KindPrint Kind = iota
	KindDeclare
	KindAdd
	KindSubtract
	KindRead
	KindWrite
	KindSleep
	KindFor
)

func (k Kind) String() string {
	switch k {
	case KindPrint:
		return "PRINT"
	case KindDeclare:
		return "DECLARE"
	case KindAdd:
		return "ADD"
	case KindSubtract:
		return "SUBTRACT"
	case KindRead:
		return "READ"
	case KindWrite:
		return "WRITE"
	case KindSleep:
		return "SLEEP"
	case KindFor:
		return "FOR"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Command is one instruction. The concrete types below are the only
// implementations; Execute dispatches on them with a type switch.
type Command interface {
	Kind() Kind
	isCommand()
}

// Operand is either a variable reference or a literal.
type Operand struct {
	Var   string
	Value uint16
}

func Var(name string) Operand   { return Operand{Var: name} }
func Lit(value uint16) Operand { return Operand{Value: value} }

func (o Operand) resolve(t *SymbolTable) uint16 {
	if o.Var == "" {
		return o.Value
	}
	return t.Get(o.Var)
}

func (o Operand) String() string {
	if o.Var == "" {
		return fmt.Sprint(o.Value)
	}
	return o.Var
}

// PrintPart is a literal chunk of text or a variable substitution.
type PrintPart struct {
	Text string
	Var  string
}

type (
	PrintCmd struct {
		Parts []PrintPart
	}
	DeclareCmd struct {
		Name  string
		Value uint16
	}
	AddCmd struct {
		Out  string
		A, B Operand
	}
	SubtractCmd struct {
		Out  string
		A, B Operand
	}
	ReadCmd struct {
		Out     string
		Address uint32
	}
	WriteCmd struct {
		Address uint32
		Value   Operand
	}
	SleepCmd struct {
		Duration time.Duration
	}
	ForCmd struct {
		Start, End int
		Body       []Command
	}
)

func (PrintCmd) Kind() Kind    { return KindPrint }
func (DeclareCmd) Kind() Kind  { return KindDeclare }
func (AddCmd) Kind() Kind      { return KindAdd }
func (SubtractCmd) Kind() Kind { return KindSubtract }
func (ReadCmd) Kind() Kind     { return KindRead }
func (WriteCmd) Kind() Kind    { return KindWrite }
func (SleepCmd) Kind() Kind    { return KindSleep }
func (ForCmd) Kind() Kind      { return KindFor }

func (PrintCmd) isCommand()    {}
func (DeclareCmd) isCommand()  {}
func (AddCmd) isCommand()      {}
func (SubtractCmd) isCommand() {}
func (ReadCmd) isCommand()     {}
func (WriteCmd) isCommand()    {}
func (SleepCmd) isCommand()    {}
func (ForCmd) isCommand()      {}

func Print(parts ...PrintPart) Command { return PrintCmd{Parts: parts} }
func Text(s string) PrintPart           { return PrintPart{Text: s} }
func Ref(name string) PrintPart         { return PrintPart{Var: name} }

func Declare(name string, value uint16) Command { return DeclareCmd{Name: name, Value: value} }
func Add(out string, a, b Operand) Command      { return AddCmd{Out: out, A: a, B: b} }
func Subtract(out string, a, b Operand) Command { return SubtractCmd{Out: out, A: a, B: b} }
func Read(out string, addr uint32) Command      { return ReadCmd{Out: out, Address: addr} }
func Write(addr uint32, value Operand) Command  { return WriteCmd{Address: addr, Value: value} }
func Sleep(d time.Duration) Command             { return SleepCmd{Duration: d} }

// For copies body so the loop owns its commands.
func For(start, end int, body ...Command) Command {
	return ForCmd{Start: start, End: end, Body: append([]Command(nil), body...)}
}

// PrintTokens builds a PRINT from console-style tokens: quoted tokens are
// literal text, "+" is a separator, anything else is a variable name.
func PrintTokens(tokens ...string) Command {
	parts := make([]PrintPart, 0, len(tokens))
	for _, tok := range tokens {
		switch {
		case tok == "+" || tok == "":
			continue
		case strings.HasPrefix(tok, `"`):
			parts = append(parts, Text(strings.Trim(tok, `"`)))
		default:
			parts = append(parts, Ref(tok))
		}
	}
	return PrintCmd{Parts: parts}
}

// Env is what a command executes against.
type Env struct {
	Table *SymbolTable
	// Delay is the fixed per-instruction overhead.
	Delay time.Duration
	// Done, when closed, cuts sleeps short.
	Done <-chan struct{}
}

// Execute runs cmd and returns the line it logs.
func Execute(cmd Command, env Env) string {
	pause(env, env.Delay)

	switch c := cmd.(type) {
	case PrintCmd:
		out := make([]string, 0, len(c.Parts))
		for _, part := range c.Parts {
			if part.Var != "" {
				out = append(out, fmt.Sprint(env.Table.Get(part.Var)))
			} else {
				out = append(out, part.Text)
			}
		}
		return strings.Join(out, " ")

	case DeclareCmd:
		if !env.Table.Declare(c.Name, c.Value) {
			return fmt.Sprintf("DECLARE %s skipped: symbol table full", c.Name)
		}
		return fmt.Sprintf("DECLARE %s = %d", c.Name, c.Value)

	case AddCmd:
		a, b := c.A.resolve(env.Table), c.B.resolve(env.Table)
		sum := a + b
		return fmt.Sprintf("ADD %s = %s + %s = %d%s", c.Out, c.A, c.B, sum, stored(env.Table.Set(c.Out, sum)))

	case SubtractCmd:
		a, b := c.A.resolve(env.Table), c.B.resolve(env.Table)
		diff := a - b
		return fmt.Sprintf("SUBTRACT %s = %s - %s = %d%s", c.Out, c.A, c.B, diff, stored(env.Table.Set(c.Out, diff)))

	case ReadCmd:
		value, _ := env.Table.GetAt(c.Address)
		return fmt.Sprintf("READ %s <- 0x%X = %d%s", c.Out, c.Address, value, stored(env.Table.Set(c.Out, value)))

	case WriteCmd:
		value := c.Value.resolve(env.Table)
		return fmt.Sprintf("WRITE 0x%X <- %d%s", c.Address, value, stored(env.Table.WriteAt(c.Address, value)))

	case SleepCmd:
		pause(env, c.Duration)
		return fmt.Sprintf("SLEEP %v", c.Duration)

	case ForCmd:
		n := c.End - c.Start
		for i := 0; i < n; i++ {
			for _, inner := range c.Body {
				Execute(inner, env)
			}
		}
		return fmt.Sprintf("FOR %d..%d ran %d commands %d times", c.Start, c.End, len(c.Body), max(n, 0))
	}
	panic(fmt.Sprintf("process: unknown command %T", cmd))
}

// DataAddress reports the memory address a READ or WRITE touches.
func DataAddress(cmd Command) (addr uint32, write bool, ok bool) {
	switch c := cmd.(type) {
	case ReadCmd:
		return c.Address, false, true
	case WriteCmd:
		return c.Address, true, true
	}
	return 0, false, false
}

func stored(ok bool) string {
	if ok {
		return ""
	}
	return " (dropped: symbol table full)"
}

func pause(env Env, d time.Duration) {
	if d <= 0 {
		return
	}
	if env.Done == nil {
		time.Sleep(d)
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-env.Done:
	}
}
