package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, table *SymbolTable, cmd Command) string {
	t.Helper()
	return Execute(cmd, Env{Table: table})
}

func TestPrint(t *testing.T) {
	table := NewSymbolTable(4)
	table.Set("x", 7)

	assert.Equal(t, "Value from: 7", run(t, table, Print(Text("Value from:"), Ref("x"))))
	assert.Equal(t, "hello 0 7", run(t, table, PrintTokens(`"hello"`, "+", "missing", "+", "x")))
	assert.Equal(t, 1, table.Len(), "print does not create symbols")
}

func TestArithmeticWrapsAround(t *testing.T) {
	table := NewSymbolTable(8)

	run(t, table, Declare("a", 65535))
	out := run(t, table, Add("sum", Var("a"), Lit(2)))
	assert.Equal(t, "ADD sum = a + 2 = 1", out)
	assert.Equal(t, uint16(1), table.Get("sum"))

	run(t, table, Subtract("diff", Lit(1), Var("unset")))
	assert.Equal(t, uint16(1), table.Get("diff"))

	run(t, table, Subtract("diff", Lit(0), Lit(1)))
	assert.Equal(t, uint16(65535), table.Get("diff"))
}

func TestDeclareWhenFull(t *testing.T) {
	table := NewSymbolTable(1)

	assert.Equal(t, "DECLARE a = 1", run(t, table, Declare("a", 1)))
	assert.Equal(t, "DECLARE b skipped: symbol table full", run(t, table, Declare("b", 2)))
	assert.Contains(t, run(t, table, Add("c", Lit(1), Lit(1))), "dropped")
	_, ok := table.Lookup("b")
	assert.False(t, ok)
}

func TestReadAndWrite(t *testing.T) {
	table := NewSymbolTable(8)

	out := run(t, table, Read("v", 0x500))
	assert.Equal(t, "READ v <- 0x500 = 0", out)
	_, ok := table.Lookup("v")
	assert.True(t, ok, "READ of a missing address still creates the variable")

	run(t, table, Declare("src", 123))
	assert.Equal(t, "WRITE 0x500 <- 123", run(t, table, Write(0x500, Var("src"))))
	run(t, table, Read("v", 0x500))
	assert.Equal(t, uint16(123), table.Get("v"))

	run(t, table, Write(0x500, Lit(9)))
	got, _ := table.GetAt(0x500)
	assert.Equal(t, uint16(9), got)
}

func TestForRepeatsBody(t *testing.T) {
	table := NewSymbolTable(8)
	run(t, table, Declare("i", 0))

	loop := For(2, 5, Add("i", Var("i"), Lit(1)), Add("i", Var("i"), Lit(10)))
	assert.Equal(t, "FOR 2..5 ran 2 commands 3 times", run(t, table, loop))
	assert.Equal(t, uint16(33), table.Get("i"))

	nested := For(0, 2, For(0, 3, Add("i", Var("i"), Lit(1))))
	run(t, table, nested)
	assert.Equal(t, uint16(39), table.Get("i"))

	assert.Equal(t, "FOR 3..1 ran 0 commands 0 times", run(t, table, For(3, 1)))
}

func TestForOwnsItsBody(t *testing.T) {
	body := []Command{Declare("a", 1)}
	loop := For(0, 1, body...).(ForCmd)
	body[0] = Declare("b", 2)

	assert.Equal(t, DeclareCmd{Name: "a", Value: 1}, loop.Body[0])
}

func TestSleepHonoursDone(t *testing.T) {
	done := make(chan struct{})
	close(done)

	start := time.Now()
	out := Execute(Sleep(time.Hour), Env{Table: NewSymbolTable(1), Done: done})
	assert.Equal(t, "SLEEP 1h0m0s", out)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepBlocks(t *testing.T) {
	start := time.Now()
	Execute(Sleep(20*time.Millisecond), Env{Table: NewSymbolTable(1)})
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDataAddress(t *testing.T) {
	addr, write, ok := DataAddress(Write(0x20, Lit(1)))
	require.True(t, ok)
	assert.True(t, write)
	assert.Equal(t, uint32(0x20), addr)

	addr, write, ok = DataAddress(Read("x", 0x40))
	require.True(t, ok)
	assert.False(t, write)
	assert.Equal(t, uint32(0x40), addr)

	_, _, ok = DataAddress(Declare("x", 1))
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "SUBTRACT", Subtract("a", Lit(1), Lit(1)).Kind().String())
	assert.Equal(t, "FOR", For(0, 1).Kind().String())
}
