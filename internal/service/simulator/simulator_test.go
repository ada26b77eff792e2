package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSimulatePrints(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   string
	}{
		{name: "mixed quotes", source: "print(\"a\")\nprint('b')", want: "a\nb"},
		{name: "space before paren", source: `print ("spaced")`, want: "spaced"},
		{name: "parens inside literal", source: `print("a(b)")`, want: "a(b)"},
		{name: "escapes", source: `print('it\'s\tok\n')`, want: "it's\tok\n"},
		{name: "expression kept verbatim", source: `print(len("ab"))`, want: `len("ab")`},
		{name: "concatenation kept verbatim", source: `print("a" + "b")`, want: `"a" + "b"`},
		{name: "unquoted variable", source: "x = 3\nprint( x )", want: "x"},
		{name: "indented in block", source: "for i in range(2):\n    print(\"loop\")", want: "loop"},
		{name: "empty call", source: "print()", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Simulate(tc.source).Output)
		})
	}
}

func TestSimulateIgnoresNonCalls(t *testing.T) {
	sources := []string{
		"x = 1",
		`# print("commented")`,
		`s = "print('quoted')"`,
		`sprint("other identifier")`,
		`print("never closed"`,
		"print",
	}
	for _, src := range sources {
		require.Equal(t, SuccessMessage, Simulate(src).Output, src)
	}
}

func TestSimulateBlank(t *testing.T) {
	require.Equal(t, EmptyMessage, Simulate("").Output)
	require.Equal(t, EmptyMessage, Simulate("  \n\t\n").Output)
}

func TestSimulateMissingColon(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "plain if",
			source: "if x > 1\n    print('big')",
			want:   "SyntaxError: expected ':' after if statement (line 1)",
		},
		{
			name:   "elif reports its line",
			source: "x = 1\nif x:\n    pass\nelif x > 2\n    pass",
			want:   "SyntaxError: expected ':' after if statement (line 4)",
		},
		{
			name:   "slice colon does not count",
			source: "if items[1:2]\n    pass",
			want:   "SyntaxError: expected ':' after if statement (line 1)",
		},
		{
			name:   "walrus does not count",
			source: "if n := 3\n    pass",
			want:   "SyntaxError: expected ':' after if statement (line 1)",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Simulate(tc.source).Output)
		})
	}
}

func TestSimulateValidIfStatements(t *testing.T) {
	cases := map[string]string{
		"x = 2\nif x > 1:\n    print('big')":      "big",
		"if x: print('inline')":                    "inline",
		"if (a and\n    b):\n    print('joined')": "joined",
		"if a and \\\n   b:\n    print('cont')":   "cont",
		"if x:  # trailing comment\n    pass":     SuccessMessage,
		"# if missing colon\nx = 1":               SuccessMessage,
		"s = 'if x'\nprint(s)":                    "s",
		"iffy = 1":                                 SuccessMessage,
	}
	for src, want := range cases {
		require.Equal(t, want, Simulate(src).Output, src)
	}
}

func TestSimulateTripleQuotedStrings(t *testing.T) {
	docstring := "def first(items):\n    \"\"\"\n    if the list is empty, return None\n    \"\"\"\n    return items[0] if items else None\n\nprint(\"done\")\n"
	require.Equal(t, "done", Simulate(docstring).Output)

	quoted := "doc = '''\nif it's quoted (print('no'))\n'''\nprint('yes')"
	require.Equal(t, "yes", Simulate(quoted).Output)

	require.Equal(t, "triple", Simulate(`print("""triple""")`).Output)
}

func TestSimulateMissingColonAfterDocstring(t *testing.T) {
	src := "def f():\n    \"\"\"Docs\n    span lines.\n    \"\"\"\n    if x\n        pass\n"
	require.Equal(t, "SyntaxError: expected ':' after if statement (line 5)", Simulate(src).Output)
}

func TestRunSynchronous(t *testing.T) {
	sim := New(nil, 0)
	res, err := sim.Run(context.Background(), `print("a")`)
	require.NoError(t, err)
	require.Equal(t, "a", res.Output)
	require.False(t, sim.Running())
}

func TestRunExposesRunningState(t *testing.T) {
	sim := New(nil, 100*time.Millisecond)

	done := make(chan Result, 1)
	go func() {
		res, err := sim.Run(context.Background(), "x = 1")
		if err == nil {
			done <- res
		}
		close(done)
	}()

	require.Eventually(t, sim.Running, time.Second, 5*time.Millisecond)

	select {
	case res := <-done:
		require.Equal(t, SuccessMessage, res.Output)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
	}
	require.False(t, sim.Running())
}

func TestRunHonoursContext(t *testing.T) {
	sim := New(nil, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Run(ctx, "x = 1")
	require.True(t, errors.Is(err, context.Canceled))
	require.False(t, sim.Running())
}
