package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/stasher/internal/stash"
)

func TestCompile_Evaluate(t *testing.T) {
	attrs := stash.Attributes{
		"name":       "Chaos Orb",
		"class":      "Currency",
		"stack":      12,
		"quality":    20.0,
		"identified": true,
		"corrupted":  false,
		"größe":      2,
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`name == "Chaos Orb"`, true},
		{`name == "chaos orb"`, false},
		{`name != "Divine Orb"`, true},
		{`name contains "chaos"`, true},
		{`name contains "divine"`, false},
		{`name matches "^Chaos\\s"`, true},
		{`stack >= 10`, true},
		{`stack < 10`, false},
		{`quality == 20`, true},
		{`quality > 19.5 && quality <= 20`, true},
		{`identified`, true},
		{`corrupted`, false},
		{`!corrupted`, true},
		{`identified == true`, true},
		{`class == "Gem" || class == "Currency"`, true},
		{`!(class == "Gem" || stack > 100)`, true},
		{`class == "Gem" || class == "Currency" && stack > 100`, false},
		{`missing`, false},
		{`missing == "x"`, false},
		{`missing != "x"`, false},
		{`missing > 1`, false},
		{`stack == "12"`, false},
		{`10 < stack`, true},
		{`größe > 1`, true},
		{`name contains "ÜNÏQUE"`, false},
		{`quality > -1.5`, true},
		{`not corrupted and identified`, true},
		{`corrupted or missing`, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			pred, err := Compile(tt.expr)
			require.NoError(t, err)

			got, err := pred.Eval(attrs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	for _, expr := range []string{
		``,
		`name ==`,
		`(name == "x"`,
		`name == "x" extra`,
		`stack > "ten"`,
		`   `,
		`name contains 3`,
		`name matches "("`,
		`name == "unterminated`,
		`name == 1 )`,
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := Compile(expr)
			assert.Error(t, err)
		})
	}
}

func TestEval_TypeMismatch(t *testing.T) {
	attrs := stash.Attributes{"name": "Chaos Orb", "stack": 12}

	pred, err := Compile(`name > 3`)
	require.NoError(t, err)
	_, err = pred.Eval(attrs)
	assert.Error(t, err)

	pred, err = Compile(`stack contains "1"`)
	require.NoError(t, err)
	_, err = pred.Eval(attrs)
	assert.Error(t, err)
}

func TestEval_ShortCircuit(t *testing.T) {
	// The right-hand side would fail to evaluate.
	attrs := stash.Attributes{"name": "Chaos Orb"}

	pred, err := Compile(`name contains "chaos" || name > 1`)
	require.NoError(t, err)
	ok, err := pred.Eval(attrs)
	require.NoError(t, err)
	assert.True(t, ok)

	pred, err = Compile(`name contains "divine" && name > 1`)
	require.NoError(t, err)
	ok, err = pred.Eval(attrs)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEval_UnicodeAttribute(t *testing.T) {
	pred, err := Compile(`größe >= 2 && name contains "ünïque"`)
	require.NoError(t, err)

	ok, err := pred.Eval(stash.Attributes{"größe": 3, "name": "Das Ünïque Schwert"})
	require.NoError(t, err)
	assert.True(t, ok)
}
