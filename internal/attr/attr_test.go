package attr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() *Context {
	return &Context{
		ProjectID:  "app.widget",
		IndirectID: "lib.core",
		Language:   "c",
		Target:     "linux",
		Config:     "debug",
		DriverAttrs: Table{
			"optimize": "on",
		},
		Locate: func(id, kind string) string {
			return "/env/" + kind + "/" + id
		},
	}
}

func TestInterpolate_Locate(t *testing.T) {
	out, err := Interpolate("${locate include}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "/env/include/app.widget", out)
}

func TestInterpolate_IndirectSelectsIndirectID(t *testing.T) {
	out, err := Interpolate("$${locate include}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "/env/include/lib.core", out)
}

func TestInterpolate_TargetAndConfigPredicates(t *testing.T) {
	ctx := testContext()

	out, err := Interpolate("${os linux}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", out)

	out, err = Interpolate("${os windows}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "0", out)

	out, err = Interpolate("${cfg debug}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", out)
}

func TestInterpolate_IDForms(t *testing.T) {
	ctx := testContext()
	cases := map[string]string{
		"${id}":          "app.widget",
		"${id base}":     "widget",
		"${id upper}":    "APP.WIDGET",
		"${id dash}":     "app-widget",
		"${id underscore}": "app_widget",
		"${id camelcase}": "appWidget",
		"${id pascalcase}": "AppWidget",
	}
	for expr, want := range cases {
		out, err := Interpolate(expr, ctx)
		require.NoError(t, err)
		assert.Equal(t, want, out, expr)
	}
}

func TestInterpolate_DriverAttr(t *testing.T) {
	out, err := Interpolate("${driver-attr optimize}", testContext())
	require.NoError(t, err)
	assert.Equal(t, "on", out)
}

func TestInterpolate_UnknownFunctionErrors(t *testing.T) {
	_, err := Interpolate("${nope x}", testContext())
	assert.Error(t, err)
}

func TestInterpolate_UnterminatedErrors(t *testing.T) {
	_, err := Interpolate("${locate include", testContext())
	assert.Error(t, err)
}

func TestInterpolate_LiteralDollarPassesThrough(t *testing.T) {
	out, err := Interpolate("cost: $5 plain", testContext())
	require.NoError(t, err)
	assert.Equal(t, "cost: $5 plain", out)
}

func TestParseObject_ConditionalMergeAndDrop(t *testing.T) {
	ctx := testContext()
	raw := map[string]Value{
		"name": "widget",
		"${os linux}": map[string]Value{
			"flag": "-DLINUX",
		},
		"${os windows}": map[string]Value{
			"flag": "-DWINDOWS",
		},
	}
	out, err := ParseObject(raw, ctx)
	require.NoError(t, err)
	assert.Equal(t, "widget", out["name"])
	assert.Equal(t, "-DLINUX", out["flag"])
}

func TestParseObject_InterpolatesNestedArrays(t *testing.T) {
	ctx := testContext()
	raw := map[string]Value{
		"includes": []Value{"${locate include}", "literal"},
	}
	out, err := ParseObject(raw, ctx)
	require.NoError(t, err)
	arr, ok := out.GetArray("includes")
	require.True(t, ok)
	assert.Equal(t, "/env/include/app.widget", arr[0])
	assert.Equal(t, "literal", arr[1])
}

func TestMergeDependee_ArraysDedupConcat(t *testing.T) {
	base := Table{"flags": []Value{"-O2", "-g"}}
	contrib := Table{"flags": []Value{"-g", "-Wall"}}

	out, err := MergeDependee(base, contrib)
	require.NoError(t, err)
	assert.Equal(t, []Value{"-O2", "-g", "-Wall"}, out["flags"])
}

func TestMergeDependee_ScalarConflictErrors(t *testing.T) {
	base := Table{"std": "c11"}
	contrib := Table{"std": "c17"}

	_, err := MergeDependee(base, contrib)
	assert.Error(t, err)
}

func TestMergeDependee_MatchingScalarOK(t *testing.T) {
	base := Table{"std": "c11"}
	contrib := Table{"std": "c11"}

	out, err := MergeDependee(base, contrib)
	require.NoError(t, err)
	assert.Equal(t, "c11", out["std"])
}

func TestTableGetters(t *testing.T) {
	tbl := Table{
		"name":    "widget",
		"strict":  true,
		"asbool":  "true",
		"flags":   []Value{"-O2"},
	}

	s, ok := tbl.GetString("name")
	assert.True(t, ok)
	assert.Equal(t, "widget", s)

	b, ok := tbl.GetBool("strict")
	assert.True(t, ok)
	assert.True(t, b)

	b, ok = tbl.GetBool("asbool")
	assert.True(t, ok)
	assert.True(t, b)

	arr, ok := tbl.GetArray("flags")
	assert.True(t, ok)
	assert.Equal(t, []Value{"-O2"}, arr)

	_, ok = tbl.GetString("missing")
	assert.False(t, ok)
}
