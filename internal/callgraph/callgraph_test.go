package callgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abramin/sqlbridge/internal/model"
)

func unit(name string, calls ...string) model.PackageUnit {
	if calls == nil {
		calls = []string{}
	}
	return model.PackageUnit{Name: name, Kind: model.KindProcedure, Calls: calls, InternalCalls: []string{}, ExternalCalls: []string{}}
}

func fixture() []model.PackageFile {
	return []model.PackageFile{
		{Name: "PKG_A", Units: []model.PackageUnit{
			unit("foo", "bar", "pkg_b.baz", "count", "bar"),
			unit("bar"),
			unit("qux", "foo", "pkg_a.bar", "hr.pkg_b.baz", "pkg_c.missing"),
		}},
		{Name: "PKG_B", Units: []model.PackageUnit{
			unit("baz", "pkg_a.foo", "dbms_output.put_line"),
		}},
	}
}

func TestBuildScenario(t *testing.T) {
	files := Build("HR", fixture(), Options{})

	foo, ok := files[0].Unit("foo")
	require.True(t, ok)
	assert.Equal(t, []string{"bar"}, foo.InternalCalls)
	assert.Equal(t, []string{"HR.PKG_B.baz"}, foo.ExternalCalls)

	qux, _ := files[0].Unit("qux")
	assert.Equal(t, []string{"foo", "bar"}, qux.InternalCalls, "own-package qualification is internal")
	assert.Equal(t, []string{"HR.PKG_B.baz"}, qux.ExternalCalls, "unknown packages do not resolve")

	baz, _ := files[1].Unit("baz")
	assert.Empty(t, baz.InternalCalls)
	assert.Equal(t, []string{"HR.PKG_A.foo"}, baz.ExternalCalls)
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	in := fixture()
	_ = Build("HR", in, Options{})

	for _, f := range in {
		for _, u := range f.Units {
			assert.Empty(t, u.InternalCalls, u.Name)
			assert.Empty(t, u.ExternalCalls, u.Name)
		}
	}
}

func TestResolveInternalIsCaseInsensitive(t *testing.T) {
	file := model.PackageFile{Name: "PKG", Units: []model.PackageUnit{
		unit("main", "MYPROC"),
		unit("myproc", "Main"),
	}}

	got := ResolveInternal("HR", file, Options{})

	assert.Equal(t, []string{"myproc"}, got.Units[0].InternalCalls)
	assert.Equal(t, []string{"main"}, got.Units[1].InternalCalls)
}

func TestResolveInternalIgnoresSchemaLevelCalls(t *testing.T) {
	file := model.PackageFile{Name: "PKG", Units: []model.PackageUnit{
		unit("main", "hr.helper"),
		unit("helper", "main"),
	}}

	got := ResolveInternal("HR", file, Options{})

	assert.Empty(t, got.Units[0].InternalCalls)
}

func TestZeroCallUnitsStayEmpty(t *testing.T) {
	files := fixture()
	files[0].Units[1].InternalCalls = []string{"stale"}
	files[0].Units[1].ExternalCalls = []string{"HR.PKG_B.stale"}

	got := Build("HR", files, Options{})

	bar, _ := got[0].Unit("bar")
	assert.NotNil(t, bar.InternalCalls)
	assert.Empty(t, bar.InternalCalls)
	assert.Empty(t, bar.ExternalCalls)
}

func TestLegacyShortCircuit(t *testing.T) {
	files := Build("HR", fixture(), Options{LegacyShortCircuit: true})

	foo, _ := files[0].Unit("foo")
	assert.Equal(t, []string{"bar"}, foo.InternalCalls, "units before the first call-less unit resolve")
	assert.Equal(t, []string{"HR.PKG_B.baz"}, foo.ExternalCalls)

	qux, _ := files[0].Unit("qux")
	assert.Empty(t, qux.InternalCalls, "units after it are left unresolved")
	assert.Empty(t, qux.ExternalCalls)

	baz, _ := files[1].Unit("baz")
	assert.Equal(t, []string{"HR.PKG_A.foo"}, baz.ExternalCalls, "other files are unaffected")
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry("HR", fixture())

	assert.Equal(t, 4, reg.Len())

	id, ok := reg.Lookup(model.ParseIdent("pkg_a.FOO", "hr"))
	require.True(t, ok)
	assert.Equal(t, "HR.PKG_A.foo", id.String())

	_, ok = reg.Lookup(model.ParseIdent("foo", "HR"))
	assert.False(t, ok, "unqualified names are not schema-wide identifiers")
}
