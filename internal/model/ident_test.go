package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIdent(t *testing.T) {
	tests := []struct {
		raw  string
		want Ident
	}{
		{"bar", Ident{Name: "bar"}},
		{"pkg_b.baz", Ident{Schema: "HR", Package: "pkg_b", Name: "baz"}},
		{"hr.standalone", Ident{Schema: "hr", Name: "standalone"}},
		{"hr.pkg_b.baz", Ident{Schema: "hr", Package: "pkg_b", Name: "baz"}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseIdent(tt.raw, "HR"))
		})
	}
}

func TestIdentKeyIsCaseInsensitive(t *testing.T) {
	a := Ident{Schema: "HR", Package: "PKG_B", Name: "BAZ"}
	b := Ident{Schema: "hr", Package: "pkg_b", Name: "baz"}

	assert.True(t, a.Equal(b))
	assert.Equal(t, "hr.pkg_b.baz", a.Key())
	assert.Equal(t, "HR.PKG_B.baz", b.String())
}

func TestPackageFileCloneIsIndependent(t *testing.T) {
	f := PackageFile{Name: "PKG_A", Units: []PackageUnit{{Name: "foo", InternalCalls: []string{"bar"}}}}

	c := f.Clone()
	c.Units[0].InternalCalls[0] = "changed"
	c.Units[0].ExternalCalls = append(c.Units[0].ExternalCalls, "HR.PKG_B.baz")

	assert.Equal(t, "bar", f.Units[0].InternalCalls[0])
	assert.Empty(t, f.Units[0].ExternalCalls)
}

func TestPackageFileUnitLookup(t *testing.T) {
	f := PackageFile{Units: []PackageUnit{{Name: "myproc"}}}

	u, ok := f.Unit("MYPROC")
	assert.True(t, ok)
	assert.Equal(t, "myproc", u.Name)

	_, ok = f.Unit("other")
	assert.False(t, ok)
}
