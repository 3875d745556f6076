package dump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	latin1 := []byte{'A', 0xf1, 'o'} // "Año" in ISO-8859-1

	got, err := Decode(latin1, EncodingAuto)
	require.NoError(t, err)
	assert.Equal(t, "Año", got)

	got, err = Decode([]byte("Año"), EncodingAuto)
	require.NoError(t, err)
	assert.Equal(t, "Año", got)

	_, err = Decode(latin1, EncodingUTF8)
	assert.Error(t, err)

	_, err = Decode(latin1, "ebcdic")
	assert.Error(t, err)
}

func TestRemoveComments(t *testing.T) {
	in := "CREATE TABLE T /* storage\n  notes */\n(ID NUMBER);\n/* one liner */\nSELECT 1;"

	got := RemoveComments(in)

	assert.NotContains(t, got, "storage")
	assert.NotContains(t, got, "one liner")
	assert.NotContains(t, got, "*/")
	assert.Contains(t, got, "(ID NUMBER);")
	assert.Contains(t, got, "SELECT 1;")
}

func TestRemoveCommentsKeepsMarkers(t *testing.T) {
	in := "--  DDL for Table EMPLOYEE\nCREATE TABLE EMPLOYEE (ID NUMBER);"
	assert.Equal(t, in, RemoveComments(in))
}

func TestRemoveLineComments(t *testing.T) {
	in := "x := 1; -- PROCEDURE old_one\nmsg := 'a--b'; -- note\n"

	got := RemoveLineComments(in)

	assert.Equal(t, "x := 1;\nmsg := 'a--b';\n", got)
}

func TestFoldAccents(t *testing.T) {
	assert.Equal(t, "ANO ano cafe", FoldAccents("AÑO año café"))
}

func TestRemoveEmptyLines(t *testing.T) {
	assert.Equal(t, "a\n\tb", RemoveEmptyLines("a\r\n\r\n  \n\tb\n"))
}

func TestNormalizePackage(t *testing.T) {
	src := []byte("PROCEDURE do_it IS\r\n/* header */\r\nBEGIN\r\n  NULL; -- nothing\r\nEND;")

	got, err := NormalizePackage(src, EncodingAuto)
	require.NoError(t, err)

	assert.NotContains(t, got, "\r")
	assert.NotContains(t, got, "header")
	assert.NotContains(t, got, "nothing")
	assert.Contains(t, got, "BEGIN")
}
