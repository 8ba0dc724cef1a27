package tabular

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func mustRead(t *testing.T, s string) *Table {
	t.Helper()
	tbl, err := Read(strings.NewReader(s), ReadOptions{})
	require.NoError(t, err)
	return tbl
}

func TestReadStripsBOMAndTrimsHeader(t *testing.T) {
	tbl := mustRead(t, "\xEF\xBB\xBFENTIDAD, MUN ,POBTOT\n01,001,100\n01,002,250\n")

	assert.Equal(t, []string{"ENTIDAD", "MUN", "POBTOT"}, tbl.Header)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "002", tbl.Value(1, "MUN"))

	n, err := tbl.Int(1, "POBTOT")
	require.NoError(t, err)
	assert.Equal(t, 250, n)
}

func TestReadLatin1(t *testing.T) {
	encoded, err := charmap.ISO8859_1.NewEncoder().String("NOM_LOC\nTotal de la Entidad Michoacán\n")
	require.NoError(t, err)

	tbl, err := Read(strings.NewReader(encoded), ReadOptions{Encoding: Latin1})
	require.NoError(t, err)
	assert.Equal(t, "Total de la Entidad Michoacán", tbl.Value(0, "NOM_LOC"))
}

func TestReadEmpty(t *testing.T) {
	_, err := Read(strings.NewReader(""), ReadOptions{})
	assert.ErrorContains(t, err, "no header")
}

func TestShortRowsArePadded(t *testing.T) {
	tbl := mustRead(t, "a,b,c\n1,2\n")
	assert.Equal(t, "", tbl.Value(0, "c"))
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"12", 12, false},
		{" 7 ", 7, false},
		{"12.0", 12, false},
		{"12.5", 0, true},
		{"", 0, true},
		{"x", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseInt(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestSelectAndRename(t *testing.T) {
	tbl := mustRead(t, "ENTIDAD,MUN,LOC,POBTOT\n01,001,0,100\n")

	sel, err := tbl.Select("POBTOT", "ENTIDAD")
	require.NoError(t, err)
	assert.Equal(t, []string{"POBTOT", "ENTIDAD"}, sel.Header)
	assert.Equal(t, []string{"100", "01"}, sel.Rows[0])

	_, err = tbl.Select("ENTIDAD", "REL_H_M")
	assert.ErrorContains(t, err, "REL_H_M")

	renamed := sel.Rename(map[string]string{"POBTOT": "pob_tot"})
	assert.Equal(t, []string{"pob_tot", "ENTIDAD"}, renamed.Header)
	assert.Equal(t, "100", renamed.Value(0, "pob_tot"))
	assert.Equal(t, []string{"POBTOT", "ENTIDAD"}, sel.Header)
}

func TestFilterAndAddColumn(t *testing.T) {
	tbl := mustRead(t, "ent,loc\n01,0\n01,1\n02,0\n")

	agg := tbl.Filter(func(r Row) bool { return r.Get("loc") == "0" })
	require.Equal(t, 2, agg.Len())

	agg.AddColumn("cvegeo", func(r Row) string { return r.Get("ent") + "000" })
	assert.Equal(t, []string{"ent", "loc", "cvegeo"}, agg.Header)
	assert.Equal(t, "02000", agg.Value(1, "cvegeo"))
	assert.Len(t, tbl.Rows[0], 2)
}

func TestJoin(t *testing.T) {
	cs := mustRead(t, "fol,ent,ing\nA,01,100\nB,01,200\nC,02,300\n")
	viv := mustRead(t, "fol,ent,mpio,ing\nB,01,005,x\nA,01,003,y\nA,01,004,z\n")

	joined, err := cs.Join(viv, "fol", "ent")
	require.NoError(t, err)

	assert.Equal(t, []string{"fol", "ent", "ing", "mpio", "ing_y"}, joined.Header)
	require.Equal(t, 3, joined.Len())
	assert.Equal(t, []string{"A", "01", "100", "003", "y"}, joined.Rows[0])
	assert.Equal(t, []string{"A", "01", "100", "004", "z"}, joined.Rows[1])
	assert.Equal(t, []string{"B", "01", "200", "005", "x"}, joined.Rows[2])

	_, err = cs.Join(viv, "mpio")
	assert.ErrorContains(t, err, "left table missing join keys")
	_, err = cs.Join(viv)
	assert.Error(t, err)
}

func TestAppendMatchesColumnsByName(t *testing.T) {
	a := mustRead(t, "x,y\n1,2\n")
	b := mustRead(t, "y,z\n3,4\n")
	a.Append(b)

	require.Equal(t, 2, a.Len())
	assert.Equal(t, []string{"", "3"}, a.Rows[1])
}

func TestEach(t *testing.T) {
	tbl := mustRead(t, "v\n1.5\n2.5\n")
	var sum float64
	require.NoError(t, tbl.Each(func(r Row) error {
		f, err := r.Float("v")
		sum += f
		return err
	}))
	assert.Equal(t, 4.0, sum)

	bad := mustRead(t, "v\nx\n")
	assert.Error(t, bad.Each(func(r Row) error {
		_, err := r.Float("v")
		return err
	}))
}

func TestWriteRoundTrip(t *testing.T) {
	tbl := New([]string{"estado", "gini"}, [][]string{{"CIUDAD, DE MEXICO", "0.41"}})

	var buf bytes.Buffer
	require.NoError(t, tbl.Write(&buf))
	assert.Equal(t, "estado,gini\n\"CIUDAD, DE MEXICO\",0.41\n", buf.String())

	path := filepath.Join(t.TempDir(), "out", "t.csv")
	require.NoError(t, tbl.WriteFile(path))
	back, err := ReadFile(path, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, tbl.Rows, back.Rows)
}

func TestReadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("ENTIDAD,AGEB\n01,0010\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.csv"), []byte("ENTIDAD,AGEB\n02,0020\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	tbl, err := ReadDir(dir, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "02", tbl.Value(1, "ENTIDAD"))

	_, err = ReadDir(t.TempDir(), ReadOptions{})
	assert.Error(t, err)
}
