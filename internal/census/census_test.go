package census

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"ineqmx/internal/config"
	"ineqmx/internal/dataset"
	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/tabular"
)

func iterTable() *tabular.Table {
	header := []string{ColEntidad, "NOM_ENT", ColMun, ColLoc, ColPobTot, ColPobFem, ColPobMas, ColRelHM}
	return tabular.New(header, [][]string{
		{"00", "Estados Unidos Mexicanos", "000", "0000", "126014024", "64540634", "61473390", "95.25"},
		{"01", "Aguascalientes", "000", "0000", "1425607", "728924", "696683", "95.58"},
		{"01", "Aguascalientes", "001", "0000", "948990", "486917", "462073", "94.9"},
		{"01", "Aguascalientes", "001", "0001", "863893", "443000", "420893", "94.8"},
		{"01", "Aguascalientes", "001", "0094", "3", "*", "*", "*"},
		{"09", "Ciudad de México", "015", "0000", "545884", "283000", "262884", "92.89"},
	})
}

func TestCvegeo(t *testing.T) {
	assert.Equal(t, "01", Cvegeo(1, 0))
	assert.Equal(t, "09015", Cvegeo(9, 15))
	assert.Equal(t, "32058", Cvegeo(32, 58))
}

func TestTransformIter(t *testing.T) {
	tidy, reports, err := TransformIter(iterTable())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, []string{ColCvegeo, ColPobTT, ColRelHMT}, tidy.Header)
	assert.Equal(t, [][]string{
		{"01", "1425607", "95.58"},
		{"01001", "948990", "94.9"},
		{"09015", "545884", "92.89"},
	}, tidy.Rows)
}

func TestTransformIterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*tabular.Table)
		want   string
	}{
		{"state out of range", func(tb *tabular.Table) { tb.Rows[1][0] = "40" }, "ENTIDAD"},
		{"municipality out of range", func(tb *tabular.Table) { tb.Rows[2][2] = "999" }, "MUN"},
		{"masked ratio on a total", func(tb *tabular.Table) { tb.Rows[2][7] = "*" }, "REL_H_M"},
		{"missing column", func(tb *tabular.Table) { tb.Header[4] = "POB" }, "missing columns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := iterTable()
			tt.mutate(tb)
			tb = tabular.New(tb.Header, tb.Rows)
			_, _, err := TransformIter(tb)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTransformPOB(t *testing.T) {
	tb := iterTable()
	tb.Rows[2][5] = "-4"
	tb.Rows = append(tb.Rows, []string{"02", "Baja California", "001", "0000", "x", "1", "1", "1"})

	pob, stats, err := TransformPOB(tb)
	require.NoError(t, err)
	assert.Equal(t, []string{"ent", "mun", "pob_tot", "pob_fem", "pob_mas"}, pob.Header)
	require.Equal(t, 3, pob.Len())
	assert.Equal(t, []string{"1", "0", "1425607", "728924", "696683"}, pob.Rows[0])
	assert.Equal(t, "0", pob.Value(1, "pob_fem"))
	assert.Equal(t, 1, stats.Clipped[ColPobFem])
	assert.Equal(t, 1, stats.Dropped)
}

func TestTransformAGEB(t *testing.T) {
	header := []string{ColEntidad, ColMun, ColLoc, ColNomLoc, ColAgeb, "MZA", ColPobTot}
	good := tabular.New(header, [][]string{
		{"01", "001", "0001", "Aguascalientes", "0010", "001", "120"},
		{"01", "001", "0001", "Aguascalientes", "094A", "002", "75"},
	})
	tidy, report, err := TransformAGEB(good)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, []string{"ent", "mun", "nom_loc", "ageb", "pob_tot"}, tidy.Header)
	assert.Equal(t, "094A", tidy.Value(1, "ageb"))

	bad := tabular.New(header, [][]string{{"1", "001", "0001", "Aguascalientes", "10", "001", "120"}})
	_, report, err = TransformAGEB(bad)
	require.Error(t, err)
	assert.Len(t, report.Errors(), 2)
}

func shpTable(municipal bool) *tabular.Table {
	if municipal {
		return tabular.New([]string{ColCVEGEO, ColCVEEnt, ColCVEMun, ColNOMGEO}, [][]string{
			{"01001", "01", "001", "Aguascalientes"},
			{"09015", "09", "015", "Cuauhtémoc"},
		})
	}
	return tabular.New([]string{ColCVEGEO, ColCVEEnt, ColNOMGEO}, [][]string{
		{"01", "01", "Aguascalientes"},
		{"31", "31", "Yucatán"},
	})
}

func TestDBFRoundTrip(t *testing.T) {
	t.Run("utf-8", func(t *testing.T) {
		src := shpTable(true)
		var buf bytes.Buffer
		require.NoError(t, WriteDBF(&buf, src, unicode.UTF8))
		got, fields, err := ReadDBF(&buf, unicode.UTF8)
		require.NoError(t, err)
		assert.Equal(t, src.Header, got.Header)
		assert.Equal(t, src.Rows, got.Rows)
		require.Len(t, fields, 4)
		assert.Equal(t, byte('C'), fields[0].Type)
		assert.Equal(t, 5, fields[0].Length)
	})

	t.Run("windows-1252 default", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteDBF(&buf, shpTable(true), charmap.Windows1252))
		got, _, err := ReadDBF(&buf, nil)
		require.NoError(t, err)
		assert.Equal(t, "Cuauhtémoc", got.Value(1, ColNOMGEO))
	})
}

func TestReadDBFSkipsDeleted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDBF(&buf, shpTable(false), nil))
	b := buf.Bytes()

	headerLen := int(b[8]) | int(b[9])<<8
	b[headerLen] = '*'

	got, _, err := ReadDBF(bytes.NewReader(b), nil)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, "31", got.Value(0, ColCVEGEO))
}

func TestReadDBFInvalid(t *testing.T) {
	_, _, err := ReadDBF(bytes.NewReader([]byte("short")), nil)
	assert.ErrorIs(t, err, ErrInvalidDBF)

	var buf bytes.Buffer
	require.NoError(t, WriteDBF(&buf, shpTable(false), nil))
	b := buf.Bytes()
	b[10]++ // record length no longer matches the fields
	_, _, err = ReadDBF(bytes.NewReader(b), nil)
	assert.ErrorIs(t, err, ErrInvalidDBF)
}

func TestReadDBFFileCodePage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "00mun.dbf")
	var buf bytes.Buffer
	require.NoError(t, WriteDBF(&buf, shpTable(true), unicode.UTF8))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00mun.cpg"), []byte("UTF-8\n"), 0644))

	got, _, err := ReadDBFFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Cuauhtémoc", got.Value(1, ColNOMGEO))
}

func TestTransformShp(t *testing.T) {
	tidy, _, err := TransformShp(shpTable(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"cvegeo", "cve_ent", "cve_mun", "nom_geo"}, tidy.Header)

	tidy, _, err = TransformShp(shpTable(false))
	require.NoError(t, err)
	assert.Equal(t, []string{"cvegeo", "cve_ent", "nom_geo"}, tidy.Header)

	bad := shpTable(true)
	bad.Rows[0][0] = "01002"
	_, _, err = TransformShp(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestProcessorProcess(t *testing.T) {
	paths, err := config.NewPaths(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	manifest := dataset.NewManifest(1, []dataset.ManifestEntry{
		{Kind: dataset.KindCenso, Year: 2020, Table: dataset.TableIter, Path: "iter/iter.csv"},
		{Kind: dataset.KindCenso, Year: 2020, Table: dataset.TableAGEBPrefix + "01", Path: "ageb/01.csv"},
		{Kind: dataset.KindCenso, Year: 2020, Table: dataset.TableAGEBPrefix + "02", Path: "ageb/02.csv"},
		{Kind: dataset.KindSHP, Year: 2020, Table: dataset.TableShpEnt, Path: "00ent.dbf"},
		{Kind: dataset.KindSHP, Year: 2020, Table: dataset.TableShpMun, Path: "00mun.dbf"},
	})

	// ITER is latin-1 on disk
	var iter bytes.Buffer
	require.NoError(t, iterTable().Write(&iter))
	latin, err := charmap.ISO8859_1.NewEncoder().Bytes(iter.Bytes())
	require.NoError(t, err)
	iterPath := filepath.Join(paths.Raw("censo", 2020), "iter", "iter.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(iterPath), 0755))
	require.NoError(t, os.WriteFile(iterPath, latin, 0644))

	ageb := tabular.New([]string{ColEntidad, ColMun, ColNomLoc, ColAgeb, ColPobTot}, [][]string{{"01", "001", "Aguascalientes", "0010", "120"}})
	require.NoError(t, ageb.WriteFile(filepath.Join(paths.Raw("censo", 2020), "ageb", "01.csv")))

	p := NewProcessor(paths, manifest, nil)

	t.Run("without shapefiles", func(t *testing.T) {
		out, err := p.Process(context.Background(), 2020)
		require.NoError(t, err)
		assert.Equal(t, 3, out.Rows["iter"])
		assert.Equal(t, 3, out.Rows["pob"])
		assert.Equal(t, 1, out.Rows["ageb"])
		assert.NotContains(t, out.Files, "shp_ent")

		written, err := tabular.ReadFile(out.Files["iter"], tabular.ReadOptions{})
		require.NoError(t, err)
		assert.Equal(t, "09015", written.Value(2, ColCvegeo))
		assert.FileExists(t, filepath.Join(paths.Processed("censo"), "censo_tidy_data_metadata.txt"))
	})

	t.Run("with shapefiles", func(t *testing.T) {
		for name, municipal := range map[string]bool{"00ent.dbf": false, "00mun.dbf": true} {
			var buf bytes.Buffer
			require.NoError(t, WriteDBF(&buf, shpTable(municipal), nil))
			path := filepath.Join(paths.Raw("shp", 2020), name)
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
			require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
		}
		out, err := p.Process(context.Background(), 2020)
		require.NoError(t, err)
		assert.Equal(t, 2, out.Rows["shp_ent"])
		assert.Equal(t, 2, out.Rows["shp_mun"])
	})

	t.Run("missing iter", func(t *testing.T) {
		_, err := p.Process(context.Background(), 2010)
		assert.True(t, apperrors.IsNotFound(err))
	})
}
