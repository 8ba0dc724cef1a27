package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"ineqmx/internal/config"
	"ineqmx/internal/dataset"
	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/tabular"
)

// fakeSheets is a minimal in-memory Sheets API.
type fakeSheets struct {
	mu      sync.Mutex
	titles  []string
	cleared []string
	updates map[string][][]interface{}
	failGet bool
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sheet-id"):
		if f.failGet {
			http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
			return
		}
		var sheets []map[string]interface{}
		for _, t := range f.titles {
			sheets = append(sheets, map[string]interface{}{"properties": map[string]interface{}{"title": t}})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"spreadsheetId": "sheet-id", "sheets": sheets})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.titles = append(f.titles, rq.AddSheet.Properties.Title)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"spreadsheetId": "sheet-id"})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		rng := strings.TrimSuffix(path[strings.LastIndex(path, "/")+1:], ":clear")
		f.cleared = append(f.cleared, rng)
		json.NewEncoder(w).Encode(map[string]interface{}{"clearedRange": rng})
	case r.Method == http.MethodPut:
		var vr struct {
			Values [][]interface{} `json:"values"`
		}
		json.NewDecoder(r.Body).Decode(&vr)
		rng := path[strings.LastIndex(path, "/")+1:]
		f.updates[rng] = vr.Values
		json.NewEncoder(w).Encode(map[string]interface{}{"updatedRows": len(vr.Values), "updatedCells": len(vr.Values) * 2})
	default:
		http.NotFound(w, r)
	}
}

func newTestPublisher(t *testing.T, fake *fakeSheets) *Publisher {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	p, err := NewPublisher(context.Background(),
		config.PublishConfig{SpreadsheetID: "sheet-id", SheetName: "gini"},
		nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return p
}

func sampleTable() *tabular.Table {
	return tabular.New(
		[]string{"year", "entidad", "gini"},
		[][]string{{"2022", "09", "0.4123"}, {"2022", "14", "n/a"}},
	)
}

func TestSheetTitle(t *testing.T) {
	assert.Equal(t, "gini_enigh_estatal", SheetTitle("gini", dataset.KindENIGH, dataset.LevelState))
	assert.Equal(t, "enco_nacional", SheetTitle("", dataset.KindENCO, dataset.LevelNational))
}

func TestValues(t *testing.T) {
	v := Values(sampleTable())
	require.Len(t, v, 3)
	assert.Equal(t, []interface{}{"year", "entidad", "gini"}, v[0])
	assert.Equal(t, []interface{}{2022.0, "09", 0.4123}, v[1])
	assert.Equal(t, "n/a", v[2][2])
}

func TestPublishCreatesSheet(t *testing.T) {
	fake := &fakeSheets{updates: map[string][][]interface{}{}}
	p := newTestPublisher(t, fake)

	require.NoError(t, p.Publish(context.Background(), dataset.KindENIGH, dataset.LevelState, sampleTable()))

	assert.Equal(t, []string{"gini_enigh_estatal"}, fake.titles)
	assert.Equal(t, []string{"gini_enigh_estatal"}, fake.cleared)
	rows, ok := fake.updates["gini_enigh_estatal!A1"]
	require.True(t, ok)
	assert.Len(t, rows, 3)

	// A second publish reuses the tab.
	require.NoError(t, p.Publish(context.Background(), dataset.KindENIGH, dataset.LevelState, sampleTable()))
	assert.Len(t, fake.titles, 1)
	assert.Len(t, fake.cleared, 2)
}

func TestPublishErrors(t *testing.T) {
	fake := &fakeSheets{updates: map[string][][]interface{}{}, failGet: true}
	p := newTestPublisher(t, fake)

	err := p.PublishSheet(context.Background(), "x", sampleTable())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTypeNetwork, apperrors.TypeOf(err))

	_, err = NewPublisher(context.Background(), config.PublishConfig{}, nil)
	assert.Equal(t, apperrors.ErrTypeConfig, apperrors.TypeOf(err))
}
