package operations

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ineqmx/internal/config"
	"ineqmx/internal/dataset"
	"ineqmx/internal/download"
	"ineqmx/internal/indicators"
	"ineqmx/internal/inequality"
	"ineqmx/internal/tabular"
)

type fakeDownloader struct {
	mu      sync.Mutex
	sources []dataset.Source
	fail    int
	err     error
}

func (d *fakeDownloader) FetchAll(_ context.Context, sources []dataset.Source, rawRoot string) ([]*download.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sources = sources
	var out []*download.Result
	for _, src := range sources[min(d.fail, len(sources)):] {
		out = append(out, &download.Result{
			Source: src,
			Dir:    filepath.Join(rawRoot, src.Dest),
			Bytes:  10,
			Digest: "abc",
		})
	}
	return out, d.err
}

type fakeIndicators struct {
	rows []indicators.Row
	err  error
}

func (f *fakeIndicators) FetchAreas(context.Context, []string) ([]indicators.Row, error) {
	return f.rows, f.err
}

type fakeSink struct {
	mu        sync.Mutex
	published []dataset.Level
	saved     []dataset.Level
}

func (f *fakeSink) Publish(_ context.Context, _ dataset.Kind, level dataset.Level, _ *tabular.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, level)
	return nil
}

func (f *fakeSink) Save(_ context.Context, _ dataset.Kind, level dataset.Level, _ []inequality.Result) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, level)
	return uuid.New(), nil
}

func testDeps(t *testing.T) StepDeps {
	t.Helper()
	paths, err := config.NewPaths(filepath.Join(t.TempDir(), "data"), t.TempDir())
	require.NoError(t, err)
	return StepDeps{
		Paths: paths,
		Pipeline: config.PipelineConfig{
			EnighYears: []int{2022},
			Precision:  4,
		},
		Now: func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func stepState(id string) *OperationState {
	state := NewOperationState("op")
	state.SetStage(id, NewStepState(id, id))
	return state
}

func sampleObservations() []inequality.Observation {
	var obs []inequality.Observation
	for i := 1; i <= 20; i++ {
		region := "09"
		if i%2 == 0 {
			region = "15"
		}
		obs = append(obs, inequality.Observation{
			Income:    float64(i * 1000),
			Weight:    1,
			Region:    region,
			Subregion: "001",
			Period:    "2022",
		})
	}
	return obs
}

func TestRegisterSteps(t *testing.T) {
	m, _ := newTestManager(t, nil)
	require.NoError(t, RegisterSteps(m, testDeps(t)))

	steps, err := m.GetRegistry().GetDependencyOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{
		StageIDDownload, StageIDIndicators, StageIDEnigh, StageIDEnco, StageIDCenso, StageIDInequality, StageIDExport,
	}, ids(steps))
}

func TestScanDataDirectories(t *testing.T) {
	deps := testDeps(t)
	touch(t, filepath.Join(deps.Paths.RawDir, "enigh", "2022", "concentradohogar.csv"))
	touch(t, filepath.Join(deps.Paths.Interim("enigh", 2022), "enigh_tidy_data_2022.csv"))
	touch(t, deps.Paths.External("resultados_nacionales_enigh.csv"))

	m := NewPipelineManifest("op", ModeOffline)
	ScanDataDirectories(deps.Paths)(m)

	assert.True(t, m.HasData(DataTypeRawArchives))
	assert.True(t, m.HasData(DataTypeEnighTidy))
	assert.True(t, m.HasData(DataTypeResults))
	assert.False(t, m.HasData(DataTypeEncoTidy))
	assert.False(t, m.HasData(DataTypeIndicators))

	info, _ := m.GetData(DataTypeEnighTidy)
	assert.Equal(t, []string{"2022/enigh_tidy_data_2022.csv"}, info.Files)
}

func TestDownloadStep(t *testing.T) {
	tests := []struct {
		name    string
		fail    int
		err     error
		wantErr bool
	}{
		{"all fetched", 0, nil, false},
		{"partial failure", 1, errors.New("one archive failed"), false},
		{"nothing fetched", 1000, errors.New("offline"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps(t)
			downloader := &fakeDownloader{fail: tt.fail, err: tt.err}
			deps.Downloader = downloader
			step := NewDownloadStep(deps, StageOptions{})

			state := stepState(StageIDDownload)
			require.NoError(t, step.Validate(state))
			err := step.Execute(context.Background(), state)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			kinds := map[dataset.Kind]int{}
			for _, src := range downloader.sources {
				kinds[src.Kind]++
				if src.Kind == dataset.KindENIGH {
					assert.Equal(t, 2022, src.Year)
				}
			}
			assert.Equal(t, 1, kinds[dataset.KindENIGH])
			assert.Zero(t, kinds[dataset.KindENCO])
			assert.Positive(t, kinds[dataset.KindCenso])
			assert.Positive(t, kinds[dataset.KindSHP])
			assert.FileExists(t, filepath.Join(deps.Paths.RawDir, "download_metadata.txt"))
		})
	}
}

func TestDownloadStepRequiresDownloader(t *testing.T) {
	step := NewDownloadStep(testDeps(t), StageOptions{})
	assert.Error(t, step.Validate(stepState(StageIDDownload)))
}

func TestInequalityAndExportSteps(t *testing.T) {
	deps := testDeps(t)
	sink := &fakeSink{}
	deps.Publisher = sink
	deps.Store = sink
	deps.Pipeline.WriteXLSX = true

	state := stepState(StageIDInequality)
	state.SetStage(StageIDExport, NewStepState(StageIDExport, StageNameExport))
	state.SetConfig(ContextKeyLevels, []string{"national", "state"})
	state.SetContext(ContextKeyObservations, map[int][]inequality.Observation{2022: sampleObservations()})

	require.NoError(t, NewInequalityStep(deps, StageOptions{}).Execute(context.Background(), state))

	raw, ok := state.GetContext(ContextKeyResults)
	require.True(t, ok)
	results := raw.(map[dataset.Level][]inequality.Result)
	require.Len(t, results[dataset.LevelNational], 1)
	require.Len(t, results[dataset.LevelState], 2)
	assert.Equal(t, 20, results[dataset.LevelNational][0].Observations)
	assert.InDelta(t, 20.0, results[dataset.LevelNational][0].TotalWeight, 1e-9)

	require.NoError(t, NewExportStep(deps, StageOptions{}).Execute(context.Background(), state))

	assert.FileExists(t, deps.Paths.External(dataset.ResultFileName(dataset.LevelNational, dataset.KindENIGH)))
	assert.FileExists(t, deps.Paths.External(dataset.ResultFileName(dataset.LevelState, dataset.KindENIGH)))
	assert.NoFileExists(t, deps.Paths.External(dataset.ResultFileName(dataset.LevelMunicipal, dataset.KindENIGH)))
	assert.Equal(t, []dataset.Level{dataset.LevelNational, dataset.LevelState}, sink.published)
	assert.Equal(t, []dataset.Level{dataset.LevelNational, dataset.LevelState}, sink.saved)

	written, ok := state.GetContext(ContextKeyExported)
	require.True(t, ok)
	assert.Len(t, written, 3)
}

func TestInequalityStepRequiresObservations(t *testing.T) {
	deps := testDeps(t)
	state := stepState(StageIDInequality)
	err := NewInequalityStep(deps, StageOptions{}).Execute(context.Background(), state)
	assert.Error(t, err, "no tidy ENIGH table on disk")
}

func TestIndicatorsStep(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		deps := testDeps(t)
		state := stepState(StageIDIndicators)
		require.NoError(t, NewIndicatorsStep(deps, StageOptions{}).Execute(context.Background(), state))
		assert.Equal(t, true, state.GetStage(StageIDIndicators).Clone().Metadata["disabled"])
		assert.NoDirExists(t, IndicatorsDir(deps.Paths))
	})

	t.Run("writes table", func(t *testing.T) {
		deps := testDeps(t)
		deps.Indicators = &fakeIndicators{
			rows: []indicators.Row{{Estado: "Nacional", Indicador: "6200093973", Periodo: "2022", Valor: "0.402", ClaveGeografica: "00"}},
			err:  errors.New("state 07 failed"),
		}
		state := stepState(StageIDIndicators)
		require.NoError(t, NewIndicatorsStep(deps, StageOptions{}).Execute(context.Background(), state))

		path := filepath.Join(IndicatorsDir(deps.Paths), IndicatorsFileName)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "6200093973")
		assert.FileExists(t, filepath.Join(IndicatorsDir(deps.Paths), "enigh_api_metadata.txt"))
	})

	t.Run("nothing fetched", func(t *testing.T) {
		deps := testDeps(t)
		deps.Indicators = &fakeIndicators{err: errors.New("unreachable")}
		err := NewIndicatorsStep(deps, StageOptions{}).Execute(context.Background(), stepState(StageIDIndicators))
		assert.Error(t, err)
	})
}
