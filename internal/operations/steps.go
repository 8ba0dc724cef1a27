package operations

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"ineqmx/internal/census"
	"ineqmx/internal/config"
	"ineqmx/internal/dataset"
	"ineqmx/internal/download"
	"ineqmx/internal/enco"
	"ineqmx/internal/enigh"
	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/exporter"
	"ineqmx/internal/files"
	"ineqmx/internal/indicators"
	"ineqmx/internal/inequality"
	"ineqmx/internal/infrastructure"
	"ineqmx/internal/tabular"
)

// IndicatorsFileName is the CSV written by the indicators step.
const IndicatorsFileName = "enigh_api.csv"

// StepDeps bundles the collaborators of the pipeline steps. Indicators,
// Publisher and Store are optional.
type StepDeps struct {
	Paths      *config.Paths
	Pipeline   config.PipelineConfig
	Catalog    *dataset.Catalog
	Manifest   *dataset.Manifest
	Downloader Downloader
	CleanRaw   bool
	Indicators IndicatorSource
	Publisher  TablePublisher
	Store      ResultStore
	Metrics    *infrastructure.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

func (d *StepDeps) defaults() {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Catalog == nil {
		d.Catalog = dataset.DefaultCatalog()
	}
	if d.Manifest == nil {
		d.Manifest = dataset.ManifestFor(d.Catalog)
	}
}

// IndicatorsDir is where the indicators step writes its table.
func IndicatorsDir(paths *config.Paths) string {
	return filepath.Join(paths.RawDir, string(dataset.KindENIGH), "api")
}

// RegisterSteps registers every pipeline step with the manager.
func RegisterSteps(m *Manager, deps StepDeps) error {
	deps.defaults()
	opts := StageOptions{
		EnableProgress:    true,
		StatusBroadcaster: m.GetBroadcaster(),
	}

	steps := []Step{
		NewDownloadStep(deps, opts),
		NewEnighStep(deps, opts),
		NewEncoStep(deps, opts),
		NewCensoStep(deps, opts),
		NewInequalityStep(deps, opts),
		NewExportStep(deps, opts),
		NewIndicatorsStep(deps, opts),
	}
	for _, step := range steps {
		if err := m.RegisterStage(step); err != nil {
			return err
		}
	}
	return m.GetRegistry().ValidateDependencies()
}

// ScanDataDirectories returns a manifest scanner recording the data already
// present under paths.
func ScanDataDirectories(paths *config.Paths) func(*PipelineManifest) {
	return func(m *PipelineManifest) {
		for _, out := range dataOutputs(paths) {
			_ = m.ScanDataDirectory(out.Type, out.Location, out.Pattern)
		}
	}
}

func dataOutputs(paths *config.Paths) []DataOutput {
	return []DataOutput{
		{Type: DataTypeRawArchives, Location: paths.RawDir, Pattern: "**/*.*"},
		{Type: DataTypeEnighTidy, Location: filepath.Join(paths.InterimDir, string(dataset.KindENIGH)), Pattern: "*/enigh_tidy_data_*.csv"},
		{Type: DataTypeEncoTidy, Location: filepath.Join(paths.InterimDir, string(dataset.KindENCO)), Pattern: "*/enco_tidy_data_*.csv"},
		{Type: DataTypeCensoTidy, Location: paths.Processed(string(dataset.KindCenso)), Pattern: "*.csv"},
		{Type: DataTypeResults, Location: paths.ExternalDir, Pattern: "resultados_*.csv"},
		{Type: DataTypeIndicators, Location: IndicatorsDir(paths), Pattern: "*.csv"},
	}
}

func outputOf(paths *config.Paths, dataType string) []DataOutput {
	for _, out := range dataOutputs(paths) {
		if out.Type == dataType {
			return []DataOutput{out}
		}
	}
	return nil
}

// stepBase carries what every pipeline step needs
type stepBase struct {
	BaseStage
	deps   StepDeps
	opts   StageOptions
	logger *slog.Logger
}

func newStepBase(base BaseStage, deps StepDeps, opts StageOptions) stepBase {
	deps.defaults()
	return stepBase{
		BaseStage: base,
		deps:      deps,
		opts:      opts,
		logger:    infrastructure.WithComponent(deps.Logger, base.ID()),
	}
}

func (s *stepBase) tracker(state *OperationState, total int) *ProgressTracker {
	var broadcaster *StatusBroadcaster
	if s.opts.EnableProgress {
		broadcaster = s.opts.StatusBroadcaster
	}
	return NewProgressTracker(state, s.ID(), total, broadcaster)
}

func (s *stepBase) metadata(state *OperationState, key string, value interface{}) {
	if st := state.GetStage(s.ID()); st != nil {
		st.SetMetadata(key, value)
	}
}

func (s *stepBase) enighYears(state *OperationState) ([]int, error) {
	return state.Ints(ContextKeyEnighYears, s.deps.Pipeline.EnighYears)
}

func (s *stepBase) encoYears(state *OperationState) ([]int, error) {
	return state.Ints(ContextKeyEncoYears, s.deps.Pipeline.EncoYears)
}

// DownloadStep fetches the catalogued archives of the requested years
type DownloadStep struct {
	stepBase
}

// NewDownloadStep creates the download step
func NewDownloadStep(deps StepDeps, opts StageOptions) *DownloadStep {
	base := NewBaseStage(StageIDDownload, StageNameDownload, nil).
		WithData(nil, outputOf(deps.Paths, DataTypeRawArchives))
	return &DownloadStep{stepBase: newStepBase(base, deps, opts)}
}

// Validate requires a downloader
func (s *DownloadStep) Validate(state *OperationState) error {
	if s.deps.Downloader == nil {
		return fmt.Errorf("no downloader configured")
	}
	return nil
}

// Sources returns the archives to fetch: the requested survey years plus
// every census and shapefile archive.
func (s *DownloadStep) Sources(state *OperationState) ([]dataset.Source, error) {
	enighYears, err := s.enighYears(state)
	if err != nil {
		return nil, err
	}
	encoYears, err := s.encoYears(state)
	if err != nil {
		return nil, err
	}

	var sources []dataset.Source
	for _, year := range enighYears {
		sources = append(sources, s.deps.Catalog.ForYear(dataset.KindENIGH, year)...)
	}
	for _, year := range encoYears {
		sources = append(sources, s.deps.Catalog.ForYear(dataset.KindENCO, year)...)
	}
	sources = append(sources, s.deps.Catalog.Select(dataset.KindCenso, dataset.KindSHP)...)
	return sources, nil
}

// Execute downloads and extracts the archives. Failed archives are logged;
// the step fails only when nothing could be fetched.
func (s *DownloadStep) Execute(ctx context.Context, state *OperationState) error {
	sources, err := s.Sources(state)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return NewValidationError(s.ID(), "no catalogued archives for the requested years")
	}

	progress := s.tracker(state, len(sources))
	if s.deps.CleanRaw {
		seen := make(map[string]bool)
		for _, src := range sources {
			dir := filepath.Join(s.deps.Paths.RawDir, filepath.FromSlash(src.Dest))
			if seen[dir] {
				continue
			}
			seen[dir] = true
			if err := download.CleanDir(dir); err != nil {
				return apperrors.NewStorageError("failed to clean raw directory", err).WithContext("dir", dir)
			}
		}
	}

	_ = progress.ReportProgress(5, fmt.Sprintf("Downloading %d archives", len(sources)))
	results, fetchErr := s.deps.Downloader.FetchAll(ctx, sources, s.deps.Paths.RawDir)
	state.SetContext(ContextKeyDownloads, results)
	s.metadata(state, "archives", len(results))
	s.metadata(state, "failed", len(sources)-len(results))

	if len(results) > 0 {
		path := filepath.Join(s.deps.Paths.RawDir, "download_metadata.txt")
		if err := download.WriteMetadata(path, results, s.deps.Now()); err != nil {
			s.logger.WarnContext(ctx, "Failed to write download metadata", slog.String("error", err.Error()))
		}
	}

	if fetchErr != nil {
		if ctx.Err() != nil || len(results) == 0 {
			return fetchErr
		}
		s.logger.WarnContext(ctx, "Some archives could not be downloaded",
			slog.Int("fetched", len(results)),
			slog.Int("failed", len(sources)-len(results)),
			slog.String("error", fetchErr.Error()))
	}
	_ = progress.ReportProgress(100, fmt.Sprintf("Downloaded %d of %d archives", len(results), len(sources)))
	return nil
}

// EnighStep cleans the household income table of every requested year
type EnighStep struct {
	stepBase
	processor *enigh.Processor
}

// NewEnighStep creates the ENIGH step
func NewEnighStep(deps StepDeps, opts StageOptions) *EnighStep {
	base := NewBaseStage(StageIDEnigh, StageNameEnigh, []string{StageIDDownload}).
		WithData([]DataRequirement{{Type: DataTypeRawArchives, MinCount: 1}}, outputOf(deps.Paths, DataTypeEnighTidy))
	sb := newStepBase(base, deps, opts)
	return &EnighStep{
		stepBase:  sb,
		processor: enigh.NewProcessor(sb.deps.Paths, sb.deps.Manifest, sb.deps.Logger),
	}
}

// Execute writes the tidy tables and keeps the observations for the
// inequality step
func (s *EnighStep) Execute(ctx context.Context, state *OperationState) error {
	years, err := s.enighYears(state)
	if err != nil {
		return err
	}

	progress := s.tracker(state, len(years))
	observations := make(map[int][]inequality.Observation, len(years))
	households := 0
	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := s.processor.Process(ctx, year)
		if err != nil {
			return err
		}
		observations[year] = out.Observations
		households += len(out.Observations)
		progress.Increment(fmt.Sprintf("Processed ENIGH %d", year))
	}

	state.SetContext(ContextKeyObservations, observations)
	s.metadata(state, "years", years)
	s.metadata(state, "households", households)
	return nil
}

// EncoStep stacks the monthly ENCO tables of every requested year
type EncoStep struct {
	stepBase
	loader *enco.Loader
}

// NewEncoStep creates the ENCO step
func NewEncoStep(deps StepDeps, opts StageOptions) *EncoStep {
	base := NewBaseStage(StageIDEnco, StageNameEnco, []string{StageIDDownload}).
		WithData([]DataRequirement{{Type: DataTypeRawArchives, MinCount: 1}}, outputOf(deps.Paths, DataTypeEncoTidy))
	sb := newStepBase(base, deps, opts)
	return &EncoStep{
		stepBase: sb,
		loader:   enco.NewLoader(sb.deps.Paths, sb.deps.Manifest, sb.deps.Logger),
	}
}

// Execute writes one tidy table per year
func (s *EncoStep) Execute(ctx context.Context, state *OperationState) error {
	years, err := s.encoYears(state)
	if err != nil {
		return err
	}
	if len(years) == 0 {
		s.metadata(state, "years", years)
		return nil
	}

	progress := s.tracker(state, len(years))
	tables := make(map[int]*tabular.Table, len(years))
	skipped := make(map[int][]int)
	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.loader.Process(ctx, year)
		if err != nil {
			return err
		}
		tables[year] = res.Table
		if len(res.Skipped) > 0 {
			skipped[year] = res.Skipped
		}
		progress.Increment(fmt.Sprintf("Processed ENCO %d", year))
	}

	state.SetContext(ContextKeyEncoTables, tables)
	s.metadata(state, "years", years)
	if len(skipped) > 0 {
		s.metadata(state, "skipped_months", skipped)
	}
	return nil
}

// CensoStep cleans the census and shapefile products
type CensoStep struct {
	stepBase
	processor *census.Processor
}

// NewCensoStep creates the census step
func NewCensoStep(deps StepDeps, opts StageOptions) *CensoStep {
	base := NewBaseStage(StageIDCenso, StageNameCenso, []string{StageIDDownload}).
		WithData([]DataRequirement{{Type: DataTypeRawArchives, MinCount: 1}}, outputOf(deps.Paths, DataTypeCensoTidy))
	sb := newStepBase(base, deps, opts)
	return &CensoStep{
		stepBase:  sb,
		processor: census.NewProcessor(sb.deps.Paths, sb.deps.Manifest, sb.deps.Logger),
	}
}

// Execute processes every catalogued census year
func (s *CensoStep) Execute(ctx context.Context, state *OperationState) error {
	years := s.deps.Catalog.Years(dataset.KindCenso)
	if len(years) == 0 {
		s.metadata(state, "years", years)
		return nil
	}

	progress := s.tracker(state, len(years))
	products := make(map[string]int)
	for _, year := range years {
		out, err := s.processor.Process(ctx, year)
		if err != nil {
			return err
		}
		for product, rows := range out.Rows {
			products[product] += rows
		}
		progress.Increment(fmt.Sprintf("Processed census %d", year))
	}
	s.metadata(state, "years", years)
	s.metadata(state, "rows", products)
	return nil
}

// InequalityStep computes Gini coefficients and deciles per level
type InequalityStep struct {
	stepBase
	processor *enigh.Processor
}

// NewInequalityStep creates the inequality step
func NewInequalityStep(deps StepDeps, opts StageOptions) *InequalityStep {
	base := NewBaseStage(StageIDInequality, StageNameInequality, []string{StageIDEnigh}).
		WithData([]DataRequirement{{Type: DataTypeEnighTidy, MinCount: 1}}, nil)
	sb := newStepBase(base, deps, opts)
	return &InequalityStep{
		stepBase:  sb,
		processor: enigh.NewProcessor(sb.deps.Paths, sb.deps.Manifest, sb.deps.Logger),
	}
}

// Execute stores the results of every requested level in the operation context
func (s *InequalityStep) Execute(ctx context.Context, state *OperationState) error {
	results, err := s.compute(ctx, state)
	if err != nil {
		return err
	}
	state.SetContext(ContextKeyResults, results)

	groups := make(map[string]int, len(results))
	for level, rs := range results {
		groups[string(level)] = len(rs)
	}
	s.metadata(state, "groups", groups)
	return nil
}

// observations returns the observations of the requested years, from the
// operation context when the ENIGH step ran, otherwise from the tidy files.
func (s *InequalityStep) observations(ctx context.Context, state *OperationState) ([]inequality.Observation, error) {
	years, err := s.enighYears(state)
	if err != nil {
		return nil, err
	}
	cached, _ := state.GetContext(ContextKeyObservations)
	byYear, _ := cached.(map[int][]inequality.Observation)

	var all []inequality.Observation
	for _, year := range years {
		obs, ok := byYear[year]
		if !ok {
			if obs, err = s.processor.LoadObservations(ctx, year); err != nil {
				return nil, err
			}
		}
		all = append(all, obs...)
	}
	return all, nil
}

func (s *InequalityStep) compute(ctx context.Context, state *OperationState) (map[dataset.Level][]inequality.Result, error) {
	levels, err := state.Levels()
	if err != nil {
		return nil, err
	}
	all, err := s.observations(ctx, state)
	if err != nil {
		return nil, err
	}

	progress := s.tracker(state, len(levels))
	results := make(map[dataset.Level][]inequality.Result, len(levels))
	for _, level := range levels {
		opts := []inequality.Option{inequality.WithLogger(s.logger)}
		if level == dataset.LevelMunicipal && s.deps.Pipeline.MinMunicipalObs > 0 {
			opts = append(opts, inequality.WithMinObservations(s.deps.Pipeline.MinMunicipalObs))
		}
		grouped, err := inequality.AggregateByGroup(ctx, all, exporter.KeyFunc(level), opts...)
		if err != nil {
			return nil, err
		}
		results[level] = inequality.SortedResults(grouped)
		s.deps.Metrics.RecordGroups(ctx, string(level), len(grouped))
		progress.Increment(fmt.Sprintf("Computed %d %s groups", len(grouped), level))
	}
	return results, nil
}

// ExportStep writes the result tables and hands them to the optional sinks
type ExportStep struct {
	stepBase
	inequality *InequalityStep
	loader     *enco.Loader
	exporter   *exporter.InequalityExporter
}

// NewExportStep creates the export step
func NewExportStep(deps StepDeps, opts StageOptions) *ExportStep {
	base := NewBaseStage(StageIDExport, StageNameExport, []string{StageIDInequality}).
		WithData([]DataRequirement{
			{Type: DataTypeEnighTidy, MinCount: 1},
			{Type: DataTypeEncoTidy, Optional: true},
		}, outputOf(deps.Paths, DataTypeResults))
	sb := newStepBase(base, deps, opts)
	expOpts := append(exporter.FromPipelineConfig(sb.deps.Pipeline), exporter.WithExportLogger(sb.deps.Logger))
	return &ExportStep{
		stepBase:   sb,
		inequality: NewInequalityStep(deps, opts),
		loader:     enco.NewLoader(sb.deps.Paths, sb.deps.Manifest, sb.deps.Logger),
		exporter:   exporter.NewInequalityExporter(sb.deps.Paths, expOpts...),
	}
}

// Execute writes the inequality tables per level, the optional workbook and
// the ENCO answer shares
func (s *ExportStep) Execute(ctx context.Context, state *OperationState) error {
	results, err := s.results(ctx, state)
	if err != nil {
		return err
	}
	levels, err := state.Levels()
	if err != nil {
		return err
	}

	progress := s.tracker(state, len(levels)*2)
	var written []string
	tables := make(map[dataset.Level]*tabular.Table, len(levels))
	for _, level := range levels {
		rs := results[level]
		path, err := s.exporter.Export(ctx, rs, level, dataset.KindENIGH)
		if err != nil {
			return err
		}
		written = append(written, path)
		tables[level] = s.exporter.Table(rs, level)

		if err := s.sink(ctx, level, rs, tables[level]); err != nil {
			return err
		}
		progress.Increment(fmt.Sprintf("Exported %s results", level))
	}

	if s.deps.Pipeline.WriteXLSX && len(tables) > 0 {
		path, err := s.exporter.ExportWorkbook(ctx, tables, dataset.KindENIGH)
		if err != nil {
			return err
		}
		written = append(written, path)
	}

	encoFiles, err := s.exportEnco(ctx, state, levels, progress)
	if err != nil {
		return err
	}
	written = append(written, encoFiles...)

	state.SetContext(ContextKeyExported, written)
	s.metadata(state, "files", written)
	return nil
}

func (s *ExportStep) results(ctx context.Context, state *OperationState) (map[dataset.Level][]inequality.Result, error) {
	if cached, ok := state.GetContext(ContextKeyResults); ok {
		if results, ok := cached.(map[dataset.Level][]inequality.Result); ok {
			return results, nil
		}
	}
	return s.inequality.compute(ctx, state)
}

func (s *ExportStep) sink(ctx context.Context, level dataset.Level, results []inequality.Result, table *tabular.Table) error {
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.Publish(ctx, dataset.KindENIGH, level, table); err != nil {
			return err
		}
	}
	if s.deps.Store != nil {
		runID, err := s.deps.Store.Save(ctx, dataset.KindENIGH, level, results)
		if err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "Stored results",
			slog.String("level", string(level)),
			slog.String("run_id", runID.String()),
			slog.Int("groups", len(results)))
	}
	return nil
}

// encoTables returns the tidy ENCO tables, skipping years without one
func (s *ExportStep) encoTables(ctx context.Context, state *OperationState) (map[int]*tabular.Table, []int, error) {
	years, err := s.encoYears(state)
	if err != nil {
		return nil, nil, err
	}
	cached, _ := state.GetContext(ContextKeyEncoTables)
	byYear, _ := cached.(map[int]*tabular.Table)

	tables := make(map[int]*tabular.Table, len(years))
	var order []int
	for _, year := range years {
		t, ok := byYear[year]
		if !ok {
			t, err = s.loader.LoadTidy(ctx, year)
			if apperrors.IsNotFound(err) {
				s.logger.WarnContext(ctx, "No tidy ENCO table, skipping shares", slog.Int("year", year))
				continue
			}
			if err != nil {
				return nil, nil, err
			}
		}
		tables[year] = t
		order = append(order, year)
	}
	return tables, order, nil
}

func (s *ExportStep) exportEnco(ctx context.Context, state *OperationState, levels []dataset.Level, progress *ProgressTracker) ([]string, error) {
	tables, years, err := s.encoTables(ctx, state)
	if err != nil || len(years) == 0 {
		return nil, err
	}

	var written []string
	for _, level := range levels {
		var shares []enco.Share
		for _, year := range years {
			ys, err := enco.AllShares(tables[year], level)
			if err != nil {
				return nil, err
			}
			shares = append(shares, ys...)
		}
		path, err := s.exporter.ExportShares(ctx, shares, level)
		if err != nil {
			return nil, err
		}
		written = append(written, path)

		path, err = s.exporter.ExportPerception(ctx, enco.Perception(shares), level)
		if err != nil {
			return nil, err
		}
		written = append(written, path)
		progress.Increment(fmt.Sprintf("Exported %s ENCO shares", level))
	}
	return written, nil
}

// IndicatorsStep downloads the INEGI indicator series of the nation and
// every state
type IndicatorsStep struct {
	stepBase
}

// NewIndicatorsStep creates the indicators step
func NewIndicatorsStep(deps StepDeps, opts StageOptions) *IndicatorsStep {
	base := NewBaseStage(StageIDIndicators, StageNameIndicators, nil).
		WithData(nil, outputOf(deps.Paths, DataTypeIndicators))
	return &IndicatorsStep{stepBase: newStepBase(base, deps, opts)}
}

// Execute writes the flattened series. Without a configured client the step
// completes without doing anything.
func (s *IndicatorsStep) Execute(ctx context.Context, state *OperationState) error {
	if s.deps.Indicators == nil {
		s.metadata(state, "disabled", true)
		s.logger.InfoContext(ctx, "Indicators client not configured, nothing to fetch")
		return nil
	}

	areas := append([]string{indicators.NationalArea}, indicators.StateAreas()...)
	progress := s.tracker(state, 1)
	_ = progress.ReportProgress(5, fmt.Sprintf("Fetching %d areas", len(areas)))

	rows, fetchErr := s.deps.Indicators.FetchAreas(ctx, areas)
	if fetchErr != nil {
		if len(rows) == 0 || apperrors.TypeOf(fetchErr) == apperrors.ErrTypeConfig {
			return fetchErr
		}
		s.logger.WarnContext(ctx, "Some areas failed", slog.String("error", fetchErr.Error()))
	}

	dir := IndicatorsDir(s.deps.Paths)
	path := filepath.Join(dir, IndicatorsFileName)
	if err := indicators.Table(rows).WriteFile(path); err != nil {
		return apperrors.NewStorageError("failed to write indicators table", err).WithContext("path", path)
	}
	md := files.NewMetadata("INEGI Indicators").
		Add("Saved at", path).
		Add("Areas", len(areas)).
		Add("Rows", len(rows)).
		AddList("Columns", indicators.Columns)
	if err := files.WriteMetadata(filepath.Join(dir, "enigh_api_metadata.txt"), md, s.deps.Now()); err != nil {
		s.logger.WarnContext(ctx, "Failed to write metadata", slog.String("error", err.Error()))
	}

	s.metadata(state, "rows", len(rows))
	s.metadata(state, "path", path)
	_ = progress.ReportProgress(100, fmt.Sprintf("Saved %d rows", len(rows)))
	return nil
}
