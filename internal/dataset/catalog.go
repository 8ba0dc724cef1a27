package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// Source is one downloadable INEGI archive.
type Source struct {
	Kind  Kind   `yaml:"kind" json:"kind" validate:"required,oneof=enigh enco censo shp"`
	Year  int    `yaml:"year" json:"year" validate:"min=2000,max=2100"`
	Month int    `yaml:"month,omitempty" json:"month,omitempty" validate:"min=0,max=12"`
	Name  string `yaml:"name" json:"name" validate:"required"`
	URL   string `yaml:"url" json:"url" validate:"required,url"`
	// Dest is the extraction directory relative to the raw data root.
	Dest string `yaml:"dest" json:"dest" validate:"required"`
}

// ID is a stable identifier such as "enco-2022-03" or "enigh-2020".
func (s Source) ID() string {
	if s.Month > 0 {
		return fmt.Sprintf("%s-%d-%02d", s.Kind, s.Year, s.Month)
	}
	if s.Kind == KindCenso || s.Kind == KindSHP {
		return fmt.Sprintf("%s-%d-%s", s.Kind, s.Year, s.Name)
	}
	return fmt.Sprintf("%s-%d", s.Kind, s.Year)
}

// Archive is the file name of the ZIP archive.
func (s Source) Archive() string {
	return s.Name + ".zip"
}

// Catalog is the explicit list of archives the pipeline knows about.
type Catalog struct {
	Version int      `yaml:"version" json:"version"`
	Sources []Source `yaml:"sources" json:"sources" validate:"dive"`
}

// CatalogConfig holds the URL roots and years a catalog is generated from.
type CatalogConfig struct {
	EncoBaseURL  string
	EnighBaseURL string
	CensoBaseURL string
	ShpBaseURL   string
	EnighYears   []int
	EncoYears    []int
	CensoYear    int
	IncludeAGEB  bool
}

// DefaultCatalogConfig points at the INEGI open data site.
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		EncoBaseURL:  "https://www.inegi.org.mx/contenidos/programas/enco/datosabiertos",
		EnighBaseURL: "https://www.inegi.org.mx/contenidos/programas/enigh/nc",
		CensoBaseURL: "https://www.inegi.org.mx/contenidos/programas/ccpv/2020/datosabiertos",
		ShpBaseURL:   "https://www.inegi.org.mx/contenidos/descargadenue/MGdescarga/MGN2020_1",
		EnighYears:   []int{2018, 2020, 2022},
		EncoYears:    []int{2018, 2020, 2022},
		CensoYear:    2020,
		IncludeAGEB:  true,
	}
}

// encoArchiveExceptions lists ENCO months published under a non-standard name.
// An empty name means INEGI published nothing for that month.
var encoArchiveExceptions = map[int]map[int]string{
	2018: {
		1: "enco_enero_2018_csv",
		2: "enco_febrero_2018_csv",
		3: "enco_marzo_2018_csv",
		4: "enco_abril_2018_csv",
		5: "enco_mayo_2018_csv",
		6: "conjunto_de_datos_enco0618_csv",
		7: "conjunto_de_datos_enco0718_csv",
	},
	2020: {4: "", 5: "", 6: "", 7: ""},
}

// EncoArchiveName returns the archive stem for an ENCO month and whether the
// month was published at all.
func EncoArchiveName(year, month int) (string, bool) {
	if exceptions, ok := encoArchiveExceptions[year]; ok {
		if name, ok := exceptions[month]; ok {
			return name, name != ""
		}
	}
	return fmt.Sprintf("conjunto_de_datos_enco_%d_%02d_csv", year, month), true
}

// EnighArchiveName returns the archive stem of the ENIGH open data release.
func EnighArchiveName(year int) string {
	if year == 2018 {
		return "conjunto_de_datos_enigh_2018_ns_csv"
	}
	return fmt.Sprintf("conjunto_de_datos_enigh_ns_%d_csv", year)
}

// NewCatalog generates one Source per archive described by cfg.
func NewCatalog(cfg CatalogConfig) *Catalog {
	c := &Catalog{Version: 1}

	for _, year := range cfg.EncoYears {
		for month := 1; month <= 12; month++ {
			name, ok := EncoArchiveName(year, month)
			if !ok {
				continue
			}
			c.Sources = append(c.Sources, Source{
				Kind:  KindENCO,
				Year:  year,
				Month: month,
				Name:  name,
				URL:   fmt.Sprintf("%s/%d/%s.zip", cfg.EncoBaseURL, year, name),
				Dest:  rawDest(KindENCO, year),
			})
		}
	}

	if cfg.CensoYear > 0 {
		iter := fmt.Sprintf("iter_00_cpv%d_csv", cfg.CensoYear)
		c.Sources = append(c.Sources, Source{
			Kind: KindCenso,
			Year: cfg.CensoYear,
			Name: iter,
			URL:  fmt.Sprintf("%s/iter/%s.zip", cfg.CensoBaseURL, iter),
			Dest: rawDest(KindCenso, cfg.CensoYear),
		})
		if cfg.IncludeAGEB {
			for ent := 1; ent <= 32; ent++ {
				name := fmt.Sprintf("ageb_mza_urbana_%02d_cpv%d_csv", ent, cfg.CensoYear)
				c.Sources = append(c.Sources, Source{
					Kind: KindCenso,
					Year: cfg.CensoYear,
					Name: name,
					URL:  fmt.Sprintf("%s/ageb_manzana/%s.zip", cfg.CensoBaseURL, name),
					Dest: rawDest(KindCenso, cfg.CensoYear),
				})
			}
		}

		for _, level := range []string{"ENT", "MUN"} {
			name := fmt.Sprintf("%d_1_00_%s", cfg.CensoYear, level)
			c.Sources = append(c.Sources, Source{
				Kind: KindSHP,
				Year: cfg.CensoYear,
				Name: name,
				URL:  fmt.Sprintf("%s/%s.zip", cfg.ShpBaseURL, name),
				Dest: rawDest(KindSHP, cfg.CensoYear),
			})
		}
	}

	for _, year := range cfg.EnighYears {
		name := EnighArchiveName(year)
		c.Sources = append(c.Sources, Source{
			Kind: KindENIGH,
			Year: year,
			Name: name,
			URL:  fmt.Sprintf("%s/%d/datosabiertos/%s.zip", cfg.EnighBaseURL, year, name),
			Dest: rawDest(KindENIGH, year),
		})
	}

	return c
}

// DefaultCatalog is the catalog generated from DefaultCatalogConfig.
func DefaultCatalog() *Catalog {
	return NewCatalog(DefaultCatalogConfig())
}

func rawDest(kind Kind, year int) string {
	return filepath.Join(string(kind), strconv.Itoa(year))
}

// Select returns the sources of the given kinds, or all sources when none is given.
func (c *Catalog) Select(kinds ...Kind) []Source {
	if len(kinds) == 0 {
		return append([]Source(nil), c.Sources...)
	}
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []Source
	for _, s := range c.Sources {
		if want[s.Kind] {
			out = append(out, s)
		}
	}
	return out
}

// ForYear returns the sources of one kind and year, ordered by month.
func (c *Catalog) ForYear(kind Kind, year int) []Source {
	var out []Source
	for _, s := range c.Sources {
		if s.Kind == kind && s.Year == year {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// Years returns the distinct years catalogued for kind in ascending order.
func (c *Catalog) Years(kind Kind) []int {
	seen := make(map[int]bool)
	var years []int
	for _, s := range c.Sources {
		if s.Kind == kind && !seen[s.Year] {
			seen[s.Year] = true
			years = append(years, s.Year)
		}
	}
	sort.Ints(years)
	return years
}

// Validate checks every source and rejects duplicate IDs.
func (c *Catalog) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if seen[s.ID()] {
			return fmt.Errorf("invalid catalog: duplicate source %s", s.ID())
		}
		seen[s.ID()] = true
	}
	return nil
}

// LoadCatalog reads a YAML catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Save writes the catalog as YAML.
func (c *Catalog) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
