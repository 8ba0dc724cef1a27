package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

// ErrNotInManifest is returned by Lookup when no entry matches.
var ErrNotInManifest = errors.New("not in manifest")

// Table names used in the manifest.
const (
	TableConcentradoHogar = "concentradohogar"
	TableEncoCS           = "cs"
	TableEncoViv          = "viv"
	TableEncoCB           = "cb"
	TableIter             = "iter"
	TableAGEBPrefix       = "ageb_"
	TableShpEnt           = "ent"
	TableShpMun           = "mun"
)

// ManifestEntry maps one logical table to the file it is read from.
type ManifestEntry struct {
	Kind  Kind   `yaml:"kind" json:"kind"`
	Year  int    `yaml:"year" json:"year"`
	Month int    `yaml:"month,omitempty" json:"month,omitempty"`
	Table string `yaml:"table" json:"table"`
	// Path is relative to the raw directory of Kind and Year.
	Path string `yaml:"path" json:"path"`
}

func (e ManifestEntry) key() string {
	return fmt.Sprintf("%s/%d/%02d/%s", e.Kind, e.Year, e.Month, e.Table)
}

// Manifest is a versioned mapping from (kind, year, month, table) to file paths.
type Manifest struct {
	Version int             `yaml:"version" json:"version"`
	Entries []ManifestEntry `yaml:"entries" json:"entries"`

	index map[string]int
}

// NewManifest indexes entries. Later entries replace earlier ones with the same key.
func NewManifest(version int, entries []ManifestEntry) *Manifest {
	m := &Manifest{Version: version}
	for _, e := range entries {
		m.Add(e)
	}
	return m
}

// Add inserts or replaces an entry.
func (m *Manifest) Add(e ManifestEntry) {
	if m.index == nil {
		m.reindex()
	}
	if i, ok := m.index[e.key()]; ok {
		m.Entries[i] = e
		return
	}
	m.index[e.key()] = len(m.Entries)
	m.Entries = append(m.Entries, e)
}

func (m *Manifest) reindex() {
	m.index = make(map[string]int, len(m.Entries))
	for i, e := range m.Entries {
		m.index[e.key()] = i
	}
}

// Lookup returns the relative path registered for a table. Month is 0 for
// datasets that are not monthly.
func (m *Manifest) Lookup(kind Kind, year, month int, table string) (string, error) {
	if m.index == nil {
		m.reindex()
	}
	probe := ManifestEntry{Kind: kind, Year: year, Month: month, Table: table}
	i, ok := m.index[probe.key()]
	if !ok {
		return "", fmt.Errorf("%s %d month %d table %s: %w", kind, year, month, table, ErrNotInManifest)
	}
	return m.Entries[i].Path, nil
}

// Tables returns the entries of kind and year whose table starts with prefix,
// ordered by month then table.
func (m *Manifest) Tables(kind Kind, year int, prefix string) []ManifestEntry {
	var out []ManifestEntry
	for _, e := range m.Entries {
		if e.Kind == kind && e.Year == year && strings.HasPrefix(e.Table, prefix) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Table < out[j].Table
	})
	return out
}

// Months returns the months with an entry for table.
func (m *Manifest) Months(kind Kind, year int, table string) []int {
	var months []int
	for _, e := range m.Tables(kind, year, table) {
		if e.Table == table {
			months = append(months, e.Month)
		}
	}
	return months
}

// enighTableStem is the directory and file stem of the concentradohogar table.
func enighTableStem(year int) string {
	if year >= 2022 {
		return fmt.Sprintf("conjunto_de_datos_concentradohogar_enigh%d_ns", year)
	}
	return fmt.Sprintf("conjunto_de_datos_concentradohogar_enigh_%d_ns", year)
}

func encoTablePath(table string, year, month int) string {
	stem := fmt.Sprintf("conjunto_de_datos_%s_enco_%d_%02d", table, year, month)
	return filepath.Join(stem, "conjunto_de_datos", stem+".CSV")
}

// ManifestFor derives the manifest of every source in the catalog.
func ManifestFor(c *Catalog) *Manifest {
	m := NewManifest(1, nil)
	for _, s := range c.Sources {
		switch s.Kind {
		case KindENIGH:
			stem := enighTableStem(s.Year)
			m.Add(ManifestEntry{
				Kind: KindENIGH, Year: s.Year, Table: TableConcentradoHogar,
				Path: filepath.Join(stem, "conjunto_de_datos", stem+".csv"),
			})
		case KindENCO:
			for _, table := range []string{TableEncoCS, TableEncoViv, TableEncoCB} {
				m.Add(ManifestEntry{
					Kind: KindENCO, Year: s.Year, Month: s.Month, Table: table,
					Path: encoTablePath(table, s.Year, s.Month),
				})
			}
		case KindCenso:
			if strings.HasPrefix(s.Name, "iter_") {
				dir := strings.TrimSuffix(s.Name, "_csv")
				m.Add(ManifestEntry{
					Kind: KindCenso, Year: s.Year, Table: TableIter,
					Path: filepath.Join(dir, "conjunto_de_datos",
						fmt.Sprintf("conjunto_de_datos_iter_00CSV%02d.csv", s.Year%100)),
				})
				continue
			}
			var ent int
			if _, err := fmt.Sscanf(s.Name, "ageb_mza_urbana_%02d_", &ent); err == nil {
				dir := strings.TrimSuffix(s.Name, "_csv")
				m.Add(ManifestEntry{
					Kind: KindCenso, Year: s.Year, Table: fmt.Sprintf("%s%02d", TableAGEBPrefix, ent),
					Path: filepath.Join(dir, "conjunto_de_datos",
						fmt.Sprintf("conjunto_de_datos_ageb_urbana_%02d_cpv%d.csv", ent, s.Year)),
				})
			}
		case KindSHP:
			level := strings.ToLower(s.Name[strings.LastIndex(s.Name, "_")+1:])
			m.Add(ManifestEntry{
				Kind: KindSHP, Year: s.Year, Table: level,
				Path: filepath.Join("conjunto_de_datos", "00"+level+".dbf"),
			})
		}
	}
	return m
}

// DefaultManifest is the manifest of DefaultCatalog.
func DefaultManifest() *Manifest {
	return ManifestFor(DefaultCatalog())
}

// LoadManifest reads a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	for _, e := range m.Entries {
		if e.Table == "" || e.Path == "" {
			return nil, fmt.Errorf("manifest %s: entry %s has no table or path", path, e.key())
		}
		if filepath.IsAbs(e.Path) || strings.HasPrefix(filepath.Clean(e.Path), "..") {
			return nil, fmt.Errorf("manifest %s: path %q must stay inside the raw directory", path, e.Path)
		}
	}
	m.reindex()
	return &m, nil
}

// Save writes the manifest as YAML.
func (m *Manifest) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
