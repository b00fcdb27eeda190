// Package productdb loads the product catalogue: per-model command classes,
// configuration parameters and association groups, keyed by the ids a node
// reports through Manufacturer Specific.
package productdb

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"zwave-go-home/internal/zwave"
)

// ManufacturerGroup groups product definitions under one manufacturer id.
type ManufacturerGroup struct {
	ID       uint16              `yaml:"id"`
	Name     string              `yaml:"name"`
	Products []ProductDefinition `yaml:"products"`
}

// ProductDefinition describes one device model, optionally limited to a
// range of application versions ("major.minor", inclusive).
type ProductDefinition struct {
	Type           uint16                `yaml:"type"`
	ID             uint16                `yaml:"id"`
	Name           string                `yaml:"name"`
	Label          string                `yaml:"label,omitempty"`
	VersionMin     string                `yaml:"version_min,omitempty"`
	VersionMax     string                `yaml:"version_max,omitempty"`
	CommandClasses []uint8               `yaml:"command_classes,omitempty"`
	Parameters     []ParameterDefinition `yaml:"parameters,omitempty"`
	Groups         []GroupDefinition     `yaml:"groups,omitempty"`
}

// ParameterDefinition describes one configuration parameter.
type ParameterDefinition struct {
	Index     uint8    `yaml:"index"`
	Label     string   `yaml:"label,omitempty"`
	Size      int      `yaml:"size"`
	Default   int32    `yaml:"default,omitempty"`
	Min       int32    `yaml:"min,omitempty"`
	Max       int32    `yaml:"max,omitempty"`
	ReadOnly  bool     `yaml:"read_only,omitempty"`
	WriteOnly bool     `yaml:"write_only,omitempty"`
	Options   []Option `yaml:"options,omitempty"`
}

// Option is a labelled parameter value.
type Option struct {
	Value int32  `yaml:"value"`
	Label string `yaml:"label"`
}

// GroupDefinition describes one association group.
type GroupDefinition struct {
	Index    uint8  `yaml:"index"`
	Label    string `yaml:"label,omitempty"`
	MaxNodes uint8  `yaml:"max_nodes"`
}

type key struct {
	manufacturer, deviceType, deviceID uint16
}

type entry struct {
	product  *zwave.Product
	min, max version
}

// Database holds product definitions keyed by manufacturer, type and id.
// Several entries may share a key when they cover different firmware ranges.
type Database struct {
	mu      sync.RWMutex
	entries map[key][]entry
	count   int
}

// New creates an empty catalogue.
func New() *Database {
	return &Database{entries: make(map[key][]entry)}
}

// Add inserts the definition of one model made by manufacturer.
func (db *Database) Add(manufacturer uint16, def ProductDefinition) error {
	minV, err := parseVersion(def.VersionMin, version{0, 0})
	if err != nil {
		return fmt.Errorf("product %s version_min: %w", def.Name, err)
	}
	maxV, err := parseVersion(def.VersionMax, version{255, 255})
	if err != nil {
		return fmt.Errorf("product %s version_max: %w", def.Name, err)
	}
	if maxV.less(minV) {
		return fmt.Errorf("product %s: version range %s..%s is empty", def.Name, def.VersionMin, def.VersionMax)
	}

	k := key{manufacturer, def.Type, def.ID}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.entries[k] = append(db.entries[k], entry{product: def.product(manufacturer), min: minV, max: maxV})
	db.count++
	return nil
}

// Lookup returns the first definition for the ids whose version range holds
// appVersion. An empty or unparsable appVersion matches any range.
func (db *Database) Lookup(manufacturer, deviceType, deviceID uint16, appVersion string) (*zwave.Product, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	candidates := db.entries[key{manufacturer, deviceType, deviceID}]
	v, err := parseVersion(appVersion, version{})
	if appVersion == "" || err != nil {
		if len(candidates) == 0 {
			return nil, false
		}
		return candidates[0].product, true
	}
	for _, e := range candidates {
		if !v.less(e.min) && !e.max.less(v) {
			return e.product, true
		}
	}
	return nil, false
}

// Len returns the number of definitions.
func (db *Database) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.count
}

func (def ProductDefinition) product(manufacturer uint16) *zwave.Product {
	p := &zwave.Product{
		Manufacturer: manufacturer,
		DeviceType:   def.Type,
		DeviceID:     def.ID,
		Name:         def.Name,
		Label:        def.Label,
	}
	for _, cc := range def.CommandClasses {
		p.CommandClasses = append(p.CommandClasses, zwave.CommandClass(cc))
	}
	for _, pd := range def.Parameters {
		pi := zwave.ParameterInfo{
			Index:     pd.Index,
			Label:     pd.Label,
			Size:      pd.Size,
			Default:   pd.Default,
			Min:       pd.Min,
			Max:       pd.Max,
			ReadOnly:  pd.ReadOnly,
			WriteOnly: pd.WriteOnly,
		}
		for _, o := range pd.Options {
			pi.Options = append(pi.Options, zwave.ParameterOption{Value: o.Value, Label: o.Label})
		}
		p.Parameters = append(p.Parameters, pi)
	}
	sort.Slice(p.Parameters, func(i, j int) bool { return p.Parameters[i].Index < p.Parameters[j].Index })
	for _, g := range def.Groups {
		p.Groups = append(p.Groups, zwave.GroupInfo{Index: g.Index, Label: g.Label, MaxNodes: g.MaxNodes})
	}
	return p
}

// version is an application version "major.minor".
type version struct {
	major, minor int
}

func (v version) less(o version) bool {
	if v.major != o.major {
		return v.major < o.major
	}
	return v.minor < o.minor
}

// parseVersion parses "major.minor" or "major"; s == "" yields def.
func parseVersion(s string, def version) (version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	majorStr, minorStr, hasMinor := strings.Cut(s, ".")
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return version{}, fmt.Errorf("version %q: %w", s, err)
	}
	minor := 0
	if hasMinor {
		if minor, err = strconv.Atoi(minorStr); err != nil {
			return version{}, fmt.Errorf("version %q: %w", s, err)
		}
	}
	return version{major, minor}, nil
}

// productFile is the YAML structure of files in the products directory.
type productFile struct {
	Manufacturers []ManufacturerGroup `yaml:"manufacturers"`
}

// LoadDir reads every *.yaml and *.yml file in dir. A missing or empty
// directory yields an empty catalogue, not an error.
func LoadDir(dir string, logger *slog.Logger) (*Database, error) {
	db := New()

	var matches []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return db, fmt.Errorf("glob products dir: %w", err)
		}
		matches = append(matches, m...)
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		logger.Info("no product files found", "dir", dir)
		return db, nil
	}

	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return db, fmt.Errorf("read %s: %w", path, err)
		}

		var pf productFile
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return db, fmt.Errorf("parse %s: %w", path, err)
		}

		count := 0
		for _, mg := range pf.Manufacturers {
			for _, def := range mg.Products {
				if err := db.Add(mg.ID, def); err != nil {
					return db, fmt.Errorf("%s: %s: %w", path, mg.Name, err)
				}
				count++
			}
		}
		logger.Info("loaded product file", "path", filepath.Base(path),
			"manufacturers", len(pf.Manufacturers), "products", count)
	}

	logger.Info("product catalogue loaded", "files", len(matches), "products", db.Len())
	return db, nil
}
