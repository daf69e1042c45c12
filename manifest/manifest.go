// Package manifest reads and writes YOLO dataset manifests (data.yaml) and
// training metrics.
package manifest

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileName is the manifest file name inside a dataset directory.
const FileName = "data.yaml"

// Paths is a list of image directories. In YAML it may be a single string or
// a sequence.
type Paths []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Paths) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		if s == "" {
			*p = nil
		} else {
			*p = Paths{s}
		}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*p = list
		return nil
	}
	return errors.Errorf("line %d: expected a path or a list of paths", value.Line)
}

// Names is the class-name list, indexed by class id. In YAML it may be a
// sequence or an index-keyed mapping.
type Names []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *Names) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*n = list
		return nil
	case yaml.MappingNode:
		var byIndex map[int]string
		if err := value.Decode(&byIndex); err != nil {
			return err
		}
		out := make([]string, len(byIndex))
		for i, name := range byIndex {
			if i < 0 || i >= len(byIndex) {
				return errors.Errorf("line %d: class index %d out of range", value.Line, i)
			}
			out[i] = name
		}
		*n = out
		return nil
	}
	return errors.Errorf("line %d: names must be a list or a mapping", value.Line)
}

// Manifest is a YOLO dataset description.
type Manifest struct {
	Path  string `yaml:"path,omitempty"`
	Train Paths  `yaml:"train"`
	Val   Paths  `yaml:"val"`
	Test  Paths  `yaml:"test"`
	NC    int    `yaml:"nc"`
	Names Names  `yaml:"names"`
}

// Load reads a manifest file.
//
// Arguments:
//   - path: The data.yaml path.
//
// Returns:
//   - *Manifest: The parsed manifest.
//   - error: An error if the file cannot be read or parsed.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "failed to parse manifest %s", path)
	}
	if m.NC == 0 {
		m.NC = len(m.Names)
	}
	return &m, nil
}

// Save writes the manifest to path.
func (m *Manifest) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "failed to encode manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write manifest %s", path)
	}
	return nil
}

// Labels returns the class names, or an error if there are none or they
// disagree with nc.
func (m *Manifest) Labels() ([]string, error) {
	if len(m.Names) == 0 {
		return nil, errors.New("manifest has no class names")
	}
	if m.NC != len(m.Names) {
		return nil, errors.Errorf("manifest declares nc=%d but lists %d names", m.NC, len(m.Names))
	}
	return append([]string(nil), m.Names...), nil
}

// Unify builds one manifest covering every dataset directory under baseDir
// that carries its own data.yaml.
//
// The class list is the sorted intersection of every dataset's classes. Each
// dataset contributes its train/images and valid/images directories when they
// exist; only testDataset contributes test/images. Paths are relative to
// baseDir, which is recorded as the manifest path.
//
// Arguments:
//   - baseDir: The directory holding one sub-directory per dataset.
//   - testDataset: The dataset whose test split is used. May be empty.
//   - logger: Receives a line per skipped or included dataset.
//
// Returns:
//   - *Manifest: The unified manifest.
//   - error: An error if no dataset declares any classes.
func Unify(baseDir, testDataset string, logger *zap.SugaredLogger) (*Manifest, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list datasets in %s", baseDir)
	}

	var (
		classSets []map[string]struct{}
		unified   = &Manifest{Path: baseDir, Train: Paths{}, Val: Paths{}, Test: Paths{}}
	)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()

		ds, err := Load(filepath.Join(baseDir, name, FileName))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}

		if len(ds.Names) > 0 {
			set := make(map[string]struct{}, len(ds.Names))
			for _, n := range ds.Names {
				set[n] = struct{}{}
			}
			classSets = append(classSets, set)
		}

		if p := filepath.Join(name, "train", "images"); isDir(filepath.Join(baseDir, p)) {
			unified.Train = append(unified.Train, p)
		}
		if p := filepath.Join(name, "valid", "images"); isDir(filepath.Join(baseDir, p)) {
			unified.Val = append(unified.Val, p)
		}
		if name == testDataset {
			if p := filepath.Join(name, "test", "images"); isDir(filepath.Join(baseDir, p)) {
				unified.Test = append(unified.Test, p)
			}
		}

		logger.Infow("included dataset", "dataset", name, "classes", len(ds.Names))
	}

	if len(classSets) == 0 {
		return nil, errors.Errorf("no dataset with class names found in %s", baseDir)
	}

	unified.Names = intersect(classSets)
	unified.NC = len(unified.Names)

	logger.Infow("unified manifest",
		"train", []string(unified.Train),
		"val", []string(unified.Val),
		"test", []string(unified.Test),
		"classes", []string(unified.Names),
	)

	return unified, nil
}

// Merge unifies the datasets under baseDir and writes the result to
// baseDir/data.yaml.
//
// Returns:
//   - string: The written manifest path.
//   - *Manifest: The unified manifest.
//   - error: An error if unification or writing fails.
func Merge(baseDir, testDataset string, logger *zap.SugaredLogger) (string, *Manifest, error) {
	m, err := Unify(baseDir, testDataset, logger)
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(baseDir, FileName)
	if err := m.Save(path); err != nil {
		return "", nil, err
	}
	return path, m, nil
}

func intersect(sets []map[string]struct{}) Names {
	out := Names{}
	for name := range sets[0] {
		inAll := true
		for _, s := range sets[1:] {
			if _, ok := s[name]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
