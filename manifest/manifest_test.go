package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
}

func TestLoadAcceptsListAndMapNames(t *testing.T) {
	dir := t.TempDir()

	listPath := filepath.Join(dir, "list.yaml")
	writeFile(t, listPath, "train: ../train/images\nval: ../valid/images\nnc: 2\nnames: ['rice', 'beans']\n")
	m, err := Load(listPath)
	require.NoError(t, err)
	assert.Equal(t, Paths{"../train/images"}, m.Train)
	assert.Equal(t, Names{"rice", "beans"}, m.Names)

	mapPath := filepath.Join(dir, "map.yaml")
	writeFile(t, mapPath, "train: [a, b]\nnames:\n  1: beans\n  0: rice\n")
	m, err = Load(mapPath)
	require.NoError(t, err)
	assert.Equal(t, Paths{"a", "b"}, m.Train)
	assert.Equal(t, Names{"rice", "beans"}, m.Names)
	assert.Equal(t, 2, m.NC)

	labels, err := m.Labels()
	require.NoError(t, err)
	assert.Equal(t, []string{"rice", "beans"}, labels)
}

func TestLoadRejectsSparseMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yaml")
	writeFile(t, path, "names:\n  0: rice\n  5: beans\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLabelsMismatch(t *testing.T) {
	m := &Manifest{NC: 3, Names: Names{"a"}}
	_, err := m.Labels()
	assert.Error(t, err)

	_, err = (&Manifest{}).Labels()
	assert.Error(t, err)
}

func TestMergeIntersectsClasses(t *testing.T) {
	base := t.TempDir()

	writeFile(t, filepath.Join(base, "groceries", FileName), "names: [milk, rice, beans, coffee]\n")
	mkdir(t, filepath.Join(base, "groceries", "train", "images"))
	mkdir(t, filepath.Join(base, "groceries", "valid", "images"))
	mkdir(t, filepath.Join(base, "groceries", "test", "images"))

	writeFile(t, filepath.Join(base, "pantry", FileName), "names: {0: rice, 1: beans, 2: coffee, 3: sugar}\n")
	mkdir(t, filepath.Join(base, "pantry", "train", "images"))
	mkdir(t, filepath.Join(base, "pantry", "test", "images"))

	mkdir(t, filepath.Join(base, "empty"))
	writeFile(t, filepath.Join(base, "README.txt"), "not a dataset")

	path, m, err := Merge(base, "pantry", zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, FileName), path)

	assert.Equal(t, Names{"beans", "coffee", "rice"}, m.Names)
	assert.Equal(t, 3, m.NC)
	assert.Equal(t, Paths{filepath.Join("groceries", "train", "images"), filepath.Join("pantry", "train", "images")}, m.Train)
	assert.Equal(t, Paths{filepath.Join("groceries", "valid", "images")}, m.Val)
	assert.Equal(t, Paths{filepath.Join("pantry", "test", "images")}, m.Test)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Names, reloaded.Names)
	assert.Equal(t, m.Train, reloaded.Train)
	assert.Equal(t, base, reloaded.Path)
}

func TestUnifyWithoutDatasets(t *testing.T) {
	_, err := Unify(t.TempDir(), "", zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestLoadMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	writeFile(t, path, `{"metrics/recall(B)": 0.71, "fitness": 0.52, "metrics/mAP50(B)": 0.8}`)

	metrics, err := LoadMetrics(path)
	require.NoError(t, err)
	require.Len(t, metrics, 3)
	assert.Equal(t, "fitness", metrics[0].Name)
	assert.Equal(t, "metrics/mAP50(B)", metrics[1].Name)
	assert.InDelta(t, 0.71, metrics[2].Value, 1e-9)

	writeFile(t, path, `not json`)
	_, err = LoadMetrics(path)
	assert.Error(t, err)
}
