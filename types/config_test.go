package types

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRunConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("defaults", func(t *testing.T) {
		p := filepath.Join(dir, "five.yaml")
		require.NoError(t, os.WriteFile(p, []byte("order: 5\n"), 0o644))

		cfg, err := LoadRunConfig(p)
		require.NoError(t, err)
		require.Equal(t, "five", cfg.Name)
		require.Equal(t, 5, cfg.Order)
		require.Equal(t, StoreFile, cfg.Store.Kind)
		require.Equal(t, filepath.Join("preprocessed", "train"), cfg.Data.TrainDir)
		require.Equal(t, filepath.Join("preprocessed", "test", "predicted", "5gram"), cfg.Data.PredictedDir)
		require.Equal(t, 1, cfg.DecodeWorkers)
		require.Equal(t, 1, cfg.TrainWorkers)
	})

	t.Run("explicit", func(t *testing.T) {
		p := filepath.Join(dir, "sqlite.yaml")
		body := `
name: prod
order: 4
store:
  kind: sqlite
  path: /tmp/models.db
data:
  train_dir: corpus/train
decode_workers: 8
train_workers: 2
`
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))

		cfg, err := LoadRunConfig(p)
		require.NoError(t, err)
		require.Equal(t, "prod", cfg.Name)
		require.Equal(t, StoreSQLite, cfg.Store.Kind)
		require.Equal(t, "/tmp/models.db", cfg.Store.Path)
		require.Equal(t, "corpus/train", cfg.Data.TrainDir)
		require.Equal(t, 8, cfg.DecodeWorkers)
		require.Equal(t, 2, cfg.TrainWorkers)
	})

	t.Run("invalid order", func(t *testing.T) {
		p := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(p, []byte("order: 1\n"), 0o644))
		_, err := LoadRunConfig(p)
		require.Error(t, err)
	})

	t.Run("unknown store", func(t *testing.T) {
		p := filepath.Join(dir, "store.yaml")
		require.NoError(t, os.WriteFile(p, []byte("store:\n  kind: tape\n"), 0o644))
		_, err := LoadRunConfig(p)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRunConfig(filepath.Join(dir, "nope.yaml"))
		require.True(t, errors.Is(err, ErrMissingResource))
	})
}

func TestDefaultRunConfig(t *testing.T) {
	cfg := DefaultRunConfig(3)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "3gram", cfg.Name)
	require.Equal(t, filepath.Join("preprocessed", "test", "test"), cfg.Data.TestDir)
	require.Equal(t, filepath.Join("preprocessed", "test", "gold"), cfg.Data.GoldDir)
}

func TestDefaultRunConfigAt(t *testing.T) {
	cfg := DefaultRunConfigAt(4, "data")
	require.Equal(t, filepath.Join("data", "train"), cfg.Data.TrainDir)
	require.Equal(t, filepath.Join("data", "test", "predicted", "4gram"), cfg.Data.PredictedDir)
}
