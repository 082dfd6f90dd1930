package features

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/medforge/tabtrain/internal/tabular"
	"github.com/medforge/tabtrain/pkg/errors"
)

const (
	// FeatureColumnsFile holds the canonical ordered feature-column list.
	FeatureColumnsFile = "feature_columns.json"
	// StoredConfigFile holds the configuration the columns were computed
	// under; later runs must byte-equal it before reusing the columns.
	StoredConfigFile = "config.yaml"
)

// LoadCorpus loads the raw event corpus from disk, one list of shard frames
// per split directory: <cohortDir>/<split>/<shard>.parquet.
func LoadCorpus(ctx context.Context, cohortDir string) (map[string][]*tabular.Frame, error) {
	entries, err := os.ReadDir(cohortDir)
	if err != nil {
		return nil, errors.Wrap(errors.KindMissingPath, err, "corpus directory %s", cohortDir)
	}
	corpus := make(map[string][]*tabular.Frame)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		split := e.Name()
		splitDir := filepath.Join(cohortDir, split)
		files, err := os.ReadDir(splitDir)
		if err != nil {
			return nil, errors.Wrap(errors.KindMissingPath, err, "split directory %s", splitDir)
		}
		names := make([]string, 0, len(files))
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".parquet") {
				names = append(names, f.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			frame, err := tabular.ReadFrame(ctx, filepath.Join(splitDir, name))
			if err != nil {
				return nil, err
			}
			corpus[split] = append(corpus[split], frame)
		}
	}
	return corpus, nil
}

func writeNew(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return errors.E(errors.KindOverwriteRefused,
			"%s exists and overwrite is not permitted", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.KindMissingPath, err, "creating parent of %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.KindMissingPath, err, "writing %s", path)
	}
	return nil
}

// LoadOrComputeColumns returns the canonical feature-column list for this
// run. A previously persisted list under flatDir is reused only when the
// stored configuration byte-equals fingerprint; any mismatch is a fatal
// ConfigDrift, never a silent recompute. On first run the catalog is computed
// from the train split of the raw corpus and persisted together with the
// fingerprint.
func LoadOrComputeColumns(ctx context.Context, flatDir, cohortDir string, aggregations []string, fingerprint []byte, log *zap.SugaredLogger) ([]string, error) {
	colsPath := filepath.Join(flatDir, FeatureColumnsFile)
	cfgPath := filepath.Join(flatDir, StoredConfigFile)

	if _, err := os.Stat(colsPath); err == nil {
		stored, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfigDrift, err,
				"feature columns exist but their stored config is unreadable")
		}
		if !bytes.Equal(stored, fingerprint) {
			return nil, errors.E(errors.KindConfigDrift,
				"stored config %s does not match current config", cfgPath)
		}
		raw, err := os.ReadFile(colsPath)
		if err != nil {
			return nil, errors.Wrap(errors.KindMissingPath, err, "reading %s", colsPath)
		}
		var columns []string
		if err := json.Unmarshal(raw, &columns); err != nil {
			return nil, errors.Wrap(errors.KindSchemaMismatch, err, "parsing %s", colsPath)
		}
		log.Infow("reusing persisted feature columns",
			"path", colsPath, "columns", len(columns))
		return columns, nil
	}

	corpus, err := LoadCorpus(ctx, cohortDir)
	if err != nil {
		return nil, err
	}
	train := corpus["train"]
	if len(train) == 0 {
		return nil, errors.E(errors.KindMissingPath,
			"corpus %s has no train split", cohortDir)
	}
	columns, err := CatalogColumns(aggregations, train...)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(columns)
	if err != nil {
		return nil, errors.Wrap(errors.KindSchemaMismatch, err, "encoding feature columns")
	}
	if err := writeNew(colsPath, encoded); err != nil {
		return nil, err
	}
	if err := writeNew(cfgPath, fingerprint); err != nil {
		return nil, err
	}
	log.Infow("computed feature columns",
		"path", colsPath, "columns", len(columns), "train_shards", len(train))
	return columns, nil
}
