package config

import (
	"fmt"
	"strings"

	"draftlab/analytics/internal/ranking"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// RankingConfig is the ranking pipeline configuration
type RankingConfig struct {
	// MissingTier stands in for absent team-context tiers
	MissingTier int `koanf:"missing_tier"`
	Tables      ranking.Tables
}

type rankingFile struct {
	MissingTier int                            `koanf:"missing_tier"`
	Tables      map[string]ranking.WeightTable `koanf:"tables"`
}

// LoadRankingConfig layers the built-in weight tables, the optional YAML file
// at path and RANKING_ env overrides (RANKING_MISSING_TIER). Tables in the
// file replace built-in tables of the same name.
func LoadRankingConfig(path string) (*RankingConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load ranking weights %s: %w", path, err)
		}
	}

	envProvider := env.Provider("RANKING_", ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), "ranking_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load ranking env overrides: %w", err)
	}

	var raw rankingFile
	if err := k.UnmarshalWithConf("", &raw, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode ranking config: %w", err)
	}

	cfg := &RankingConfig{
		MissingTier: ranking.DefaultMissingTier,
		Tables:      ranking.DefaultTables(),
	}
	if raw.MissingTier > 0 {
		cfg.MissingTier = raw.MissingTier
	}
	for name, table := range raw.Tables {
		table.Name = name
		for i := range table.Terms {
			if table.Terms[i].Kind == "" {
				table.Terms[i].Kind = ranking.TermPercentile
			}
		}
		cfg.Tables[name] = table
	}

	for _, name := range cfg.Tables.Names() {
		if err := cfg.Tables[name].Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Pipeline builds a ranking pipeline from the configuration
func (c *RankingConfig) Pipeline() *ranking.Pipeline {
	return ranking.NewPipeline(c.Tables, ranking.WithMissingTier(c.MissingTier))
}
