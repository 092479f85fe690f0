package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/arthur-debert/nanotree/nanotree"
	"github.com/arthur-debert/nanotree/types"
)

// settingKeys lists the persistent flags mirrored in viper
var settingKeys = []string{
	"backend", "db", "mongo-uri", "mongo-db", "collection",
	"separator", "on-delete", "workers", "ordering", "position-field", "id-type", "wrap",
	"format", "log-level", "verbose",
}

// settings is the resolved CLI configuration
type settings struct {
	Backend       string `mapstructure:"backend" yaml:"backend"`
	DB            string `mapstructure:"db" yaml:"db"`
	MongoURI      string `mapstructure:"mongo-uri" yaml:"mongo-uri"`
	MongoDB       string `mapstructure:"mongo-db" yaml:"mongo-db"`
	Collection    string `mapstructure:"collection" yaml:"collection"`
	Separator     string `mapstructure:"separator" yaml:"separator"`
	OnDelete      string `mapstructure:"on-delete" yaml:"on-delete"`
	Workers       int    `mapstructure:"workers" yaml:"workers"`
	Ordering      bool   `mapstructure:"ordering" yaml:"ordering"`
	PositionField string `mapstructure:"position-field" yaml:"position-field"`
	IDType        string `mapstructure:"id-type" yaml:"id-type"`
	Wrap          bool   `mapstructure:"wrap" yaml:"wrap"`
	Format        string `mapstructure:"format" yaml:"format"`
}

// loadSettings reads and checks the settings held by v
func loadSettings(v *viper.Viper) (settings, error) {
	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return s, NewConfigError("load configuration", err.Error(), CommonSuggestions.CheckConfig)
	}
	s.Backend = strings.ToLower(s.Backend)
	s.OnDelete = strings.ToUpper(s.OnDelete)

	switch nanotree.Backend(s.Backend) {
	case nanotree.BackendJSON, nanotree.BackendSQLite:
		if s.DB == "" {
			return s, NewConfigError("open tree", fmt.Sprintf("the %s backend needs a database file", s.Backend),
				"Use --db to point at the file", "Or set NANOTREE_DB")
		}
	case nanotree.BackendMongo:
		if s.MongoURI == "" {
			return s, NewConfigError("open tree", "the mongo backend needs a connection URI",
				"Use --mongo-uri mongodb://host:27017", "Or set NANOTREE_MONGO_URI")
		}
	case nanotree.BackendMemory:
	default:
		return s, NewValidationError("open tree", "backend", s.Backend, "Use one of json, sqlite, mongo, memory")
	}

	switch s.Format {
	case "table", "json", "yaml":
	default:
		return s, NewValidationError("configure output", "format", s.Format, "Use one of table, json, yaml")
	}
	return s, nil
}

func (s settings) storeOptions() nanotree.StoreOptions {
	return nanotree.StoreOptions{
		Backend:       nanotree.Backend(s.Backend),
		Path:          s.DB,
		MongoURI:      s.MongoURI,
		MongoDatabase: s.MongoDB,
		Collection:    s.Collection,
	}
}

func (s settings) treeConfig() types.Config {
	return types.Config{
		PathSeparator:    s.Separator,
		OnDelete:         types.DeletePolicy(s.OnDelete),
		NumWorkers:       s.Workers,
		IDType:           types.IDType(s.IDType),
		TreeOrdering:     s.Ordering,
		PositionField:    s.PositionField,
		WrapChildrenTree: s.Wrap,
	}
}
