package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// variablesFileName is the seed file read from the variables directory
const variablesFileName = "variables.toml"

// VariableFile is one section of variables.toml:
//
//	[pinecone_api_key]
//	value = "pc-..."
//	description = "optional description"
type VariableFile struct {
	Value       string `toml:"value"`
	Description string `toml:"description"`
}

// LoadVariablesFromFiles seeds the key/value store from dirPath/variables.toml.
// A missing file is not an error. Entries with empty values are skipped.
func (m *Manager) LoadVariablesFromFiles(ctx context.Context, dirPath string) error {
	if dirPath == "" {
		return nil
	}

	filePath := filepath.Join(dirPath, variablesFileName)
	content, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		m.logger.Debug().Str("file", filePath).Msg("No variables file found, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	var variables map[string]VariableFile
	if err := toml.Unmarshal(content, &variables); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filePath, err)
	}

	keys := make([]string, 0, len(variables))
	for key := range variables {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	loaded, skipped := 0, 0
	for _, key := range keys {
		variable := variables[key]
		if variable.Value == "" {
			m.logger.Warn().Str("key", key).Msg("Skipping variable with empty value")
			skipped++
			continue
		}

		description := variable.Description
		if description == "" {
			description = "Loaded from " + variablesFileName
		}

		isNew, err := m.kv.Upsert(ctx, key, variable.Value, description)
		if err != nil {
			return fmt.Errorf("failed to store variable %s: %w", key, err)
		}
		m.logger.Debug().Str("key", key).Bool("new", isNew).Msg("Loaded variable")
		loaded++
	}

	m.logger.Debug().
		Int("loaded", loaded).
		Int("skipped", skipped).
		Msg("Finished loading variables")

	return nil
}
