// Package common provides configuration, logging and version helpers.
//
// Configuration string values may reference entries in the key/value store
// with {key-name} syntax. After storage is opened the references are replaced
// with the stored values:
//
//	Input:  api_key = "{pinecone-key}"
//	KV Map: {"pinecone-key": "pc-12345"}
//	Output: api_key = "pc-12345"
//
// Missing keys are logged and the reference is left unchanged.
package common

import (
	"context"
	"fmt"
	"reflect"
	"regexp"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/interfaces"
)

// keyRefPattern matches {key-name} references in strings
var keyRefPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// ReplaceKeyReferences replaces all {key-name} references in input with values from kvMap
func ReplaceKeyReferences(input string, kvMap map[string]string, logger arbor.ILogger) string {
	if input == "" {
		return input
	}

	return keyRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		keyName := match[1 : len(match)-1]
		if value, exists := kvMap[keyName]; exists {
			return value
		}
		logger.Warn().
			Str("reference", match).
			Msg("Unresolved key reference - key not found in KV store")
		return match
	})
}

// ReplaceInStruct walks a struct pointer and replaces references in every
// exported string field, including nested structs and string slices.
func ReplaceInStruct(v any, kvMap map[string]string, logger arbor.ILogger) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr {
		return fmt.Errorf("ReplaceInStruct requires a pointer, got %T", v)
	}

	val = val.Elem()
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("ReplaceInStruct requires a struct pointer, got pointer to %v", val.Kind())
	}

	replaceInStructValue(val, kvMap, logger)
	return nil
}

func replaceInStructValue(val reflect.Value, kvMap map[string]string, logger arbor.ILogger) {
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if !field.CanSet() {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			oldValue := field.String()
			newValue := ReplaceKeyReferences(oldValue, kvMap, logger)
			if oldValue != newValue {
				field.SetString(newValue)
				logger.Debug().
					Str("field", typ.Field(i).Name).
					Msg("Replaced key reference in config field")
			}

		case reflect.Struct:
			replaceInStructValue(field, kvMap, logger)

		case reflect.Slice:
			if field.Type().Elem().Kind() != reflect.String {
				continue
			}
			for j := 0; j < field.Len(); j++ {
				elem := field.Index(j)
				elem.SetString(ReplaceKeyReferences(elem.String(), kvMap, logger))
			}
		}
	}
}

// ApplyKeyReplacements resolves {key-name} references in config against the KV store.
// Failures degrade gracefully: the config is left as loaded.
func ApplyKeyReplacements(ctx context.Context, config *Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) {
	if kvStorage == nil {
		return
	}

	kvMap, err := kvStorage.GetAll(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
		return
	}

	if err := ReplaceInStruct(config, kvMap, logger); err != nil {
		logger.Warn().Err(err).Msg("Failed to replace key references in config")
		return
	}

	logger.Debug().Int("keys", len(kvMap)).Msg("Applied key/value replacements to config")
}
