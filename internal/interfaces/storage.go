package interfaces

import "context"

// StorageManager owns the embedded database and the stores built on it.
type StorageManager interface {
	KeyValueStorage() KeyValueStorage

	// LoadVariablesFromFiles seeds the key/value store from variables.toml in dirPath.
	LoadVariablesFromFiles(ctx context.Context, dirPath string) error

	Close() error
}
