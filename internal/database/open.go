// internal/database/open.go
package database

import (
	"fmt"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/config"
)

// Open returns the store backend selected by cfg.Type.
func Open(cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Type {
	case "boltdb", "":
		s, err := NewBoltStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}
