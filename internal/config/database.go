// internal/config/database.go
package config

import (
	"fmt"
)

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// UsesMemory reports whether the process should run on the in-memory store.
func (d *DatabaseConfig) UsesMemory() bool {
	return d.Driver == "memory"
}
