// Command migrate applies or rolls back the catalog/opportunity schema
// using golang-migrate, the same library and up/down flag shape the
// teacher's db/migrate.go tool uses.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/flashtri/arbengine/internal/configstore"
)

func main() {
	upFlag := flag.Bool("up", false, "migrate up")
	downFlag := flag.Bool("down", false, "migrate down")
	versionFlag := flag.Int("version", 0, "migrate to a specific version")
	configFlag := flag.String("config", "", "path to config file (defaults to ./configs/config.yaml)")
	sourceFlag := flag.String("source", "file://migrations", "migration source URL")
	flag.Parse()

	cfg, err := configstore.LoadAppConfig(*configFlag)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
		cfg.Database.SSLMode,
	)

	m, err := migrate.New(*sourceFlag, dbURL)
	if err != nil {
		log.Fatalf("create migrate instance: %v", err)
	}
	defer m.Close()

	switch {
	case *upFlag:
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("migrate up: %v", err)
		}
		log.Println("migration up completed")
	case *downFlag:
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("migrate down: %v", err)
		}
		log.Println("migration down completed")
	case *versionFlag > 0:
		if err := m.Migrate(uint(*versionFlag)); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("migrate to version %d: %v", *versionFlag, err)
		}
		log.Printf("migrated to version %d", *versionFlag)
	default:
		log.Println("no migration action specified; use -up, -down, or -version")
		os.Exit(1)
	}
}
