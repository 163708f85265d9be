// Command migrate applies or rolls back internal/relstore's Postgres
// schema. Run as `migrate up` or `migrate down` against the same
// database_url config used by siem-core and ioc-sync.
package main

import (
	"errors"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"netedge-siem/pkg/config"
)

func main() {
	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	cfg, err := config.Load("migrate")
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}

	m, err := migrate.New("file://internal/relstore/migrations", cfg.Database.URL)
	if err != nil {
		log.Fatal("failed to initialize migrator:", err)
	}
	defer m.Close()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	default:
		log.Fatalf("unknown migrate direction %q, want \"up\" or \"down\"", direction)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal("migration failed:", err)
	}

	log.Printf("migrate %s complete", direction)
}
