package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	appmigrations "github.com/wolfman30/crm-voice-sync/migrations"
)

func main() {
	_ = godotenv.Load()

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("db driver: %v", err)
	}

	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		log.Fatalf("source driver: %v", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	defer func() { _, _ = m.Close() }()

	cmd, arg := parseArgs(os.Args[1:])
	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		// Without a step count "down" only reverts the latest migration.
		steps := 1
		if arg != "" {
			if steps, err = strconv.Atoi(arg); err != nil || steps <= 0 {
				log.Fatalf("invalid step count %q", arg)
			}
		}
		err = m.Steps(-steps)
	case "force":
		version, convErr := strconv.Atoi(arg)
		if convErr != nil {
			log.Fatalf("invalid version: %v", convErr)
		}
		if err := m.Force(version); err != nil {
			log.Fatalf("force version: %v", err)
		}
		fmt.Printf("forced version to %d\n", version)
		return
	default:
		log.Fatalf("unknown command %q (want up, down [n], force <version>)", cmd)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migrate %s: %v", cmd, err)
	}

	fmt.Println("migrations complete")
}

func parseArgs(args []string) (cmd, arg string) {
	if len(args) == 0 {
		return "up", ""
	}
	cmd = strings.ToLower(strings.TrimSpace(args[0]))
	if len(args) > 1 {
		arg = strings.TrimSpace(args[1])
	}
	return cmd, arg
}
