package main

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"raceroom/internal/config"

	_ "github.com/lib/pq"
)

// Applies every .sql file under migrations/ in lexical order. AutoMigrate
// covers schema drift in development; this runner is for environments where
// the schema is managed explicitly.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database successfully")

	entries, err := os.ReadDir("migrations")
	if err != nil {
		log.Fatalf("Failed to read migrations directory: %v", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		migrationSQL, err := os.ReadFile(filepath.Join("migrations", name))
		if err != nil {
			log.Fatalf("Failed to read migration file %s: %v", name, err)
		}

		log.Printf("Applying migration: %s", name)
		if _, err := db.Exec(string(migrationSQL)); err != nil {
			log.Fatalf("Failed to apply migration %s: %v", name, err)
		}
	}

	log.Println("All migrations applied successfully")
}
