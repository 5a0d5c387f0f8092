// One-shot purge of expired revocation records and dead sessions, for
// deployments that prefer an external scheduler (cron) over the in-process
// sweeper. Running it alongside the sweeper is safe: the deletes are
// idempotent.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load()
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	res1, err := db.Exec(`DELETE FROM revoked_tokens WHERE expires_at < NOW()`)
	if err != nil {
		log.Fatalf("purge revoked tokens: %v", err)
	}
	n1, _ := res1.RowsAffected()

	// sessions that are revoked or past their absolute cap are dead weight
	res2, err := db.Exec(`DELETE FROM sessions WHERE revoked = true OR expires_at < NOW()`)
	if err != nil {
		log.Fatalf("purge sessions: %v", err)
	}
	n2, _ := res2.RowsAffected()

	fmt.Printf("purge done: revocation records removed=%d, sessions removed=%d\n", n1, n2)
}
