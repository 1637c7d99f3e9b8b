package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"payflow/agreement"
	"payflow/auth"
	"payflow/db"
	"payflow/dispute"
	"payflow/token"
)

// escrowVault is the platform account that holds locked funds between lock
// and release.
const escrowVault = "payflow-escrow-vault"

func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ledger := token.NewLedger(pool)
	server := &Server{
		engine:         agreement.NewService(agreement.NewPGStore(pool), ledger, escrowVault),
		authService:    auth.NewService(auth.NewRepository(pool), jwtSecret),
		disputeService: dispute.NewService(dispute.NewRepository(pool)),
		accountService: ledger,
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("payflow api listening on %s", addr)
	if err := http.ListenAndServe(addr, server.routes()); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
