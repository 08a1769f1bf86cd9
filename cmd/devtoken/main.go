// Command devtoken mints a chat credential for local testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Vasu1712/legalwise-backend/internal/auth"
	"github.com/Vasu1712/legalwise-backend/internal/config"
	"github.com/Vasu1712/legalwise-backend/internal/models"
)

func main() {
	id := flag.String("id", "", "user id (required)")
	role := flag.String("role", "client", "client, lawyer or admin")
	name := flag.String("name", "", "display name")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *id == "" {
		fmt.Fprintln(os.Stderr, "Usage: devtoken -id <user id> [-role client|lawyer|admin] [-name <name>] [-ttl 24h]")
		os.Exit(2)
	}
	r, err := models.ParseRole(*role)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	token, err := auth.NewJWTVerifier(cfg.JWTSecret).Issue(models.User{ID: *id, Role: r, Name: *name}, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
