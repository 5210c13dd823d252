// Command token mints a signed access token for local development and operational calls,
// such as the reasoning engine's ai-score callbacks.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gatherplan/config"
	"gatherplan/internal/adapters/auth"
	"gatherplan/internal/domain"
)

func main() {
	userID := flag.String("user", "", "subject (user ID) of the token")
	email := flag.String("email", "", "email claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" || *userID == domain.SystemActor {
		fmt.Fprintln(os.Stderr, "token: -user is required and must not be the reserved system subject")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: load config: %v\n", err)
		os.Exit(1)
	}
	tok, err := auth.NewJWTIssuer(cfg.JWTSecret).Issue(*userID, *email, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: issue: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
