package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"unitattendance/internal/auth"
	"unitattendance/internal/config"
)

// token mints a bearer token for local testing, e.g.
//
//	go run ./cmd/token -sub BIT/001/2024 -role student
func main() {
	cfg := config.Load()
	sub := flag.String("sub", "", "subject: student ID for students, staff ID otherwise")
	role := flag.String("role", auth.RoleStudent, "student, lecturer or hod")
	ttl := flag.Duration("ttl", cfg.AccessTTL, "token lifetime")
	flag.Parse()

	tok, err := auth.Issue(*sub, *role, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Fprintln(os.Stdout, tok.AccessToken)
}
