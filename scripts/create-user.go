// Package main is a development utility for seeding a staff account in a local
// database without going through the admin seeding in cmd/server. It prints a
// random password, its bcrypt hash, and a ready-to-run SQL INSERT. Do not use
// generated accounts in production.
//
//	go run ./scripts/create-user.go -email editor@radio.local -role editor
package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/radiowave/station-backend/internal/auth"
	"github.com/radiowave/station-backend/internal/db/models"
)

func main() {
	email := flag.String("email", "admin@radio.local", "account email")
	name := flag.String("name", "Dev", "first name")
	role := flag.String("role", models.RoleAdmin, "admin or editor")
	flag.Parse()

	if *role != models.RoleAdmin && *role != models.RoleEditor {
		log.Fatalf("invalid role %q", *role)
	}

	randomBytes := make([]byte, 18)
	if _, err := rand.Read(randomBytes); err != nil {
		log.Fatal(err)
	}
	password := base64.RawURLEncoding.EncodeToString(randomBytes)

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatal(err)
	}

	quote := func(s string) string { return strings.ReplaceAll(s, "'", "''") }

	fmt.Println("==========================================================")
	fmt.Println("Staff Account Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nEmail:    %s\n", strings.ToLower(*email))
	fmt.Printf("Password: %s\n", password)
	fmt.Printf("Role:     %s\n", *role)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Insert:")
	fmt.Println("==========================================================")
	fmt.Printf(`
INSERT INTO users (name, email, password_hash, role)
VALUES ('%s', '%s', '%s', '%s');
`, quote(*name), quote(strings.ToLower(*email)), hash, *role)
	fmt.Println("\n==========================================================")
	fmt.Println("Login: POST /api/v1/auth/login")
	fmt.Println("==========================================================")
}
