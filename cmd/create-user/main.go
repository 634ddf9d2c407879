package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	kind := flag.String("kind", "admin", "account kind: admin or student")
	flag.Parse()

	if *kind != "admin" && *kind != "student" {
		fmt.Println("Error: -kind must be admin or student")
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("=== Create New %s ===\n", strings.ToUpper((*kind)[:1])+(*kind)[1:])

	name := prompt(reader, "Enter Name: ")
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	loginLabel := "Email"
	if *kind == "student" {
		loginLabel = "NISN"
	}
	login := prompt(reader, "Enter "+loginLabel+": ")
	if login == "" {
		fmt.Printf("Error: %s is required\n", loginLabel)
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println() // Newline after password input
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	switch *kind {
	case "admin":
		a := &model.Admin{Email: login, Name: name, PasswordHash: string(hashedPassword)}
		if err := repository.NewAdminRepository(pool).Create(ctx, a); err != nil {
			log.Fatal().Err(err).Msg("Failed to create admin")
		}
		fmt.Printf("\nSuccess! Admin '%s' (%s) created with ID: %d\n", a.Name, a.Email, a.ID)
	case "student":
		s := &model.Student{NISN: login, Name: name, PasswordHash: string(hashedPassword)}
		if err := repository.NewStudentRepository(pool).Create(ctx, s); err != nil {
			log.Fatal().Err(err).Msg("Failed to create student")
		}
		fmt.Printf("\nSuccess! Student '%s' (%s) created with ID: %d\n", s.Name, s.NISN, s.ID)
	}
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label)
	v, _ := r.ReadString('\n')
	return strings.TrimSpace(v)
}
