// Command devtoken prints a signed identity token for local testing.
// Tokens are normally issued by the external identity provider; the
// server only verifies them.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/mmynk/studygroup/internal/auth"
	"github.com/mmynk/studygroup/internal/config"
	"github.com/mmynk/studygroup/internal/models"
)

func main() {
	uid := pflag.String("uid", "", "user id (required)")
	name := pflag.String("name", "", "display name")
	email := pflag.String("email", "", "email address")
	ttl := pflag.Duration("ttl", 24*time.Hour, "token lifetime")
	envFile := pflag.String("env-file", ".env", "path to a .env file with JWT_SECRET")
	pflag.Parse()

	if *uid == "" {
		fmt.Fprintln(os.Stderr, "devtoken: --uid is required")
		pflag.Usage()
		os.Exit(2)
	}

	// A missing .env file is fine; JWT_SECRET may come from the
	// environment or fall back to the development default.
	_ = godotenv.Load(*envFile)
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = config.Default().JWTSecret
	}

	token, err := auth.NewJWTManager(secret, *ttl).Generate(models.Identity{UID: *uid, DisplayName: *name, Email: *email})
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
