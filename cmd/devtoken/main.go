package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clearmarket/clearmarket-api/internal/config"
	"github.com/clearmarket/clearmarket-api/internal/pkg/jwt"
)

// devtoken prints an access token signed with JWT_SECRET for local testing.
func main() {
	userID := flag.String("user", "", "user id (random when empty)")
	role := flag.String("role", jwt.RoleVendor, "field_rep, vendor or admin")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.Load()
	if cfg.IsProduction() {
		log.Fatal("devtoken refuses to run with ENV=production")
	}

	id := uuid.New()
	if *userID != "" {
		parsed, err := uuid.Parse(*userID)
		if err != nil {
			log.Fatalf("Invalid user id: %v", err)
		}
		id = parsed
	}

	switch *role {
	case jwt.RoleFieldRep, jwt.RoleVendor, jwt.RoleAdmin:
	default:
		log.Fatalf("Unknown role %q", *role)
	}

	token, err := jwt.NewService(cfg.JWTSecret, *ttl).GenerateAccessToken(id, *role, false)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Printf("user_id: %s\nrole:    %s\n\n%s\n", id, *role, token)
}
