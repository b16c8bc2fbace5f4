package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"authsvc/internal/auth"
	"authsvc/internal/config"
	"authsvc/internal/db"
	"authsvc/internal/logger"
	"authsvc/internal/model"
	"authsvc/internal/repository"
	"authsvc/internal/service"
)

// SeedUserData is one entry of the seed document.
type SeedUserData struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type seedResult struct {
	created int
	existed int
	skipped int
}

func main() {
	source := flag.String("source", "seed/users.json", "path or http(s) URL of a JSON array of users")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if _, err := logger.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.L().Named("seed")

	if cfg.DBDriver == "memory" {
		log.Fatal("seeding the in-memory store has no effect; set DB_DRIVER to mysql or postgres")
	}

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := db.Migrate(gormDB); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	log.Info("loading seed users", zap.String("source", *source))
	users, err := loadSeedUsers(*source)
	if err != nil {
		log.Fatal("failed to load seed users", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := seedUsers(ctx, repository.NewUserRepository(gormDB), auth.NewBcryptHasher(cfg.BcryptCost), users, log)
	if err != nil {
		log.Fatal("failed to seed users", zap.Error(err))
	}
	log.Info("seed completed",
		zap.Int("created", res.created),
		zap.Int("existing", res.existed),
		zap.Int("skipped", res.skipped),
	)
}

// loadSeedUsers reads the seed document from a local file or an http(s) URL.
func loadSeedUsers(source string) ([]SeedUserData, error) {
	var body []byte
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Get(source)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch seed document: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("seed source returned status code: %d", resp.StatusCode)
		}
		if body, err = io.ReadAll(resp.Body); err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
	} else {
		var err error
		if body, err = os.ReadFile(source); err != nil {
			return nil, fmt.Errorf("failed to read seed file: %w", err)
		}
	}

	var users []SeedUserData
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return users, nil
}

// seedUsers creates verified accounts. Emails already registered are left
// untouched; invalid entries are skipped.
func seedUsers(ctx context.Context, repo repository.UserRepository, hasher auth.PasswordHasher, users []SeedUserData, log *zap.Logger) (seedResult, error) {
	var res seedResult
	for _, item := range users {
		email := service.NormalizeEmail(item.Email)
		name := strings.TrimSpace(item.Name)
		role := model.Role(strings.ToLower(strings.TrimSpace(item.Role)))
		if role == "" {
			role = model.RoleUser
		}
		if email == "" || name == "" || item.Password == "" || (role != model.RoleUser && role != model.RoleAdmin) {
			log.Warn("skipping invalid seed entry", zap.String("email", item.Email), zap.String("role", item.Role))
			res.skipped++
			continue
		}

		hash, err := hasher.Hash(item.Password)
		if err != nil {
			log.Warn("skipping seed entry with unusable password", zap.String("email", email), zap.Error(err))
			res.skipped++
			continue
		}

		user := &model.User{
			Name:         name,
			Email:        email,
			PasswordHash: hash,
			IsVerified:   true,
			Role:         role,
		}
		err = repo.Create(ctx, user)
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			res.existed++
		case err != nil:
			return res, fmt.Errorf("error creating user %s: %w", email, err)
		default:
			res.created++
		}
	}
	return res, nil
}
