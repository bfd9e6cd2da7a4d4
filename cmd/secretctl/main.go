// Command secretctl seals provider API keys with the gateway master key and
// stores them in the encrypted secret record the gateway reads.
//
//	secretctl genkey
//	secretctl put -provider deepseek < key.txt
//	secretctl list
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aman-churiwal/ai-gateway/internal/config"
	"github.com/aman-churiwal/ai-gateway/internal/credential"
	"github.com/aman-churiwal/ai-gateway/internal/repository"
	"github.com/aman-churiwal/ai-gateway/internal/storage"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "secretctl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: secretctl genkey | put -provider <id> | list")
	}

	switch args[0] {
	case "genkey":
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		fmt.Println(base64.StdEncoding.EncodeToString(key))
		return nil
	case "put":
		return put(args[1:])
	case "list":
		return list(args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func open(configPath string) (*config.Config, *repository.SecretRepository, func(), error) {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := storage.NewPostgres(cfg.Database.DSN, 1, 2)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.AutoMigrate(); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}

	return cfg, repository.NewSecretRepository(db), func() { _ = db.Close() }, nil
}

func put(args []string) error {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	configPath := fs.String("config", envOr("GATEWAY_CONFIG", "config.json"), "gateway config file")
	providerID := fs.String("provider", "", "provider id as listed in the config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *providerID == "" {
		return errors.New("-provider is required")
	}

	secret, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && secret == "" {
		return fmt.Errorf("read secret from stdin: %w", err)
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return errors.New("secret on stdin is empty")
	}

	cfg, repo, closeDB, err := open(*configPath)
	if err != nil {
		return err
	}
	defer closeDB()

	if !inConfig(cfg, *providerID) {
		return fmt.Errorf("provider %q is not in %s", *providerID, *configPath)
	}

	key, err := cfg.Credentials.DecodedMasterKey()
	if err != nil {
		return err
	}
	sealed, err := credential.Seal(key, secret)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.PutField(ctx, cfg.Credentials.RecordID, *providerID, sealed); err != nil {
		return err
	}

	fmt.Printf("stored secret for %s in record %s; call POST /admin/credentials/invalidate to reload\n", *providerID, cfg.Credentials.RecordID)
	return nil
}

func list(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", envOr("GATEWAY_CONFIG", "config.json"), "gateway config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, repo, closeDB, err := open(*configPath)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fields, err := repo.Get(ctx, cfg.Credentials.RecordID)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(fields))
	for id := range fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, p := range cfg.Providers {
		_, ok := fields[p.ID]
		fmt.Printf("%-16s %-10s sealed=%t\n", p.ID, p.Kind, ok)
	}
	for _, id := range ids {
		if !inConfig(cfg, id) {
			fmt.Printf("%-16s %-10s sealed=true (not in config)\n", id, "-")
		}
	}
	return nil
}

func inConfig(cfg *config.Config, id string) bool {
	for _, p := range cfg.Providers {
		if p.ID == id {
			return true
		}
	}
	return false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
