package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/campusbridge/portalguard/session"
	"github.com/redis/go-redis/v9"
)

var (
	errAccountExists   = errors.New("account already exists")
	errAccountNotFound = errors.New("account not found")
)

// account is a registered portal user as kept in Redis.
type account struct {
	User         session.UserRecord `json:"user"`
	PasswordHash string             `json:"password_hash"`
}

// directory stores accounts as JSON strings under <prefix>:account:<email>.
type directory struct {
	redis  redis.UniversalClient
	prefix string
}

func newDirectory(client redis.UniversalClient, prefix string) *directory {
	if prefix == "" {
		prefix = "pg"
	}
	return &directory{redis: client, prefix: prefix}
}

func (d *directory) key(email string) string {
	return d.prefix + ":account:" + normalizeEmail(email)
}

func (d *directory) Create(ctx context.Context, a account) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	ok, err := d.redis.SetNX(ctx, d.key(a.User.Email), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if !ok {
		return errAccountExists
	}
	return nil
}

func (d *directory) Get(ctx context.Context, email string) (account, error) {
	raw, err := d.redis.Get(ctx, d.key(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return account{}, errAccountNotFound
	}
	if err != nil {
		return account{}, fmt.Errorf("load account: %w", err)
	}

	var a account
	if err := json.Unmarshal(raw, &a); err != nil {
		return account{}, fmt.Errorf("decode account: %w", err)
	}
	return a, nil
}

// UpdateHash replaces the stored password hash, keeping the record.
func (d *directory) UpdateHash(ctx context.Context, email, hash string) error {
	a, err := d.Get(ctx, email)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return d.redis.Set(ctx, d.key(email), raw, redis.KeepTTL).Err()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
