package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// AuthCacheTTL bounds how long a successful password check is remembered.
const AuthCacheTTL = 15 * time.Minute

func authKey(email, password string) string {
	sum := sha256.Sum256([]byte(password))
	return "auth:" + strings.ToLower(email) + ":" + hex.EncodeToString(sum[:])
}

// PasswordVerified reports whether this email/password pair was verified recently,
// which lets login skip the argon2 comparison.
func (c *Cache) PasswordVerified(ctx context.Context, email, password string) bool {
	result, err := c.rdb.Get(ctx, authKey(email, password)).Result()
	return err == nil && result == "valid"
}

func (c *Cache) RememberPassword(ctx context.Context, email, password string) {
	c.rdb.Set(ctx, authKey(email, password), "valid", AuthCacheTTL)
}

// InvalidateAuth forgets every cached verification for an email.
func (c *Cache) InvalidateAuth(ctx context.Context, email string) error {
	return c.DeletePattern(ctx, "auth:"+strings.ToLower(email)+":*")
}
