package domain

import "time"

// Code is one backup recovery code. Only the bcrypt hash is stored; the
// plaintext exists once, in the generation response.
type Code struct {
	ID          string
	UserID      string
	CodeHash    string
	Position    int
	GeneratedAt time.Time
	UsedAt      *time.Time
}

// Used reports whether the code has been consumed.
func (c *Code) Used() bool { return c.UsedAt != nil }
