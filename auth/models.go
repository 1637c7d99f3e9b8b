package auth

import "time"

type Role string

const (
	RoleEmployer    Role = "employer"
	RoleContributor Role = "contributor"
	RoleArbiter     Role = "arbiter"
)

// User is the domain representation of an authenticated user.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	// Address is the settlement identity the engine gates on: the
	// employer, contributor, employee, or arbiter address of an agreement.
	Address   string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Address  string `json:"address"`
	Role     Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Identity is the caller identity resolved from a verified token. The
// Address field is what the agreement engine receives as the caller.
type Identity struct {
	UserID  string
	Address string
	Role    Role
}
