package models

// Credentials used to log in. Never persisted.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Registration form as the server expects it
type RegisterRequest struct {
	DNI       string `json:"dni" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Surname   string `json:"surname" validate:"required"`
	BirthDate string `json:"birth_date" validate:"required,datetime=2006-01-02"`
	Phone     string `json:"phone" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
}

// Authenticated principal
// Role is an open set: unknown roles are valid and must fall back to defaults wherever used
type UserProfile struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	DNI    string `json:"dni"`
	Role   string `json:"role"`
	RoleID *int64 `json:"role_id,omitempty"`
}
