package models

import "time"

// User is the profile projection kept alongside the session token.
type User struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Patronymic string `json:"patronymic"`
	Email      string `json:"email"`
}

// Profile is the GET /me payload as the backend returns it.
type Profile struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Patronymic string    `json:"patronymic"`
	BirthDate  string    `json:"birthdate"` // YYYY-MM-DD
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ToUser projects the backend profile into the session's user shape.
func (p Profile) ToUser() User {
	return User{
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Patronymic: p.Patronymic,
		Email:      p.Email,
	}
}
