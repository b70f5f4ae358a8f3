package domain

// User is an account document. Password holds the bcrypt hash, never
// the plaintext. RefreshToken is the single currently valid refresh
// token; reissuing invalidates the previous one.
type User struct {
	Meta

	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refreshToken"`
}
