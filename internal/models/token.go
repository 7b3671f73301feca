package models

const TokenTypeBearer = "Bearer"

// Token pair issued by the auth server on login or register
// Access may be empty while Refresh is set: that means "renew on next request"
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// Session aggregate as seen by readers of the store
type Session struct {
	Profile *UserProfile
	Tokens  *TokenPair
}
