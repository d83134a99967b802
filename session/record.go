package session

// TokenRecord holds the tokens issued for one user. At most one record
// exists per user id; the default-user pointer selects which record is used
// when no explicit user is given.
type TokenRecord struct {
	UserID         string `json:"user_id"`
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token"`
	ExpirationTime int64  `json:"expiration_time"`
}
