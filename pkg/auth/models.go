package auth

// HttpResp represents the standard HTTP response structure.
type HttpResp struct {
	Status  string      `json:"status" example:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message" example:"Operation completed successfully"`
}

// TokenResponse is printed when minting an admin token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
