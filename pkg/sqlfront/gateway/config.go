package gateway

// Config configures the HTTP API gateway.
type Config struct {
	// Address to listen on (default: "127.0.0.1:8087")
	Address string `yaml:"address"`

	// AuthToken is a static bearer token. Empty disables token auth.
	AuthToken string `yaml:"auth_token"`

	// JWTSecret enables HS256 bearer JWTs instead of the static token.
	JWTSecret string `yaml:"jwt_secret"`

	// JWTIssuer, when set, must match the token's iss claim.
	JWTIssuer string `yaml:"jwt_issuer"`

	// CORSOrigins lists allowed origins ("*" allows any).
	CORSOrigins []string `yaml:"cors_origins"`

	// RateLimit is requests per second across all clients. Zero disables.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the limiter bucket size (default: 2x RateLimit)
	RateBurst int `yaml:"rate_burst"`
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{
		Address:   "127.0.0.1:8087",
		RateLimit: 20,
		RateBurst: 40,
	}
}

// Effective returns a copy with defaults filled in.
func (c Config) Effective() Config {
	out := c
	if out.Address == "" {
		out.Address = DefaultConfig().Address
	}
	if out.RateLimit > 0 && out.RateBurst <= 0 {
		out.RateBurst = int(out.RateLimit * 2)
		if out.RateBurst < 1 {
			out.RateBurst = 1
		}
	}
	return out
}

// authEnabled reports whether requests to /api need credentials.
func (c Config) authEnabled() bool {
	return c.AuthToken != "" || c.JWTSecret != ""
}
