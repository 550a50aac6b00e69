package models

// ManifestJWT is the claim set of a signed batch manifest.
type ManifestJWT struct {
	Issuer    string          `json:"iss"` // optional
	Subject   string          `json:"sub"`
	IssuedAt  int64           `json:"iat"`
	ExpiresAt int64           `json:"exp"`
	Options   ManifestOptions `json:"options"`
}

// ManifestOptions overrides conversion options. Nil fields leave the
// command line value untouched.
type ManifestOptions struct {
	Retries          *int     `json:"retries,omitempty"`
	RetryDelay       *string  `json:"retryDelay,omitempty"` // time.ParseDuration syntax
	CompressionLevel *int     `json:"compressionLevel,omitempty"`
	DryRun           *bool    `json:"dryRun,omitempty"`
	Improve          *bool    `json:"improve,omitempty"`
	UpscaleFactor    *int     `json:"upscale,omitempty"`
	Format           *string  `json:"format,omitempty"`
	Publish          []string `json:"publish,omitempty"`
}
