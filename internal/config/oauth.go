package config

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// OAuthConfig holds the provider configs that are fully configured.
// A nil provider is disabled.
type OAuthConfig struct {
	Google  *oauth2.Config
	Discord *oauth2.Config
}

var discordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/api/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

// OAuthProviders builds oauth2 configs for every provider with credentials.
// Callbacks land on {OAUTH_REDIRECT_URL}/api/v1/auth/oauth/{provider}/callback.
func (c *Config) OAuthProviders() *OAuthConfig {
	o := c.OAuth
	redirect := o.RedirectURL
	if redirect == "" {
		redirect = c.APIBaseURL
	}

	out := &OAuthConfig{}
	if o.GoogleClientID != "" && o.GoogleClientSecret != "" {
		out.Google = &oauth2.Config{
			ClientID:     o.GoogleClientID,
			ClientSecret: o.GoogleClientSecret,
			RedirectURL:  redirect + "/api/v1/auth/oauth/google/callback",
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}
	}
	if o.DiscordClientID != "" && o.DiscordClientSecret != "" {
		out.Discord = &oauth2.Config{
			ClientID:     o.DiscordClientID,
			ClientSecret: o.DiscordClientSecret,
			RedirectURL:  redirect + "/api/v1/auth/oauth/discord/callback",
			Scopes:       []string{"identify", "email"},
			Endpoint:     discordEndpoint,
		}
	}
	return out
}

// Provider returns the config for a provider name, or nil.
func (o *OAuthConfig) Provider(name string) *oauth2.Config {
	switch name {
	case "google":
		return o.Google
	case "discord":
		return o.Discord
	}
	return nil
}
