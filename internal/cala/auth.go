package cala

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"cala2mqtt/internal/metrics"
)

// Cognito app client discovered from the vendor's mobile app bundle.
const (
	awsRegion      = "us-east-1"
	awsClientID    = "5d8a356c1c297bfad33cb108cd"
	defaultAuthURL = "https://cognito-idp.us-east-1.amazonaws.com/"

	initiateAuthTarget = "AWSCognitoIdentityProviderService.InitiateAuth"
)

type initiateAuthRequest struct {
	AuthFlow       string            `json:"AuthFlow"`
	ClientID       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

type initiateAuthResponse struct {
	AuthenticationResult struct {
		AccessToken  string `json:"AccessToken"`
		IdToken      string `json:"IdToken"`
		RefreshToken string `json:"RefreshToken"`
		ExpiresIn    int    `json:"ExpiresIn"`
	} `json:"AuthenticationResult"`
	Type    string `json:"__type"`
	Message string `json:"message"`
}

// authenticate performs the full credential exchange. Caller holds c.mu.
func (c *Client) authenticate(ctx context.Context) error {
	res, err := c.initiateAuth(ctx, "USER_PASSWORD_AUTH", map[string]string{
		"USERNAME": c.email,
		"PASSWORD": c.password,
	})
	if err != nil {
		return err
	}

	c.tokens = CachedTokens{
		IDToken:      res.AuthenticationResult.IdToken,
		AccessToken:  res.AuthenticationResult.AccessToken,
		RefreshToken: res.AuthenticationResult.RefreshToken,
		Expiry:       time.Now().Add(time.Duration(res.AuthenticationResult.ExpiresIn) * time.Second),
	}
	c.persistTokens()

	metrics.Count("auth.login", 1)
	log.Debug().Msg("Authenticated with Cognito")
	return nil
}

// refreshTokens renews the session with the refresh token, falling back to
// a full re-authentication when renewal fails. Caller holds c.mu.
func (c *Client) refreshTokens(ctx context.Context) error {
	if c.tokens.RefreshToken == "" {
		return c.authenticate(ctx)
	}

	res, err := c.initiateAuth(ctx, "REFRESH_TOKEN_AUTH", map[string]string{
		"REFRESH_TOKEN": c.tokens.RefreshToken,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Token refresh failed, re-authenticating")
		return c.authenticate(ctx)
	}

	c.tokens.IDToken = res.AuthenticationResult.IdToken
	c.tokens.AccessToken = res.AuthenticationResult.AccessToken
	c.tokens.Expiry = time.Now().Add(time.Duration(res.AuthenticationResult.ExpiresIn) * time.Second)
	c.persistTokens()

	metrics.Count("auth.refresh", 1)
	log.Debug().Msg("Refreshed Cognito tokens")
	return nil
}

// ensureAuthenticated makes sure a usable id token is present. Caller holds
// c.mu.
func (c *Client) ensureAuthenticated(ctx context.Context) error {
	if c.tokens.IDToken == "" {
		return c.authenticate(ctx)
	}
	if time.Now().After(c.tokens.Expiry.Add(-tokenExpirySlack)) {
		return c.refreshTokens(ctx)
	}
	return nil
}

func (c *Client) initiateAuth(ctx context.Context, flow string, params map[string]string) (*initiateAuthResponse, error) {
	body, err := json.Marshal(initiateAuthRequest{
		AuthFlow:       flow,
		ClientID:       c.cognitoClientID,
		AuthParameters: params,
	})
	if err != nil {
		return nil, &AuthError{Message: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, bytes.NewReader(body))
	if err != nil {
		return nil, &AuthError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", initiateAuthTarget)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Message: "cognito request failed", Err: err}
	}
	defer resp.Body.Close()

	var res initiateAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, &AuthError{Message: "decode response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{Message: fmt.Sprintf("%s (%s): %s", res.Type, flow, res.Message)}
	}
	if res.AuthenticationResult.IdToken == "" {
		return nil, &AuthError{Message: "no tokens in response"}
	}
	return &res, nil
}

func (c *Client) persistTokens() {
	if c.cache == nil {
		return
	}
	if err := c.cache.Save(&c.tokens); err != nil {
		log.Warn().Err(err).Msg("Failed to persist token cache")
	}
}
