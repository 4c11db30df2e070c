package cala

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultAPIURL = "https://5mrdehpsojanvnvqcpeso2npiq.appsync-api.us-east-1.amazonaws.com/graphql"

const tokenExpirySlack = 2 * time.Minute

// Client talks to the Cala cloud: Cognito for the session, AppSync GraphQL
// for device state and commands.
type Client struct {
	email    string
	password string

	authURL         string
	apiURL          string
	cognitoClientID string

	httpClient *http.Client
	cache      *TokenCache

	mu     sync.Mutex
	tokens CachedTokens
}

// Option customizes a Client; used by tests to point at stub servers.
type Option func(*Client)

func WithEndpoints(authURL, apiURL string) Option {
	return func(c *Client) {
		c.authURL = authURL
		c.apiURL = apiURL
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTokenCache(cache *TokenCache) Option {
	return func(c *Client) { c.cache = cache }
}

func NewClient(email, password string, opts ...Option) *Client {
	c := &Client{
		email:           email,
		password:        password,
		authURL:         defaultAuthURL,
		apiURL:          defaultAPIURL,
		cognitoClientID: awsClientID,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cache != nil {
		if tokens, err := c.cache.Load(); err == nil {
			c.tokens = *tokens
			log.Debug().Msg("Loaded cached Cognito session")
		}
	}
	return c
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// graphql posts one GraphQL document. A 401 triggers a single token refresh
// and retry.
func (c *Client) graphql(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, &APIError{Message: "marshal request", Err: err}
	}

	resp, err := c.postGraphQL(ctx, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		if err := c.refreshTokens(ctx); err != nil {
			return nil, err
		}
		resp, err = c.postGraphQL(ctx, body)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	var res graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, &APIError{Message: "decode response", Err: err}
	}
	if len(res.Errors) > 0 {
		return nil, &APIError{Message: res.Errors[0].Message}
	}
	return res.Data, nil
}

func (c *Client) postGraphQL(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, &APIError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.tokens.IDToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Message: "request failed", Err: err}
	}
	return resp, nil
}
