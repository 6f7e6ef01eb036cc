// Package apiclient is a typed wrapper over the skin-appearance analysis
// service's HTTP surface.
//
// Every method is a single request/response round trip. The client does not
// retry, cache or queue; callers decide what to do with a failure.
package apiclient

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	userAgent = "skinscan-go/1.0"
)

// Client talks to one analysis service deployment.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	validate   *validator.Validate
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a client for the service rooted at baseURL.
//
//	client := apiclient.NewClient("https://api.example.com", logger)
//	sess, err := client.CreateSession(ctx, deviceToken)
func NewClient(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:   logger.Named("apiclient"),
		validate: validator.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}
