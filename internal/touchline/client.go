package touchline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRequestFailed covers transport-level failures and non-200 responses.
// It is transient and drives the poll coordinator's retry logic.
var ErrRequestFailed = errors.New("device request failed")

const readValuesPath = "/cgi-bin/ILRReadValues.cgi"

// Client talks to a Roth Touchline controller's CGI register interface.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the controller at host:port. The timeout
// bounds each register read end to end.
func NewClient(host string, port int, timeout time.Duration) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// The SpiderControl header set the controller firmware expects. Requests
// without the User-Agent are answered with an empty page by some firmwares.
func setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("Accept-Language", "*")
	req.Header.Set("User-Agent", "SpiderControl/1.0 (iniNet-Solutions GmbH)")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Accept", "text/html, image/gif, image/jpeg, *; q=.2, */*; q=.2")
}

// FetchRegisters polls the controller for zoneCount zones plus the system
// status register and returns the raw register name/value map.
func (c *Client) FetchRegisters(ctx context.Context, zoneCount int) (map[string]string, error) {
	body, err := BuildRequest(zoneCount, SystemStatusRegister)
	if err != nil {
		return nil, err
	}

	raw, err := c.readValues(ctx, body)
	if err != nil {
		return nil, err
	}

	return ParseResponse(raw)
}

// Ping probes the controller with a single-zone read. Used at startup and by
// the health endpoint; the response content does not matter, only that the
// controller answers.
func (c *Client) Ping(ctx context.Context) error {
	body, err := BuildRequest(1)
	if err != nil {
		return err
	}

	_, err = c.readValues(ctx, body)
	return err
}

func (c *Client) readValues(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+readValuesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: got %d", ErrRequestFailed, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	return raw, nil
}
