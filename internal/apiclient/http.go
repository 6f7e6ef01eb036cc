package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	headerDeviceToken   = "X-Device-Token"
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerUserAgent     = "User-Agent"
	contentTypeJSON     = "application/json"
	contentTypeJPEG     = "image/jpeg"
	imageFieldName      = "image"
)

// call describes one round trip.
type call struct {
	operation   string
	method      string
	path        string
	auth        *Auth
	deviceToken string
	body        io.Reader
	contentType string
}

func (c *Client) endpoint(path string, auth *Auth) string {
	u := c.baseURL + path
	if auth != nil {
		u += "?" + url.Values{"session_id": {auth.SessionID}}.Encode()
	}
	return u
}

// do performs the request and decodes a 2xx body into result when result is
// non-nil. Non-2xx statuses become the operation's typed error.
func (c *Client) do(ctx context.Context, cl call, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, cl.method, c.endpoint(cl.path, cl.auth), cl.body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", cl.operation, err)
	}

	req.Header.Set(headerUserAgent, userAgent)
	if cl.contentType != "" {
		req.Header.Set(headerContentType, cl.contentType)
	}
	deviceToken := cl.deviceToken
	if cl.auth != nil {
		deviceToken = cl.auth.DeviceToken
		if cl.auth.AccessToken != "" {
			req.Header.Set(headerAuthorization, "Bearer "+cl.auth.AccessToken)
		}
	}
	if deviceToken != "" {
		req.Header.Set(headerDeviceToken, deviceToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("operation", cl.operation), zap.Error(err))
		return fmt.Errorf("%s: request failed: %w", cl.operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response body: %w", cl.operation, err)
	}

	c.logger.Debug("request completed",
		zap.String("operation", cl.operation),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(cl.operation, resp.StatusCode, respBody)
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return &MalformedResponseError{Operation: cl.operation, Err: err}
	}
	if err := c.validateResult(result); err != nil {
		return &MalformedResponseError{Operation: cl.operation, Err: err}
	}
	return nil
}

func (c *Client) validateResult(result interface{}) error {
	switch v := result.(type) {
	case *[]ProgressEntry:
		if *v == nil {
			return fmt.Errorf("expected a list")
		}
		for i := range *v {
			if err := c.validate.Struct(&(*v)[i]); err != nil {
				return err
			}
		}
		return nil
	default:
		return c.validate.Struct(result)
	}
}

func jsonBody(operation string, v interface{}) (io.Reader, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal request body: %w", operation, err)
	}
	return bytes.NewReader(body), nil
}

// multipartImage builds a form with a single JPEG part under the image field.
func multipartImage(filename string, image io.Reader) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, imageFieldName, filename))
	header.Set(headerContentType, contentTypeJPEG)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
