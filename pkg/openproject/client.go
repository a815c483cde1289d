// Package openproject is the REST client for the target instance. Record
// writes go through the Rails console path; this client answers cheap
// questions (liveness, principal lookups) and handles the one API-only
// write, avatar uploads.
package openproject

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Principal is a user or group on the target instance.
type Principal struct {
	ID    int    `json:"id"`
	Type  string `json:"_type"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Login string `json:"login,omitempty"`
}

// Client answers read-side questions about the target instance.
type Client interface {
	// Health verifies the API answers authenticated requests.
	Health(ctx context.Context) error
	// FindPrincipalByLogin looks up a user by login. Returns nil when no
	// principal matches.
	FindPrincipalByLogin(ctx context.Context, login string) (*Principal, error)
	// CoreVersion reports the instance's core version string.
	CoreVersion(ctx context.Context) (string, error)
	// UploadUserAvatar replaces the avatar of the user with the given ID.
	UploadUserAvatar(ctx context.Context, userID int, data []byte) error
}

// APIClient implements Client over the v3 REST API with automatic retries.
type APIClient struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
}

// NewAPIClient creates a client for the instance at baseURL, authenticating
// with an API key. Certificate verification is disabled when sslVerify is
// false, for instances behind self-signed proxies.
func NewAPIClient(baseURL, apiKey string, sslVerify bool) *APIClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 10 * time.Second
	client.Logger = nil
	if !sslVerify {
		client.HTTPClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &APIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    client,
	}
}

func (c *APIClient) get(ctx context.Context, path string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &ClientError{Type: ErrorTypeRequest, Message: "building request", Err: err, Context: path}
	}
	req.SetBasicAuth("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &ClientError{Type: ErrorTypeConnection, Message: "request failed", Err: err, Context: path}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &ClientError{Type: ErrorTypeAuthentication, Message: "authentication rejected", Context: path}
	case resp.StatusCode == http.StatusNotFound:
		return &ClientError{Type: ErrorTypeNotFound, Message: "resource not found", Context: path}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &ClientError{
			Type:    ErrorTypeAPI,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			Context: string(body),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrorTypeAPI, Message: "decoding response", Err: err, Context: path}
	}
	return nil
}

func (c *APIClient) Health(ctx context.Context) error {
	return c.get(ctx, "/api/v3", nil)
}

type rootResponse struct {
	CoreVersion string `json:"coreVersion"`
}

func (c *APIClient) CoreVersion(ctx context.Context) (string, error) {
	var root rootResponse
	if err := c.get(ctx, "/api/v3", &root); err != nil {
		return "", err
	}
	return root.CoreVersion, nil
}

type principalCollection struct {
	Embedded struct {
		Elements []Principal `json:"elements"`
	} `json:"_embedded"`
}

func (c *APIClient) FindPrincipalByLogin(ctx context.Context, login string) (*Principal, error) {
	filters := fmt.Sprintf(`[{"login":{"operator":"=","values":[%q]}}]`, login)
	path := "/api/v3/principals?filters=" + url.QueryEscape(filters)

	var collection principalCollection
	if err := c.get(ctx, path, &collection); err != nil {
		return nil, err
	}
	if len(collection.Embedded.Elements) == 0 {
		return nil, nil
	}
	principal := collection.Embedded.Elements[0]
	return &principal, nil
}

// UploadUserAvatar posts the image as a multipart form to the avatars
// endpoint. There is no console path for avatars, the plugin only accepts
// uploads through the API.
func (c *APIClient) UploadUserAvatar(ctx context.Context, userID int, data []byte) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "avatar.png")
	if err != nil {
		return &ClientError{Type: ErrorTypeRequest, Message: "building avatar form", Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return &ClientError{Type: ErrorTypeRequest, Message: "writing avatar form", Err: err}
	}
	if err := form.Close(); err != nil {
		return &ClientError{Type: ErrorTypeRequest, Message: "closing avatar form", Err: err}
	}

	path := fmt.Sprintf("/api/v3/users/%d/avatar", userID)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body.Bytes())
	if err != nil {
		return &ClientError{Type: ErrorTypeRequest, Message: "building request", Err: err, Context: path}
	}
	req.SetBasicAuth("apikey", c.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return &ClientError{Type: ErrorTypeConnection, Message: "request failed", Err: err, Context: path}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &ClientError{
			Type:    ErrorTypeAPI,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			Context: string(respBody),
		}
	}
	return nil
}
