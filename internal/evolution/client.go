// Package evolution is a typed façade over the external messaging-instance
// provider's HTTP API. It is pure request/response: no state is kept here
// beyond the shared HTTP client.
package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrInstanceNotFound reports a 404 from the provider: the named instance
// does not exist remotely (anymore).
var ErrInstanceNotFound = errors.New("evolution: instance not found")

const integrationBaileys = "WHATSAPP-BAILEYS"

type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		hc: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

type Profile struct {
	Name       string `json:"name"`
	PictureURL string `json:"profilePictureUrl"`
}

type createInstanceRequest struct {
	InstanceName string `json:"instanceName"`
	QRCode       bool   `json:"qrcode"`
	Integration  string `json:"integration"`
}

type connectResponse struct {
	Base64 string `json:"base64"`
	Code   string `json:"code"`
	QRCode *struct {
		Base64 string `json:"base64"`
		Code   string `json:"code"`
	} `json:"qrcode"`
}

type connectionStateResponse struct {
	Instance struct {
		State string `json:"state"`
	} `json:"instance"`
}

// CreateInstance provisions a new named instance with QR pairing enabled.
func (c *Client) CreateInstance(ctx context.Context, name string) error {
	body := createInstanceRequest{InstanceName: name, QRCode: true, Integration: integrationBaileys}
	return c.do(ctx, http.MethodPost, "/instance/create", body, nil)
}

// PairingCode fetches a fresh pairing code for the instance. The provider
// answers with either a top-level base64 field or a nested qrcode object
// depending on version; both shapes are accepted.
func (c *Client) PairingCode(ctx context.Context, name string) (string, error) {
	var resp connectResponse
	if err := c.do(ctx, http.MethodGet, "/instance/connect/"+name, nil, &resp); err != nil {
		return "", err
	}
	code := resp.Base64
	if code == "" && resp.QRCode != nil {
		code = resp.QRCode.Base64
		if code == "" {
			code = resp.QRCode.Code
		}
	}
	if code == "" {
		code = resp.Code
	}
	if code == "" {
		return "", fmt.Errorf("evolution: connect response for %s carried no pairing code", name)
	}
	return code, nil
}

// ConnectionState returns the provider's raw state string for the instance.
func (c *Client) ConnectionState(ctx context.Context, name string) (string, error) {
	var resp connectionStateResponse
	if err := c.do(ctx, http.MethodGet, "/instance/connectionState/"+name, nil, &resp); err != nil {
		return "", err
	}
	return resp.Instance.State, nil
}

func (c *Client) FetchProfile(ctx context.Context, name string) (Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/instance/fetchProfile/"+name, nil, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (c *Client) Logout(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/instance/logout/"+name, nil, nil)
}

func (c *Client) DeleteInstance(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/instance/delete/"+name, nil, nil)
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendText relays a text message through the named instance and returns the
// provider's response body unchanged.
func (c *Client) SendText(ctx context.Context, name, number, text string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodPost, "/message/sendText/"+name, sendTextRequest{Number: number, Text: text}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("evolution: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, path)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if len(data) == 0 {
			data = []byte(resp.Status)
		}
		return fmt.Errorf("evolution: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("evolution: decode %s response: %w", path, err)
	}
	return nil
}
