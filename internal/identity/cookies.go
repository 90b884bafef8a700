package identity

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

type sessionCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// exportCookies returns the jar cookies for endpoint as JSON, or "" when the
// client has no jar or no cookies.
func (c *Client) exportCookies(endpoint string) (string, error) {
	if c.httpClient.Jar == nil {
		return "", nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	jarred := c.httpClient.Jar.Cookies(u)
	if len(jarred) == 0 {
		return "", nil
	}
	out := make([]sessionCookie, 0, len(jarred))
	for _, ck := range jarred {
		out = append(out, sessionCookie{Name: ck.Name, Value: ck.Value})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// restoreCookies puts cookies captured by exportCookies back into the jar.
func (c *Client) restoreCookies(endpoint, encoded string) error {
	if encoded == "" || c.httpClient.Jar == nil {
		return nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	var stored []sessionCookie
	if err := json.Unmarshal([]byte(encoded), &stored); err != nil {
		return fmt.Errorf("failed to decode session cookies: %w", err)
	}
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, sc := range stored {
		cookies = append(cookies, &http.Cookie{Name: sc.Name, Value: sc.Value, Path: "/"})
	}
	c.httpClient.Jar.SetCookies(u, cookies)
	return nil
}
