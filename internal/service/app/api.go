package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

type (
	credentials struct {
		Email    string `json:"email"`
		Name     string `json:"name,omitempty"`
		Password string `json:"password"`
	}

	tokenResponse struct {
		AccessToken string `json:"access_token"`
	}
)

// Login exchanges credentials for an access token at the relay.
func Login(host, email, password string) (string, error) {
	resp, err := postJSON(host, "/login", credentials{Email: email, Password: password})
	if err != nil {
		return "", err
	}

	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login rejected: %s", resp.Status)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	return tr.AccessToken, nil
}

// Signup registers a new account at the relay.
func Signup(host, email, name, password string) error {
	resp, err := postJSON(host, "/signup", credentials{Email: email, Name: name, Password: password})
	if err != nil {
		return err
	}

	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("signup rejected: %s", resp.Status)
	}
	return nil
}

func postJSON(host, path string, body any) (*http.Response, error) {
	u := url.URL{
		Scheme: "http",
		Host:   host,
		Path:   path,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return http.Post(u.String(), "application/json", bytes.NewReader(payload))
}
