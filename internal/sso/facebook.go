package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const facebookGraphURL = "https://graph.facebook.com"

type FacebookVerifier struct {
	h         *http.Client
	appID     string
	appSecret string
}

func NewFacebookVerifier(h *http.Client, appID, appSecret string) *FacebookVerifier {
	if h == nil {
		h = &http.Client{
			Timeout: 5 * time.Second,
		}
	}
	return &FacebookVerifier{h: h, appID: appID, appSecret: appSecret}
}

type FacebookTokenValidation struct {
	Data struct {
		AppID     string `json:"app_id"`
		IsValid   bool   `json:"is_valid"`
		UserID    string `json:"user_id"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"data"`
}

type FacebookUserDetails struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ValidateToken checks the user token against the debug_token endpoint using
// the app credentials.
func (f *FacebookVerifier) ValidateToken(ctx context.Context, inputToken string) (*FacebookTokenValidation, error) {
	u, _ := url.Parse(facebookGraphURL + "/debug_token")
	q := u.Query()
	q.Set("input_token", inputToken)
	q.Set("access_token", fmt.Sprintf("%s|%s", f.appID, f.appSecret))
	u.RawQuery = q.Encode()

	var validation FacebookTokenValidation
	if err := f.getJSON(ctx, u.String(), &validation); err != nil {
		return nil, err
	}
	if !validation.Data.IsValid || validation.Data.AppID != f.appID {
		return nil, fmt.Errorf("facebook token is not valid for this app")
	}
	return &validation, nil
}

// UserDetails fetches the verified profile for a validated token.
func (f *FacebookVerifier) UserDetails(ctx context.Context, accessToken string) (*FacebookUserDetails, error) {
	u, _ := url.Parse(facebookGraphURL + "/me")
	q := u.Query()
	q.Set("fields", "id,name,email")
	q.Set("access_token", accessToken)
	u.RawQuery = q.Encode()

	var details FacebookUserDetails
	if err := f.getJSON(ctx, u.String(), &details); err != nil {
		return nil, err
	}
	if details.Email == "" {
		return nil, fmt.Errorf("facebook profile has no email")
	}
	return &details, nil
}

func (f *FacebookVerifier) getJSON(ctx context.Context, ustr string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", ustr, nil)
	if err != nil {
		return fmt.Errorf("error creating graph request: %w", err)
	}

	resp, err := f.h.Do(req)
	if err != nil {
		return fmt.Errorf("could not get response from facebook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("received non-200 response from facebook. code was %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode graph response: %w", err)
	}
	return nil
}
