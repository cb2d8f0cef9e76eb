// Package gmail polls a user's mailbox for bank notification emails and
// feeds them into the ingestion engine.
package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/finsift/finsift/internal/common"
)

// OAuthConfig holds the credentials for the Gmail OAuth2 flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenFile    string
}

// NewService builds a read-only Gmail client from a stored token. The
// token must already exist; interactive authorization is a separate CLI
// concern.
func NewService(ctx context.Context, cfg OAuthConfig) (*gmailapi.Service, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: gmail client id and secret", common.ErrMissingConfig)
	}

	token, err := LoadToken(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load gmail token (run auth first): %w", err)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmailapi.GmailReadonlyScope},
	}

	// The token source refreshes transparently; persist refreshed tokens
	// so the next run does not need to re-authorize.
	source := oauthConfig.TokenSource(ctx, token)
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(&savingTokenSource{
		inner: source,
		file:  cfg.TokenFile,
		last:  token.AccessToken,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return svc, nil
}

type savingTokenSource struct {
	inner oauth2.TokenSource
	file  string
	last  string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.inner.Token()
	if err != nil {
		return nil, err
	}
	if s.file != "" && token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := SaveToken(s.file, token); err != nil {
			common.LogWarn("failed to persist refreshed gmail token", common.Fields{"error": err})
		}
	}
	return token, nil
}

// Authorize runs the interactive OAuth2 flow: it starts a localhost
// callback server, prints the consent URL, exchanges the returned code,
// and saves the token for later runs.
func Authorize(ctx context.Context, cfg OAuthConfig) (*oauth2.Token, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: gmail client id and secret", common.ErrMissingConfig)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://localhost:8080/callback",
		Scopes:       []string{gmailapi.GmailReadonlyScope},
	}

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errorChan <- fmt.Errorf("no authorization code received")
			_, _ = fmt.Fprint(w, "<html><body><h1>Authentication Failed</h1><p>No authorization code received. Please try again.</p></body></html>")
			return
		}
		codeChan <- code
		_, _ = fmt.Fprint(w, "<html><body><h1>Authentication Successful!</h1><p>You can close this window and return to the terminal.</p></body></html>")
	})
	server := &http.Server{Addr: ":8080", Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errorChan <- fmt.Errorf("failed to start callback server: %w", err)
		}
	}()

	authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	common.LogInfo("gmail authentication required", common.Fields{"url": authURL})

	var authCode string
	select {
	case authCode = <-codeChan:
	case err := <-errorChan:
		_ = server.Shutdown(ctx)
		return nil, err
	case <-ctx.Done():
		_ = server.Shutdown(ctx)
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		_ = server.Shutdown(ctx)
		return nil, fmt.Errorf("authentication timeout - no response received within 5 minutes")
	}
	_ = server.Shutdown(ctx)

	token, err := oauthConfig.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if cfg.TokenFile != "" {
		if err := SaveToken(cfg.TokenFile, token); err != nil {
			common.LogWarn("failed to save gmail token", common.Fields{"file": cfg.TokenFile, "error": err})
		}
	}
	return token, nil
}

// LoadToken reads an OAuth token from file.
func LoadToken(tokenFile string) (*oauth2.Token, error) {
	f, err := os.Open(tokenFile) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(token)
	return token, err
}

// SaveToken writes an OAuth token to file with restricted permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}
