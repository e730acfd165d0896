package drive

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/storage"
)

// tokenFile is the persisted credential shape at TOKEN_PATH. The field names
// match what the Drive connect step writes, so a token produced elsewhere
// keeps working.
type tokenFile struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri,omitempty"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes,omitempty"`
	Expiry       string   `json:"expiry,omitempty"`
}

// Connected reports whether a credential is present at the token path.
func Connected(tokenPath string) bool {
	_, err := os.Stat(tokenPath)
	return err == nil
}

// loadTokenSource builds a refreshable token source from the persisted
// credential. Refreshed access tokens are written back so the next process
// start does not need another refresh round-trip.
func loadTokenSource(ctx context.Context, tokenPath string, scopes []string) (oauth2.TokenSource, error) {
	raw, err := os.ReadFile(tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Validation("Google Drive is not connected.")
		}
		return nil, apperr.IO("could not read Drive credential", err)
	}

	var tf tokenFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return nil, apperr.IO("could not parse Drive credential", err)
	}

	tok := &oauth2.Token{
		AccessToken:  tf.Token,
		RefreshToken: tf.RefreshToken,
	}
	if tf.Expiry != "" {
		if t, err := time.Parse(time.RFC3339, tf.Expiry); err == nil {
			tok.Expiry = t
		}
	}

	conf := &oauth2.Config{
		ClientID:     tf.ClientID,
		ClientSecret: tf.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}

	return &persistingTokenSource{
		base:     conf.TokenSource(ctx, tok),
		path:     tokenPath,
		template: tf,
		last:     tok.AccessToken,
	}, nil
}

// persistingTokenSource saves the credential file whenever the underlying
// source hands out a new access token.
type persistingTokenSource struct {
	mu       sync.Mutex
	base     oauth2.TokenSource
	path     string
	template tokenFile
	last     string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		tf := p.template
		tf.Token = tok.AccessToken
		if tok.RefreshToken != "" {
			tf.RefreshToken = tok.RefreshToken
		}
		if !tok.Expiry.IsZero() {
			tf.Expiry = tok.Expiry.UTC().Format(time.RFC3339)
		}
		if data, err := json.MarshalIndent(tf, "", "  "); err == nil {
			// Persisting is best effort; a failed save only costs a refresh
			// on the next start.
			_ = storage.WriteFileAtomic(p.path, append(data, '\n'))
		}
	}
	return tok, nil
}
