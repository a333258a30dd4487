package eos

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Authenticator fetches an EOS app access token via the client-credentials
// grant. The backend documents no reliable expiry for these tokens, so every
// call fetches a fresh one; the extra round trip is accepted.
type Authenticator struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	DeploymentID string
	HTTPClient   *http.Client
}

// Token returns a fresh access token.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	if a.ClientID == "" || a.ClientSecret == "" {
		return "", errors.New("missing client id/secret for EOS app token")
	}
	cc := &clientcredentials.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		TokenURL:     a.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
		EndpointParams: map[string][]string{
			"deployment_id": {a.DeploymentID},
		},
	}
	if a.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.HTTPClient)
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", errors.New("empty access_token in EOS response")
	}
	return tok.AccessToken, nil
}
