package cloud

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const graphScope = "https://graph.microsoft.com/.default"

// Credentials authenticate the Graph backend. Either AccessToken is set, or
// TenantID, ClientID and ClientSecret form an app registration.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	AccessToken  string
}

// HTTPClient returns an http.Client that authorizes every request to Graph.
// Client credential tokens are fetched and refreshed on demand.
func (c Credentials) HTTPClient(ctx context.Context) (*http.Client, error) {
	if c.AccessToken != "" {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.AccessToken})), nil
	}
	if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
		return nil, fmt.Errorf("graph credentials incomplete: tenant_id, client_id and client_secret are required")
	}

	cfg := clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     "https://login.microsoftonline.com/" + c.TenantID + "/oauth2/v2.0/token",
		Scopes:       []string{graphScope},
	}
	return cfg.Client(ctx), nil
}
