package providers

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const vertexAIScope = "https://www.googleapis.com/auth/cloud-platform"

// serviceAccountKey is the subset of a Google service-account JSON key file
// needed to mint an OAuth2 token via the JWT bearer grant.
type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// vertexTokenSource builds an oauth2.TokenSource that self-signs a fresh
// service-account JWT assertion and exchanges it for a bearer token,
// avoiding a dependency on Application Default Credentials discovery.
// oauth2.ReuseTokenSource caches the result until shortly before it expires.
func vertexTokenSource(ctx context.Context, serviceAccountJSON []byte) (oauth2.TokenSource, error) {
	var key serviceAccountKey
	if err := json.Unmarshal(serviceAccountJSON, &key); err != nil {
		return nil, fmt.Errorf("parse service account json: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("service account json missing client_email or private_key")
	}
	tokenURI := key.TokenURI
	if tokenURI == "" {
		tokenURI = "https://oauth2.googleapis.com/token"
	}

	block, _ := pem.Decode([]byte(key.PrivateKey))
	if block == nil {
		return nil, fmt.Errorf("service account private_key is not valid PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse service account private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("service account private key is not RSA")
	}

	src := &serviceAccountTokenSource{
		email:      key.ClientEmail,
		key:        rsaKey,
		tokenURI:   tokenURI,
		httpClient: http.DefaultClient,
	}
	return oauth2.ReuseTokenSource(nil, src), nil
}

// serviceAccountTokenSource implements oauth2.TokenSource via the JWT bearer
// grant (RFC 7523): it signs a short-lived assertion claiming vertexAIScope
// and trades it for an access token at tokenURI.
type serviceAccountTokenSource struct {
	email      string
	key        *rsa.PrivateKey
	tokenURI   string
	httpClient *http.Client
}

func (s *serviceAccountTokenSource) Token() (*oauth2.Token, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   s.email,
		"scope": vertexAIScope,
		"aud":   s.tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("sign service account assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	resp, err := s.httpClient.PostForm(s.tokenURI, form)
	if err != nil {
		return nil, fmt.Errorf("exchange service account assertion: %w", err)
	}
	defer resp.Body.Close()

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || tokenResp.Error != "" {
		return nil, fmt.Errorf("token exchange failed: status=%d error=%s", resp.StatusCode, tokenResp.Error)
	}

	return &oauth2.Token{
		AccessToken: tokenResp.AccessToken,
		TokenType:   strings.TrimSpace(tokenResp.TokenType),
		Expiry:      now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}, nil
}

// vertexHTTPClient wraps vertexTokenSource in an http.Client that attaches
// the bearer token to every outgoing request, suitable for genai.ClientConfig.HTTPClient.
func vertexHTTPClient(ctx context.Context, serviceAccountJSON []byte) (*http.Client, error) {
	src, err := vertexTokenSource(ctx, serviceAccountJSON)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, src), nil
}
