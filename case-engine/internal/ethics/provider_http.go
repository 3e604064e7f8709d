package ethics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	KindSanctions  = "sanctions"
	KindCorruption = "corruption"
	KindIndustry   = "industry"

	tokenIssuer = "case-engine"
	tokenTTL    = time.Minute
)

type HTTPProviderConfig struct {
	Kind       string
	URL        string
	Timeout    time.Duration
	JWTSecret  string
	HTTPClient *http.Client
}

// HTTPProvider queries a remote risk provider. One instance serves a single
// kind; it satisfies all three provider interfaces so the caller picks the one
// that matches Kind.
type HTTPProvider struct {
	kind    string
	url     string
	secret  []byte
	client  *http.Client
	timeout time.Duration
}

func NewHTTPProvider(cfg HTTPProviderConfig) (*HTTPProvider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%s provider url required", cfg.Kind)
	}
	switch cfg.Kind {
	case KindSanctions, KindCorruption, KindIndustry:
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		kind:    cfg.Kind,
		url:     strings.TrimSuffix(cfg.URL, "/"),
		secret:  []byte(cfg.JWTSecret),
		client:  client,
		timeout: timeout,
	}, nil
}

func (p *HTTPProvider) Lookup(ctx context.Context, name string) (LookupResult, error) {
	return p.query(ctx, map[string]string{"name": name})
}

func (p *HTTPProvider) Index(ctx context.Context, region string) (LookupResult, error) {
	return p.query(ctx, map[string]string{"region": region})
}

func (p *HTTPProvider) Assess(ctx context.Context, industry string) (LookupResult, error) {
	return p.query(ctx, map[string]string{"industry": industry})
}

func (p *HTTPProvider) query(ctx context.Context, payload map[string]string) (LookupResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return LookupResult{}, fmt.Errorf("%s marshal request: %w", p.kind, err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return LookupResult{}, fmt.Errorf("%s build request: %w", p.kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(p.secret) > 0 {
		token, err := p.token()
		if err != nil {
			return LookupResult{}, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return LookupResult{}, fmt.Errorf("%s lookup: %w", p.kind, err)
	}
	defer resp.Body.Close()
	return p.decode(resp)
}

func (p *HTTPProvider) token() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Audience:  jwt.ClaimStrings{p.kind},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("%s sign token: %w", p.kind, err)
	}
	return signed, nil
}

func (p *HTTPProvider) decode(resp *http.Response) (LookupResult, error) {
	if resp.StatusCode >= 500 {
		return LookupResult{}, fmt.Errorf("%s provider unavailable: %s", p.kind, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return LookupResult{}, fmt.Errorf("%s provider rejected request: %s", p.kind, resp.Status)
	}
	var res LookupResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return LookupResult{}, fmt.Errorf("%s decode response: %w", p.kind, err)
	}
	if res.Score < 0 || res.Score > 1 {
		return LookupResult{}, fmt.Errorf("%s provider score %v out of range", p.kind, res.Score)
	}
	return res, nil
}
