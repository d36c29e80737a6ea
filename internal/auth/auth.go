package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"mediasearch/searchservice/internal/domain"
)

const (
	CookieName = "auth_token"
	RoleAdmin  = "admin"
)

var (
	ErrMissingToken = errors.New("missing auth token")
	ErrInvalidToken = errors.New("invalid auth token")
)

// Claims carries the caller's role and optional content-source allowlist.
type Claims struct {
	Role    string   `json:"role"`
	Sources []string `json:"sources,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret   string
	Issuer   string
	Audience string
	// Disabled accepts every request as an anonymous admin. Local development only.
	Disabled bool
}

type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	disabled bool
}

func NewVerifier(cfg Config) *Verifier {
	return &Verifier{
		secret:   []byte(strings.TrimSpace(cfg.Secret)),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		disabled: cfg.Disabled,
	}
}

// Verify turns an HS256 token into a principal.
func (v *Verifier) Verify(raw string) (*domain.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingToken
	}
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: secret not configured", ErrInvalidToken)
	}

	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, options...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &domain.Principal{
		Subject: claims.Subject,
		Role:    strings.TrimSpace(claims.Role),
		Sources: claims.Sources,
	}, nil
}

// Authenticate reads the bearer header or the auth cookie.
func (v *Verifier) Authenticate(r *http.Request) (*domain.Principal, error) {
	if v.disabled {
		return &domain.Principal{Subject: "anonymous", Role: RoleAdmin}, nil
	}
	return v.Verify(tokenFromRequest(r))
}

func tokenFromRequest(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, principal *domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

func PrincipalFrom(ctx context.Context) *domain.Principal {
	principal, _ := ctx.Value(principalKey{}).(*domain.Principal)
	return principal
}

// IssueToken signs claims for the subject. Used by tooling and tests.
func (v *Verifier) IssueToken(claims Claims) (string, error) {
	if len(v.secret) == 0 {
		return "", fmt.Errorf("%w: secret not configured", ErrInvalidToken)
	}
	if claims.Issuer == "" && v.issuer != "" {
		claims.Issuer = v.issuer
	}
	if len(claims.Audience) == 0 && v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
