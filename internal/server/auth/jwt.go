// Package auth issues and verifies the signed bearer tokens of a session.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carries the identity of the token subject. Access tokens also carry
// Email and Name; refresh tokens only UserID.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Identity is what a caller learns from a verified token.
type Identity struct {
	UserID    string
	Email     string
	Name      string
	ExpiresAt time.Time
}

type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret []byte, issuer string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     secret,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccessToken signs a short-lived token for the access audience.
func (i *Issuer) IssueAccessToken(userID, email, name string) (string, time.Time, error) {
	return i.sign(Claims{UserID: userID, Email: email, Name: name}, common.AudienceAccess, i.accessTTL)
}

// IssueRefreshToken signs a long-lived token for the refresh audience. The
// returned string is what the store keeps.
func (i *Issuer) IssueRefreshToken(userID string) (string, time.Time, error) {
	return i.sign(Claims{UserID: userID}, common.AudienceRefresh, i.refreshTTL)
}

func (i *Issuer) sign(c Claims, audience string, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(ttl)

	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    i.issuer,
		Subject:   c.UserID,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return s, exp, nil
}

// Verify checks signature, audience, issuer and expiry, in that order. A
// token without exp is invalid.
// A token for another audience yields common.ErrWrongAudience even when it is
// also expired. A correctly signed, correctly scoped, expired token yields
// common.ErrTokenExpired together with its identity.
func (i *Issuer) Verify(token, audience string) (*Identity, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)

	expired := false
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrInvalidToken
		}
		// signature is verified before time-based claims
		expired = true
	}

	if !hasAudience(claims.Audience, audience) {
		return nil, common.ErrWrongAudience
	}
	if claims.Issuer != i.issuer {
		return nil, common.ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}
	if audience == common.AudienceAccess && (claims.Email == "" || claims.Name == "") {
		return nil, common.ErrInvalidToken
	}

	id := &Identity{UserID: claims.UserID, Email: claims.Email, Name: claims.Name, ExpiresAt: claims.ExpiresAt.Time}
	if expired {
		return id, common.ErrTokenExpired
	}
	return id, nil
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
