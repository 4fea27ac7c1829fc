package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/clipforge/clipforge/internal/errors"
)

// ErrTokenExpired indicates a download token that was valid but has lapsed.
var ErrTokenExpired = apperrors.Validation("download token expired")

// ErrTokenInvalid indicates a malformed or forged download token.
var ErrTokenInvalid = apperrors.Validation("download token invalid")

// TokenServiceOptions groups dependencies for TokenService.
type TokenServiceOptions struct {
	Secret string        // Required: HMAC signing secret
	TTL    time.Duration // Optional: token lifetime, default 1h
	Now    func() time.Time
}

// TokenService issues and verifies signed download tokens. A token binds one
// job's artifact file to an expiry; artifacts are never served without one.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService constructs a new TokenService.
func NewTokenService(opts TokenServiceOptions) (*TokenService, error) {
	if strings.TrimSpace(opts.Secret) == "" {
		return nil, errors.New("token secret is required")
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &TokenService{
		secret: []byte(opts.Secret),
		ttl:    ttl,
		now:    now,
	}, nil
}

// MustNewTokenService constructs a new TokenService and panics on error.
func MustNewTokenService(opts TokenServiceOptions) *TokenService {
	svc, err := NewTokenService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create TokenService: %v", err))
	}
	return svc
}

// Sign issues a token for one artifact of one job. The token format is
// "<unix expiry>.<hex hmac>".
func (s *TokenService) Sign(jobID, file string) (string, time.Time) {
	expiry := s.now().Add(s.ttl).Unix()
	mac := s.compute(jobID, file, expiry)
	return strconv.FormatInt(expiry, 10) + "." + mac, time.Unix(expiry, 0)
}

// Verify checks a token against the job and file it claims to unlock.
func (s *TokenService) Verify(jobID, file, token string) error {
	expiryPart, macPart, ok := strings.Cut(token, ".")
	if !ok {
		return ErrTokenInvalid
	}

	expiry, err := strconv.ParseInt(expiryPart, 10, 64)
	if err != nil {
		return ErrTokenInvalid
	}

	expected := s.compute(jobID, file, expiry)
	if !hmac.Equal([]byte(expected), []byte(macPart)) {
		return ErrTokenInvalid
	}

	if s.now().After(time.Unix(expiry, 0)) {
		return ErrTokenExpired
	}

	return nil
}

func (s *TokenService) compute(jobID, file string, expiry int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", jobID, file, expiry)
	return hex.EncodeToString(mac.Sum(nil))
}
