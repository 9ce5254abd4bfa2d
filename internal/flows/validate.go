package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/blogAuth/jwt"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureExpired
	ValidateFailureInvalid
	ValidateFailureBlacklisted
	ValidateFailureStore
)

// ValidateResult returns either the verified claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
}

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	ParseAccess func(string) (*jwt.Claims, error)
	Blacklist   Blacklist
	HashToken   func(string) string
}

// RunValidate verifies an access token. With checkBlacklist set the token is
// also looked up in the revocation store, and a store failure denies.
func RunValidate(ctx context.Context, tokenStr string, checkBlacklist bool, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return ValidateResult{Failure: ValidateFailureExpired, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureInvalid, Err: err}
	}

	if !checkBlacklist {
		return ValidateResult{Claims: claims}
	}
	if deps.Blacklist == nil {
		return ValidateResult{Failure: ValidateFailureStore, Err: errors.New("blacklist store not configured")}
	}

	revoked, err := deps.Blacklist.IsBlacklisted(ctx, deps.HashToken(tokenStr))
	if err != nil {
		return ValidateResult{Failure: ValidateFailureStore, Err: err}
	}
	if revoked {
		return ValidateResult{Failure: ValidateFailureBlacklisted}
	}
	return ValidateResult{Claims: claims}
}
