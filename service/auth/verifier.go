package auth

import "context"

// TokenVerifier is the identity-provider boundary. The relay treats it as a
// black box: it hands over the raw token from the authenticate event and gets
// back the user it belongs to, or a rejection.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}
