package utils

import "golang.org/x/crypto/bcrypt"

// HashServiceKey returns the bcrypt hash of a service key using the given
// cost.  A cost below bcrypt.MinCost selects bcrypt.DefaultCost.
func HashServiceKey(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyServiceKey safely compares a bcrypt hash and a presented key.
func VerifyServiceKey(hash, plain string) bool {
	if hash == "" || plain == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
