package auth

import (
	"crypto/subtle"
	"fmt"
	"licensebot/entity"
)

// Auth resolves admin API bearer tokens to the operators listed in the
// configuration.
type Auth struct {
	operators []entity.Operator
}

func New(operators []entity.Operator) *Auth {
	return &Auth{operators: operators}
}

func (a *Auth) OperatorByToken(token string) (*entity.Operator, error) {
	if a == nil || len(a.operators) == 0 {
		return nil, fmt.Errorf("no operators configured")
	}
	if token == "" {
		return nil, fmt.Errorf("empty token")
	}
	for i := range a.operators {
		op := a.operators[i]
		if subtle.ConstantTimeCompare([]byte(op.Token), []byte(token)) == 1 {
			return &op, nil
		}
	}
	return nil, fmt.Errorf("unknown token")
}
