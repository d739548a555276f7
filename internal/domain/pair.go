package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingInput is returned when a required argument (pair, intervals) is absent.
	ErrMissingInput = errors.New("missing input")

	// ErrInvalidPair is returned when a pair contains characters outside [A-Z0-9].
	ErrInvalidPair = errors.New("invalid pair")
)

// NormalizePair converts user input such as "btc/usdt" into the exchange
// symbol "BTCUSDT". The result doubles as the trade table name.
func NormalizePair(pair string) (string, error) {
	p := strings.ToUpper(strings.TrimSpace(pair))
	p = strings.NewReplacer("/", "", "-", "", "_", "").Replace(p)
	if p == "" {
		return "", fmt.Errorf("%w: no pair provided", ErrMissingInput)
	}

	for i := 0; i < len(p); i++ {
		c := p[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return "", fmt.Errorf("%w: %q", ErrInvalidPair, pair)
		}
	}

	return p, nil
}
