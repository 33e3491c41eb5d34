package broker

import (
	"github.com/rs/zerolog"

	"forex-trading-agent/config"
)

// New builds the broker for one configured account: the HTTP bridge
// client normally, the simulated client in mock mode.
func New(acct config.AccountConfig, logger zerolog.Logger) Broker {
	if acct.MockMode || acct.BridgeURL == "" {
		logger.Info().Str("account", acct.ID).Msg("Using simulated broker")
		return NewMockClient(0)
	}
	return NewClient(acct.BridgeURL, acct.APIKey)
}
