// Package vault resolves broker bridge credentials from HashiCorp
// Vault so API keys stay out of the config file. Disabled Vault just
// means the config-file keys are used as-is.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"forex-trading-agent/config"
)

// Credentials is the secret payload stored per account.
type Credentials struct {
	BridgeURL string `json:"bridge_url"`
	APIKey    string `json:"api_key"`
}

// Client wraps the Vault API client with a read-through cache.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu    sync.RWMutex
	cache map[string]Credentials
}

func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg, cache: make(map[string]Credentials)}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]Credentials),
	}, nil
}

// Enabled reports whether Vault lookups are active.
func (c *Client) Enabled() bool {
	return c.config.Enabled
}

// Credentials fetches the secret for one account ID. Cached after the
// first read; Vault being down after that does not break a restart of
// the scan loop.
func (c *Client) Credentials(ctx context.Context, accountID string) (Credentials, error) {
	c.mu.RLock()
	cached, ok := c.cache[accountID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if !c.config.Enabled {
		return Credentials{}, fmt.Errorf("vault disabled, no credentials for %s", accountID)
	}

	path := c.secretPath(accountID)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return Credentials{}, fmt.Errorf("no credentials at %s", path)
	}

	// KV v2 nests the payload under "data".
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		data = secret.Data
	}

	creds := Credentials{
		BridgeURL: stringField(data, "bridge_url"),
		APIKey:    stringField(data, "api_key"),
	}
	if creds.APIKey == "" {
		return Credentials{}, fmt.Errorf("credentials at %s missing api_key", path)
	}

	c.mu.Lock()
	c.cache[accountID] = creds
	c.mu.Unlock()
	return creds, nil
}

// Resolve overlays Vault credentials onto an account config when
// available. Lookup failures leave the config untouched.
func (c *Client) Resolve(ctx context.Context, acct config.AccountConfig) config.AccountConfig {
	if !c.config.Enabled || acct.MockMode {
		return acct
	}
	creds, err := c.Credentials(ctx, acct.ID)
	if err != nil {
		return acct
	}
	if creds.BridgeURL != "" {
		acct.BridgeURL = creds.BridgeURL
	}
	acct.APIKey = creds.APIKey
	return acct
}

func (c *Client) secretPath(accountID string) string {
	mount := c.config.MountPath
	if mount == "" {
		mount = "secret"
	}
	prefix := c.config.SecretPath
	if prefix == "" {
		prefix = "forex/accounts"
	}
	return fmt.Sprintf("%s/data/%s/%s", mount, prefix, accountID)
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
