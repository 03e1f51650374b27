// Package identity implements the IdentityProvider on top of the HashiCorp Vault identity store.
package identity

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	vault "github.com/hashicorp/vault/api"

	"github.com/turtacn/psn/internal/config"
	"github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/pkg/logger"
)

// PathsMetadataKey is the entity and group metadata key holding comma separated domain paths.
const PathsMetadataKey = "psn_paths"

// VaultProvider resolves a subject to the Vault identity entity of the same
// name. Its paths are the union of the entity metadata and the metadata of
// every group the entity belongs to directly.
type VaultProvider struct {
	client *vault.Client
	logger logger.Logger
}

// NewVaultClient builds a Vault API client from configuration.
func NewVaultClient(cfg config.VaultConfig) (*vault.Client, error) {
	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address
	if cfg.Timeout > 0 {
		vaultCfg.Timeout = cfg.Timeout
	}
	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	return client, nil
}

// NewVaultProvider creates a new VaultProvider.
func NewVaultProvider(client *vault.Client, log logger.Logger) service.IdentityProvider {
	return &VaultProvider{
		client: client,
		logger: log.WithComponent("VaultIdentityProvider"),
	}
}

// GetAuthorizationPaths returns the domain paths granted to subject. An unknown subject has no paths.
func (p *VaultProvider) GetAuthorizationPaths(ctx context.Context, subject string) ([]string, error) {
	entity, err := p.client.Logical().ReadWithContext(ctx, "identity/entity/name/"+url.PathEscape(subject))
	if err != nil {
		p.logger.Error(ctx, "failed to read identity entity from Vault", err, logger.String("subject", subject))
		return nil, fmt.Errorf("could not read identity entity: %w", err)
	}
	if entity == nil || entity.Data == nil {
		p.logger.Debug(ctx, "identity entity not found", logger.String("subject", subject))
		return []string{}, nil
	}

	paths := metadataPaths(entity.Data)
	for _, groupID := range stringList(entity.Data["direct_group_ids"]) {
		group, err := p.client.Logical().ReadWithContext(ctx, "identity/group/id/"+url.PathEscape(groupID))
		if err != nil {
			p.logger.Error(ctx, "failed to read identity group from Vault", err,
				logger.String("subject", subject),
				logger.String("group_id", groupID),
			)
			return nil, fmt.Errorf("could not read identity group %s: %w", groupID, err)
		}
		if group == nil || group.Data == nil {
			continue
		}
		paths = append(paths, metadataPaths(group.Data)...)
	}

	p.logger.Debug(ctx, "resolved authorization paths",
		logger.String("subject", subject),
		logger.Int("paths", len(paths)),
	)
	return paths, nil
}

func metadataPaths(data map[string]interface{}) []string {
	metadata, ok := data["metadata"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := metadata[PathsMetadataKey].(string)
	if !ok {
		return nil
	}
	var paths []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func stringList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
