package repository

import (
	"database/sql"

	"github.com/unclebandit/waleopard-backend/internal/model"
)

// BindingRepositoryInterface resolves provider channel identifiers to the
// owning tenant. Read-only: bindings are written by the settings flow.
type BindingRepositoryInterface interface {
	FindByChannelID(channelID string) (*model.ChannelBinding, error)
	// FindFirstByTenant returns a sending channel for the tenant, or
	// (nil, nil) when the tenant has none configured.
	FindFirstByTenant(tenantID string) (*model.ChannelBinding, error)
}

type BindingRepository struct {
	DB *sql.DB
}

// FindByChannelID looks a binding up by the provider identifier. The lookup
// direction is provider-id -> tenant, so channel_id is the primary key.
// Returns (nil, nil) when no tenant has registered the channel.
func (r *BindingRepository) FindByChannelID(channelID string) (*model.ChannelBinding, error) {
	query := `
        SELECT channel_id, tenant_id, owner_user_id
        FROM channel_bindings
        WHERE channel_id = $1
    `
	var b model.ChannelBinding
	err := r.DB.QueryRow(query, channelID).Scan(&b.ChannelID, &b.TenantID, &b.OwnerUserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *BindingRepository) FindFirstByTenant(tenantID string) (*model.ChannelBinding, error) {
	query := `
        SELECT channel_id, tenant_id, owner_user_id
        FROM channel_bindings
        WHERE tenant_id = $1
        ORDER BY channel_id ASC
        LIMIT 1
    `
	var b model.ChannelBinding
	err := r.DB.QueryRow(query, tenantID).Scan(&b.ChannelID, &b.TenantID, &b.OwnerUserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

var _ BindingRepositoryInterface = (*BindingRepository)(nil)
