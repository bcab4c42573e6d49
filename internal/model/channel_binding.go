package model

// ChannelBinding maps a provider channel identifier (a WhatsApp
// phone-number-id) to the tenant that registered it and the user responsible
// for that channel. Many bindings may point at one tenant; each identifier
// resolves to exactly one. This subsystem only ever reads bindings.
type ChannelBinding struct {
	ChannelID   string `db:"channel_id" json:"channel_id"`
	TenantID    string `db:"tenant_id" json:"tenant_id"`
	OwnerUserID string `db:"owner_user_id" json:"owner_user_id"`
}
