package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ProxyType represents the protocol of an outbound proxy
type ProxyType string

const (
	ProxyTypeHTTP   ProxyType = "http"
	ProxyTypeHTTPS  ProxyType = "https"
	ProxyTypeSOCKS4 ProxyType = "socks4"
	ProxyTypeSOCKS5 ProxyType = "socks5"
)

// Valid checks if the proxy type is recognized
func (t ProxyType) Valid() bool {
	switch t {
	case ProxyTypeHTTP, ProxyTypeHTTPS, ProxyTypeSOCKS4, ProxyTypeSOCKS5:
		return true
	default:
		return false
	}
}

// ProxyStatus represents the last observed health of a proxy
type ProxyStatus string

const (
	ProxyStatusUnknown ProxyStatus = "unknown"
	ProxyStatusWorking ProxyStatus = "working"
	ProxyStatusFailed  ProxyStatus = "failed"
)

// ProxyConfig describes an outbound network path available to send attempts.
// A proxy is scoped to one account or global (AccountID nil). Failing proxies
// are only flagged, never removed, so operators retain visibility.
type ProxyConfig struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	AccountID *uint `gorm:"index" json:"account_id,omitempty"` // nil means global
	IsGlobal  bool  `gorm:"not null;default:false;index" json:"is_global"`

	Type ProxyType `gorm:"type:varchar(10);not null" json:"type"`
	Host string    `gorm:"type:varchar(255);not null" json:"host"`
	Port int       `gorm:"not null" json:"port"`

	Username *string `gorm:"type:varchar(255)" json:"username,omitempty"`
	Password *string `gorm:"type:varchar(255)" json:"password,omitempty"`

	// Selection ordering: lowest priority number wins, ties broken by fewest
	// failures then least-used.
	Priority   int   `gorm:"not null;default:100" json:"priority"`
	FailCount  int64 `gorm:"not null;default:0" json:"fail_count"`
	UsageCount int64 `gorm:"not null;default:0" json:"usage_count"`

	IsActive *bool `gorm:"not null;default:true" json:"is_active"`

	LastCheckedAt *time.Time  `json:"last_checked_at,omitempty"`
	LastStatus    ProxyStatus `gorm:"type:varchar(10);not null;default:'unknown'" json:"last_status"`

	// Audit fields
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

/// Address returns the host:port pair of the proxy
func (p *ProxyConfig) Address() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// URL returns the full proxy URL including credentials when present
func (p *ProxyConfig) URL() string {
	auth := ""
	if p.Username != nil && p.Password != nil {
		auth = fmt.Sprintf("%s:%s@", *p.Username, *p.Password)
	}
	return fmt.Sprintf("%s://%s%s:%d", p.Type, auth, p.Host, p.Port)
}

// ProxyConfigFilter represents filter criteria for proxy queries
type ProxyConfigFilter struct {
	ID        *uint        `json:"id,omitempty"`
	AccountID *uint        `json:"account_id,omitempty"`
	IsGlobal  *bool        `json:"is_global,omitempty"`
	IsActive  *bool        `json:"is_active,omitempty"`
	Type      *ProxyType   `json:"type,omitempty"`
	Status    *ProxyStatus `json:"status,omitempty"`
}

// TableName returns the table name for the ProxyConfig model
func (ProxyConfig) TableName() string {
	return "proxy_configs"
}
