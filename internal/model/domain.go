package model

import "time"

// Domain is one managed reverse-proxy host. Name is the join key for the
// certificate material directory and the rendered config file.
type Domain struct {
	ID                 string     `json:"id" db:"id"`
	Name               string     `json:"name" db:"name"`
	DestinationAddress string     `json:"ip" db:"destination_address"`
	DestinationPort    int        `json:"port" db:"destination_port"`
	Status             string     `json:"status" db:"status"`
	CertificateStatus  string     `json:"cert_status" db:"certificate_status"`
	TLSVersion         string     `json:"tls_version" db:"tls_version"`
	HTTPVersion        string     `json:"http_version" db:"http_version"`
	ProxyTimeout       int        `json:"proxy_timeout" db:"proxy_timeout"`
	ProxyBufferSize    string     `json:"proxy_buffer_size" db:"proxy_buffer_size"`
	ClientMaxBodySize  string     `json:"client_max_body_size" db:"client_max_body_size"`
	CustomHeaders      []string   `json:"custom_headers" db:"custom_headers"`
	CustomConfig       string     `json:"custom_config" db:"custom_config"`
	EnableWebsocket    bool       `json:"enable_websocket" db:"enable_websocket"`
	EnableGzip         bool       `json:"enable_gzip" db:"enable_gzip"`
	EnableCache        bool       `json:"enable_cache" db:"enable_cache"`
	BlockExploits      bool       `json:"block_exploits" db:"block_exploits"`
	IncludeWWW         bool       `json:"include_www" db:"include_www"`
	LastCheckedAt      *time.Time `json:"last_check,omitempty" db:"last_checked_at"`
	OperationLog       string     `json:"log,omitempty" db:"operation_log"`
	ResolvedIP         string     `json:"resolved_ip,omitempty" db:"-"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

const (
	HTTPVersion2  = "http2"
	HTTPVersion11 = "http1.1"

	DefaultDestinationPort   = 80
	DefaultTLSVersion        = "TLSv1.2 TLSv1.3"
	DefaultProxyTimeout      = 60
	DefaultProxyBufferSize   = "4k"
	DefaultClientMaxBodySize = "10m"
)

// NewDomain returns a record for name proxied to address:port with every
// knob at its default.
func NewDomain(name, address string, port int) *Domain {
	if port <= 0 {
		port = DefaultDestinationPort
	}
	return &Domain{
		Name:               name,
		DestinationAddress: address,
		DestinationPort:    port,
		Status:             StatusNew,
		CertificateStatus:  CertNone,
		TLSVersion:         DefaultTLSVersion,
		HTTPVersion:        HTTPVersion2,
		ProxyTimeout:       DefaultProxyTimeout,
		ProxyBufferSize:    DefaultProxyBufferSize,
		ClientMaxBodySize:  DefaultClientMaxBodySize,
		EnableGzip:         true,
		BlockExploits:      true,
	}
}

// DomainPatch carries the operator-mutable knobs. Nil fields are left untouched.
// Name, status and certificate status are deliberately absent.
type DomainPatch struct {
	DestinationAddress *string   `json:"ip,omitempty" validate:"omitempty,ip|hostname_rfc1123"`
	DestinationPort    *int      `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	TLSVersion         *string   `json:"tls_version,omitempty" validate:"omitempty,oneof='TLSv1.2' 'TLSv1.3' 'TLSv1.2 TLSv1.3'"`
	HTTPVersion        *string   `json:"http_version,omitempty" validate:"omitempty,oneof=http2 http1.1"`
	ProxyTimeout       *int      `json:"proxy_timeout,omitempty" validate:"omitempty,min=1,max=3600"`
	ProxyBufferSize    *string   `json:"proxy_buffer_size,omitempty" validate:"omitempty,nginxsize"`
	ClientMaxBodySize  *string   `json:"client_max_body_size,omitempty" validate:"omitempty,nginxsize"`
	CustomHeaders      *[]string `json:"custom_headers,omitempty"`
	CustomConfig       *string   `json:"custom_config,omitempty"`
	EnableWebsocket    *bool     `json:"enable_websocket,omitempty"`
	EnableGzip         *bool     `json:"enable_gzip,omitempty"`
	EnableCache        *bool     `json:"enable_cache,omitempty"`
	BlockExploits      *bool     `json:"block_exploits,omitempty"`
	IncludeWWW         *bool     `json:"include_www,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p DomainPatch) Empty() bool {
	return p.DestinationAddress == nil && p.DestinationPort == nil && p.TLSVersion == nil &&
		p.HTTPVersion == nil && p.ProxyTimeout == nil && p.ProxyBufferSize == nil &&
		p.ClientMaxBodySize == nil && p.CustomHeaders == nil && p.CustomConfig == nil &&
		p.EnableWebsocket == nil && p.EnableGzip == nil && p.EnableCache == nil &&
		p.BlockExploits == nil && p.IncludeWWW == nil
}

// Apply copies the set fields of p onto d.
func (p DomainPatch) Apply(d *Domain) {
	if p.DestinationAddress != nil {
		d.DestinationAddress = *p.DestinationAddress
	}
	if p.DestinationPort != nil {
		d.DestinationPort = *p.DestinationPort
	}
	if p.TLSVersion != nil {
		d.TLSVersion = *p.TLSVersion
	}
	if p.HTTPVersion != nil {
		d.HTTPVersion = *p.HTTPVersion
	}
	if p.ProxyTimeout != nil {
		d.ProxyTimeout = *p.ProxyTimeout
	}
	if p.ProxyBufferSize != nil {
		d.ProxyBufferSize = *p.ProxyBufferSize
	}
	if p.ClientMaxBodySize != nil {
		d.ClientMaxBodySize = *p.ClientMaxBodySize
	}
	if p.CustomHeaders != nil {
		d.CustomHeaders = *p.CustomHeaders
	}
	if p.CustomConfig != nil {
		d.CustomConfig = *p.CustomConfig
	}
	if p.EnableWebsocket != nil {
		d.EnableWebsocket = *p.EnableWebsocket
	}
	if p.EnableGzip != nil {
		d.EnableGzip = *p.EnableGzip
	}
	if p.EnableCache != nil {
		d.EnableCache = *p.EnableCache
	}
	if p.BlockExploits != nil {
		d.BlockExploits = *p.BlockExploits
	}
	if p.IncludeWWW != nil {
		d.IncludeWWW = *p.IncludeWWW
	}
}

// CertificateStatusEntry is the compact per-domain view used by status listings.
type CertificateStatusEntry struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	CertificateStatus string     `json:"cert_status"`
	LastCheckedAt     *time.Time `json:"last_check,omitempty"`
}
