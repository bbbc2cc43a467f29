package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/proxyctl/internal/model"
	"github.com/edvin/proxyctl/internal/platform"
)

const domainColumns = `id, name, destination_address, destination_port, status, certificate_status,
	tls_version, http_version, proxy_timeout, proxy_buffer_size, client_max_body_size,
	custom_headers, custom_config, enable_websocket, enable_gzip, enable_cache, block_exploits,
	include_www, last_checked_at, operation_log, created_at, updated_at`

// NameResolver looks up the current A record of a name.
type NameResolver interface {
	ResolveIP(ctx context.Context, name string) string
}

// ConfigRemover deletes a domain's rendered config file.
type ConfigRemover interface {
	RemoveConfig(name string) error
}

// DomainService is the authoritative store of managed domains.
type DomainService struct {
	db       DB
	locks    *platform.KeyedMutex
	configs  ConfigRemover
	validate *validator.Validate
	now      func() time.Time
}

func NewDomainService(db DB, locks *platform.KeyedMutex, configs ConfigRemover) *DomainService {
	return &DomainService{
		db:       db,
		locks:    locks,
		configs:  configs,
		validate: model.NewValidator(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddResult reports which names were created and which already existed.
type AddResult struct {
	Added   []model.Domain `json:"added"`
	Skipped []string       `json:"skipped"`
}

// Add declares every name in names, proxied to address:port. Names that are
// already managed are skipped, never overwritten.
func (s *DomainService) Add(ctx context.Context, names []string, address string, port int) (*AddResult, error) {
	address = strings.TrimSpace(address)
	if err := s.validate.Var(address, "required,ip|hostname_rfc1123"); err != nil {
		return nil, fmt.Errorf("%w: invalid destination address %q", ErrInvalidInput, address)
	}
	if port == 0 {
		port = model.DefaultDestinationPort
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: invalid destination port %d", ErrInvalidInput, port)
	}

	var clean []string
	seen := make(map[string]bool)
	for _, raw := range names {
		name := NormalizeName(raw)
		if name == "" || seen[name] {
			continue
		}
		if err := s.validate.Var(name, "fqdn"); err != nil {
			return nil, fmt.Errorf("%w: invalid domain name %q", ErrInvalidInput, raw)
		}
		seen[name] = true
		clean = append(clean, name)
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("%w: no domain names given", ErrInvalidInput)
	}

	res := &AddResult{Added: []model.Domain{}, Skipped: []string{}}
	for _, name := range clean {
		d := model.NewDomain(name, address, port)
		d.ID = platform.NewID()
		d.CreatedAt = s.now()
		d.UpdatedAt = d.CreatedAt

		tag, err := s.db.ExecContext(ctx,
			`INSERT INTO domains (id, name, destination_address, destination_port, status, certificate_status,
				tls_version, http_version, proxy_timeout, proxy_buffer_size, client_max_body_size,
				custom_headers, custom_config, enable_websocket, enable_gzip, enable_cache, block_exploits,
				include_www, operation_log, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
			 ON CONFLICT (name) DO NOTHING`,
			d.ID, d.Name, d.DestinationAddress, d.DestinationPort, d.Status, d.CertificateStatus,
			d.TLSVersion, d.HTTPVersion, d.ProxyTimeout, d.ProxyBufferSize, d.ClientMaxBodySize,
			joinHeaders(d.CustomHeaders), d.CustomConfig, d.EnableWebsocket, d.EnableGzip, d.EnableCache, d.BlockExploits,
			d.IncludeWWW, "", d.CreatedAt, d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("insert domain %s: %w", name, err)
		}
		n, err := tag.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("insert domain %s: %w", name, err)
		}
		if n == 0 {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		res.Added = append(res.Added, *d)
	}
	return res, nil
}

func (s *DomainService) Get(ctx context.Context, id string) (*model.Domain, error) {
	d, err := scanDomain(s.db.QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("domain %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get domain %s: %w", id, err)
	}
	return d, nil
}

func (s *DomainService) GetByName(ctx context.Context, name string) (*model.Domain, error) {
	name = NormalizeName(name)
	d, err := scanDomain(s.db.QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("domain %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get domain %s: %w", name, err)
	}
	return d, nil
}

func (s *DomainService) List(ctx context.Context) ([]model.Domain, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+domainColumns+` FROM domains ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	domains := []model.Domain{}
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		domains = append(domains, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return domains, nil
}

// ResolveIPs fills ResolvedIP on every domain, resolving concurrently.
func (s *DomainService) ResolveIPs(ctx context.Context, domains []model.Domain, r NameResolver) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range domains {
		g.Go(func() error {
			domains[i].ResolvedIP = r.ResolveIP(gctx, domains[i].Name)
			return nil
		})
	}
	_ = g.Wait()
}

// Update applies the operator-mutable fields of patch. Identity and
// lifecycle state cannot be changed here.
func (s *DomainService) Update(ctx context.Context, id string, patch model.DomainPatch) (*model.Domain, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	if err := s.validate.Struct(patch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	unlock := s.locks.Lock("domain", id)
	defer unlock()

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(d)
	d.UpdatedAt = s.now()

	_, err = s.db.ExecContext(ctx,
		`UPDATE domains SET destination_address = $1, destination_port = $2, tls_version = $3,
			http_version = $4, proxy_timeout = $5, proxy_buffer_size = $6, client_max_body_size = $7,
			custom_headers = $8, custom_config = $9, enable_websocket = $10, enable_gzip = $11,
			enable_cache = $12, block_exploits = $13, include_www = $14, updated_at = $15
		 WHERE id = $16`,
		d.DestinationAddress, d.DestinationPort, d.TLSVersion,
		d.HTTPVersion, d.ProxyTimeout, d.ProxyBufferSize, d.ClientMaxBodySize,
		joinHeaders(d.CustomHeaders), d.CustomConfig, d.EnableWebsocket, d.EnableGzip,
		d.EnableCache, d.BlockExploits, d.IncludeWWW, d.UpdatedAt,
		d.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update domain %s: %w", id, err)
	}
	return d, nil
}

// Delete removes the record and best-effort removes its rendered config.
// Certificate material is left to the ACME client.
func (s *DomainService) Delete(ctx context.Context, id string) (*model.Domain, error) {
	unlock := s.locks.Lock("domain", id)
	defer unlock()

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM domains WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete domain %s: %w", id, err)
	}

	if s.configs != nil {
		if err := s.configs.RemoveConfig(d.Name); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("domain", d.Name).Msg("failed to remove config of deleted domain")
		}
	}
	return d, nil
}

// CertificateStatuses lists the certificate state of every domain.
func (s *DomainService) CertificateStatuses(ctx context.Context) ([]model.CertificateStatusEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, certificate_status, last_checked_at FROM domains ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list certificate statuses: %w", err)
	}
	defer rows.Close()

	out := []model.CertificateStatusEntry{}
	for rows.Next() {
		var e model.CertificateStatusEntry
		var checked sql.NullTime
		if err := rows.Scan(&e.ID, &e.Name, &e.CertificateStatus, &checked); err != nil {
			return nil, fmt.Errorf("scan certificate status: %w", err)
		}
		if checked.Valid {
			t := checked.Time
			e.LastCheckedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// setCertificateStatus moves only the certificate status, leaving the
// transcript of the previous operation in place.
func (s *DomainService) setCertificateStatus(ctx context.Context, d *model.Domain, certStatus string) error {
	warnTransition(ctx, d, certStatus)
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`UPDATE domains SET certificate_status = $1, updated_at = $2 WHERE id = $3`,
		certStatus, now, d.ID)
	if err != nil {
		return fmt.Errorf("set certificate status of %s: %w", d.Name, err)
	}
	d.CertificateStatus = certStatus
	d.UpdatedAt = now
	return nil
}

// recordOutcome stores the result of an operation in one statement so
// readers see either the old or the new state, never a mix.
func (s *DomainService) recordOutcome(ctx context.Context, d *model.Domain, status, certStatus, log string) error {
	warnTransition(ctx, d, certStatus)
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`UPDATE domains SET status = $1, certificate_status = $2, last_checked_at = $3,
			operation_log = $4, updated_at = $5
		 WHERE id = $6`,
		status, certStatus, now, log, now, d.ID)
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", d.Name, err)
	}
	d.Status = status
	d.CertificateStatus = certStatus
	d.LastCheckedAt = &now
	d.OperationLog = log
	d.UpdatedAt = now
	return nil
}

func warnTransition(ctx context.Context, d *model.Domain, to string) {
	if !model.CanTransition(d.CertificateStatus, to) {
		zerolog.Ctx(ctx).Warn().
			Str("domain", d.Name).
			Str("from", d.CertificateStatus).
			Str("to", to).
			Msg("unexpected certificate status transition")
	}
}

// NormalizeName lowercases a domain name and strips a scheme, path and
// trailing dot.
func NormalizeName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimPrefix(name, "http://")
	name = strings.TrimPrefix(name, "https://")
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSuffix(name, ".")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDomain(row rowScanner) (*model.Domain, error) {
	var (
		d       model.Domain
		headers string
		checked sql.NullTime
	)
	err := row.Scan(&d.ID, &d.Name, &d.DestinationAddress, &d.DestinationPort, &d.Status, &d.CertificateStatus,
		&d.TLSVersion, &d.HTTPVersion, &d.ProxyTimeout, &d.ProxyBufferSize, &d.ClientMaxBodySize,
		&headers, &d.CustomConfig, &d.EnableWebsocket, &d.EnableGzip, &d.EnableCache, &d.BlockExploits,
		&d.IncludeWWW, &checked, &d.OperationLog, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.CustomHeaders = splitHeaders(headers)
	if checked.Valid {
		t := checked.Time
		d.LastCheckedAt = &t
	}
	return &d, nil
}

func joinHeaders(headers []string) string {
	return strings.Join(headers, "\n")
}

func splitHeaders(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}
