// Package cache caché de lecturas con espacio de claves por tenant.
// Cada entrada guarda su tenant dueño y toda lectura lo verifica: una entrada ajena
// se trata como fallo y se desaloja.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/estoque-escolar-api/internal/application/inventory"
	"github.com/jhoicas/estoque-escolar-api/pkg/logger"
)

var (
	_ inventory.CacheInvalidator = (*TenantCache)(nil)
	_ inventory.ReadCache        = (*TenantCache)(nil)
)

// Backend almacenamiento clave-valor con TTL y borrado por patrón glob.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// Observer métricas de la caché.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheError()
	IsolationViolation()
}

type nopObserver struct{}

func (nopObserver) CacheHit()           {}
func (nopObserver) CacheMiss()          {}
func (nopObserver) CacheError()         {}
func (nopObserver) IsolationViolation() {}

// KeyFunc arma la clave física a partir de tenant, operación y huella de parámetros.
type KeyFunc func(prefix, tenantID, op, fingerprint string) string

// Options configuración de TenantCache.
type Options struct {
	Prefix      string
	TTL         time.Duration
	Observer    Observer
	Logger      *logger.Logger
	KeyFunc     KeyFunc // nil usa DefaultKey
	// LoadTimeout límite de la carga compartida de Fetch; por defecto 30s.
	LoadTimeout time.Duration
}

// envelope valor guardado junto con su tenant dueño.
type envelope struct {
	Owner    string          `json:"owner_tenant"`
	Op       string          `json:"op"`
	StoredAt time.Time       `json:"stored_at"`
	Value    json.RawMessage `json:"value"`
}

// TenantCache servicio de caché por tenant (read-through, invalidación por escritura).
type TenantCache struct {
	backend Backend
	prefix  string
	ttl     time.Duration
	obs     Observer
	log     *logger.Logger
	keyFn   KeyFunc
	group   singleflight.Group
	loadTTL time.Duration

	mu     sync.Mutex
	epochs map[string]uint64 // invalidaciones por tenant en este proceso
}

// New construye la caché.
func New(backend Backend, opts Options) *TenantCache {
	if opts.Prefix == "" {
		opts.Prefix = "ledger"
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = DefaultKey
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 30 * time.Second
	}
	return &TenantCache{
		backend: backend,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
		obs:     opts.Observer,
		log:     opts.Logger,
		keyFn:   opts.KeyFunc,
		loadTTL: opts.LoadTimeout,
		epochs:  map[string]uint64{},
	}
}

// DefaultKey {prefix}:t:{tenant}:op:{op}:{huella}.
func DefaultKey(prefix, tenantID, op, fingerprint string) string {
	return prefix + ":t:" + tenantID + ":op:" + op + ":" + fingerprint
}

// Fingerprint sha256 del JSON de los parámetros (los mapas se serializan con claves ordenadas).
func Fingerprint(params any) (string, error) {
	if params == nil {
		return "none", nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("huella de parámetros: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:16]), nil
}

// Key clave física de (tenant, op, params).
func (c *TenantCache) Key(tenantID, op string, params any) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("cache: tenant vacío")
	}
	fp, err := Fingerprint(params)
	if err != nil {
		return "", err
	}
	return c.keyFn(c.prefix, tenantID, op, fp), nil
}

// Get lee (tenant, op, params) en dst. Una entrada cuyo dueño no es tenantID es un fallo y se desaloja.
func (c *TenantCache) Get(ctx context.Context, tenantID, op string, params any, dst any) (bool, error) {
	key, err := c.Key(tenantID, op, params)
	if err != nil {
		return false, err
	}
	return c.get(ctx, tenantID, key, dst)
}

func (c *TenantCache) get(ctx context.Context, tenantID, key string, dst any) (bool, error) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.obs.CacheError()
		return false, fmt.Errorf("cache get: %w", err)
	}
	if !ok {
		c.obs.CacheMiss()
		return false, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.evict(ctx, key)
		c.obs.CacheMiss()
		return false, nil
	}
	if env.Owner != tenantID {
		c.obs.IsolationViolation()
		c.log.Warn().
			Str("tenant_id", tenantID).
			Str("key", key).
			Msg("entrada de caché de otro tenant: se trata como fallo y se desaloja")
		c.evict(ctx, key)
		c.obs.CacheMiss()
		return false, nil
	}
	if err := json.Unmarshal(env.Value, dst); err != nil {
		c.evict(ctx, key)
		c.obs.CacheMiss()
		return false, nil
	}
	c.obs.CacheHit()
	return true, nil
}

// Set guarda value para (tenant, op, params). ttl <= 0 usa el TTL por defecto.
func (c *TenantCache) Set(ctx context.Context, tenantID, op string, params any, value any, ttl time.Duration) error {
	key, err := c.Key(tenantID, op, params)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return c.set(ctx, key, tenantID, op, raw, ttl)
}

func (c *TenantCache) set(ctx context.Context, key, tenantID, op string, raw []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	env, err := json.Marshal(envelope{Owner: tenantID, Op: op, StoredAt: time.Now().UTC(), Value: raw})
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	if err := c.backend.Set(ctx, key, env, ttl); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Fetch lectura read-through: en fallo ejecuta load una sola vez por clave (singleflight) y guarda el resultado.
// Los errores del backend degradan a leer de la fuente; no se propagan.
func (c *TenantCache) Fetch(ctx context.Context, tenantID, op string, params any, dst any, load func(ctx context.Context) (any, error)) error {
	key, err := c.Key(tenantID, op, params)
	if err != nil {
		return err
	}
	hit, err := c.get(ctx, tenantID, key, dst)
	if err != nil {
		c.log.Warn().Err(err).Str("tenant_id", tenantID).Str("op", op).Msg("caché no disponible; lectura directa")
	}
	if hit {
		return nil
	}

	// La carga es compartida por todos los que esperan la clave: no depende de la
	// cancelación de quien la inició. Cada llamador deja de esperar con su propio ctx.
	ch := c.group.DoChan(tenantID+"\x00"+key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTTL)
		defer cancel()
		epoch := c.epoch(tenantID)
		val, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("cache fetch: %w", err)
		}
		// una invalidación durante la carga vuelve dudoso el valor: se devuelve pero no se guarda
		if c.epoch(tenantID) == epoch {
			if err := c.set(loadCtx, key, tenantID, op, raw, 0); err != nil {
				c.log.Warn().Err(err).Str("tenant_id", tenantID).Str("op", op).Msg("no se pudo guardar en caché")
			}
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return r.Err
		}
		return json.Unmarshal(r.Val.([]byte), dst)
	}
}

// InvalidateTenant elimina todas las entradas del tenant.
func (c *TenantCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("cache: tenant vacío")
	}
	c.bump(tenantID)
	pattern := c.keyFn(c.prefix, QuoteGlob(tenantID), "*", "*")
	if _, err := c.backend.DeletePattern(ctx, pattern); err != nil {
		return fmt.Errorf("invalidar tenant: %w", err)
	}
	return nil
}

// InvalidatePattern elimina las entradas del tenant cuya operación coincide con opPattern (glob).
func (c *TenantCache) InvalidatePattern(ctx context.Context, tenantID, opPattern string) error {
	if tenantID == "" {
		return fmt.Errorf("cache: tenant vacío")
	}
	if opPattern == "" {
		return fmt.Errorf("cache: patrón vacío")
	}
	c.bump(tenantID)
	pattern := c.keyFn(c.prefix, QuoteGlob(tenantID), opPattern, "*")
	if _, err := c.backend.DeletePattern(ctx, pattern); err != nil {
		return fmt.Errorf("invalidar patrón %s: %w", opPattern, err)
	}
	return nil
}

func (c *TenantCache) evict(ctx context.Context, key string) {
	if err := c.backend.Delete(ctx, key); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("no se pudo desalojar la entrada de caché")
	}
}

func (c *TenantCache) epoch(tenantID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochs[tenantID]
}

func (c *TenantCache) bump(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epochs[tenantID]++
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// QuoteGlob escapa los metacaracteres glob de s.
func QuoteGlob(s string) string { return globReplacer.Replace(s) }
