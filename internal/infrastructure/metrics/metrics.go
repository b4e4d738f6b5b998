package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics métricas del ledger de inventario y de la caché por tenant.
type Metrics struct {
	Movements            *prometheus.CounterVec
	MovementDuration     *prometheus.HistogramVec
	Resets               *prometheus.CounterVec
	InvalidationFailures *prometheus.CounterVec
	CacheRequests        *prometheus.CounterVec
	CacheIsolation       prometheus.Counter
}

// New registra las métricas en reg. Con nil usa el registro global (prometheus.DefaultRegisterer).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Movements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_movements_total",
			Help: "Movimientos procesados por tipo y resultado (committed, rejected, failed)",
		}, []string{"kind", "outcome"}),
		MovementDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_movement_duration_seconds",
			Help:    "Duración de un movimiento, de la validación al commit",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"kind"}),
		Resets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_resets_total",
			Help: "Resets de escuela por resultado",
		}, []string{"outcome"}),
		InvalidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_cache_invalidation_failures_total",
			Help: "Invalidaciones de caché fallidas después del commit (pattern, tenant)",
		}, []string{"scope"}),
		CacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_cache_requests_total",
			Help: "Lecturas de caché por resultado (hit, miss, error)",
		}, []string{"result"}),
		CacheIsolation: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_cache_isolation_violations_total",
			Help: "Entradas de caché cuyo tenant dueño no coincide con el solicitante (desalojadas)",
		}),
	}
}

// ObserveMovement registra un movimiento terminado.
func (m *Metrics) ObserveMovement(kind, outcome string, d time.Duration) {
	m.Movements.WithLabelValues(kind, outcome).Inc()
	m.MovementDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveReset registra un reset terminado.
func (m *Metrics) ObserveReset(outcome string) {
	m.Resets.WithLabelValues(outcome).Inc()
}

// InvalidationFailed registra una invalidación fallida.
func (m *Metrics) InvalidationFailed(scope string) {
	m.InvalidationFailures.WithLabelValues(scope).Inc()
}

// CacheHit, CacheMiss y CacheError cuentan lecturas de caché.
func (m *Metrics) CacheHit()   { m.CacheRequests.WithLabelValues("hit").Inc() }
func (m *Metrics) CacheMiss()  { m.CacheRequests.WithLabelValues("miss").Inc() }
func (m *Metrics) CacheError() { m.CacheRequests.WithLabelValues("error").Inc() }

// IsolationViolation cuenta una entrada ajena desalojada.
func (m *Metrics) IsolationViolation() { m.CacheIsolation.Inc() }
