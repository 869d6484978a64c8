package metrics

import (
	"strconv"
	"time"

	"github.com/jhoicas/inventario-ledger/internal/application/inventory"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ inventory.Recorder = (*Recorder)(nil)

// Recorder métricas Prometheus del libro de inventario.
type Recorder struct {
	registry *prometheus.Registry

	// Movements movimientos procesados. Labels: kind, outcome
	Movements *prometheus.CounterVec
	// ApplyDuration latencia de ApplyMovement. Labels: kind
	ApplyDuration *prometheus.HistogramVec
	// StorageRetries reintentos por falla transitoria. Labels: operation
	StorageRetries *prometheus.CounterVec
	// ProjectionDrifts recálculos que encontraron diferencia. Labels: tenant
	ProjectionDrifts *prometheus.CounterVec
	// TransferCompensations reversiones de traslados. Labels: ok
	TransferCompensations *prometheus.CounterVec
}

// NewRecorder registra las métricas en un registro propio junto con las del proceso y del runtime.
func NewRecorder(namespace string) *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		Movements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_movements_total",
			Help:      "Movimientos de inventario procesados por tipo y resultado",
		}, []string{"kind", "outcome"}),
		ApplyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stock_movement_duration_seconds",
			Help:      "Duración de la aplicación de un movimiento",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"kind"}),
		StorageRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_retries_total",
			Help:      "Reintentos por fallas transitorias del almacenamiento",
		}, []string{"operation"}),
		ProjectionDrifts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projection_drifts_total",
			Help:      "Proyecciones corregidas por diferir del libro de movimientos",
		}, []string{"tenant"}),
		TransferCompensations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_compensations_total",
			Help:      "Traslados revertidos tras fallar la pata de entrada",
		}, []string{"ok"}),
	}
}

// Registry registro a exponer en /metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) MovementApplied(kind entity.MovementKind, outcome string, elapsed time.Duration) {
	k := string(kind)
	if !kind.Valid() {
		k = "invalid"
	}
	r.Movements.WithLabelValues(k, outcome).Inc()
	r.ApplyDuration.WithLabelValues(k).Observe(elapsed.Seconds())
}

func (r *Recorder) StorageRetry(operation string) {
	r.StorageRetries.WithLabelValues(operation).Inc()
}

func (r *Recorder) ProjectionDrift(tenantID string) {
	r.ProjectionDrifts.WithLabelValues(tenantID).Inc()
}

func (r *Recorder) TransferCompensated(ok bool) {
	r.TransferCompensations.WithLabelValues(strconv.FormatBool(ok)).Inc()
}
