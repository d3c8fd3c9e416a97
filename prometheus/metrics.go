package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Metrics holds every collector the service exports
type Metrics struct {
	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	AuthAttemptsCounter prometheus.Counter
	AuthSuccessCounter  prometheus.Counter
	AuthErrorsCounter   *prometheus.CounterVec

	// Database operation metrics
	DbOperationDuration *prometheus.HistogramVec

	// Kitchen metrics
	ServingsTotal          *prometheus.CounterVec
	PortionsServedTotal    *prometheus.CounterVec
	InsufficientStockTotal *prometheus.CounterVec
	ProductStockGauge      *prometheus.GaugeVec
}

// InitMetrics registers the collectors on the default registry
func InitMetrics(prefix string) *Metrics {
	return New(prometheus.DefaultRegisterer, prefix)
}

// New registers the collectors on reg with the given name prefix
func New(reg prometheus.Registerer, prefix string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HttpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HttpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		AuthAttemptsCounter: factory.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_auth_attempts_total",
				Help: "Total number of authentication attempts",
			},
		),
		AuthSuccessCounter: factory.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_auth_success_total",
				Help: "Total number of successful authentications",
			},
		),
		AuthErrorsCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_auth_errors_total",
				Help: "Total number of authentication errors",
			},
			[]string{"type"},
		),
		DbOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_db_operation_duration_seconds",
				Help:    "Duration of database operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation_type"},
		),
		ServingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_servings_total",
				Help: "Total number of serve attempts by result",
			},
			[]string{"result"},
		),
		PortionsServedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_portions_served_total",
				Help: "Total number of portions served by meal",
			},
			[]string{"meal"},
		),
		InsufficientStockTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_insufficient_stock_total",
				Help: "Total number of servings rejected because of a product",
			},
			[]string{"product"},
		),
		ProductStockGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: prefix + "_product_stock",
				Help: "Current stock level per product in its own unit",
			},
			[]string{"product_id", "product_name", "unit"},
		),
	}
}

// ServingRecorded counts a committed serving
func (m *Metrics) ServingRecorded(mealName string, portions int) {
	m.ServingsTotal.WithLabelValues("success").Inc()
	m.PortionsServedTotal.WithLabelValues(mealName).Add(float64(portions))
}

// ServingRejected counts a serving that was not committed
func (m *Metrics) ServingRejected(reason string) {
	m.ServingsTotal.WithLabelValues(reason).Inc()
}

// InsufficientStock counts the product that blocked a serving
func (m *Metrics) InsufficientStock(productName string) {
	m.InsufficientStockTotal.WithLabelValues(productName).Inc()
}

// StockLevel updates the gauge for a product
func (m *Metrics) StockLevel(productID uint, name, unit string, quantity decimal.Decimal) {
	m.ProductStockGauge.
		WithLabelValues(strconv.FormatUint(uint64(productID), 10), name, unit).
		Set(quantity.InexactFloat64())
}

// RecordAuthAttempt counts a login attempt
func (m *Metrics) RecordAuthAttempt() {
	m.AuthAttemptsCounter.Inc()
}

// RecordAuthSuccess counts a successful login
func (m *Metrics) RecordAuthSuccess() {
	m.AuthSuccessCounter.Inc()
}

// RecordAuthError counts an authentication failure by type
func (m *Metrics) RecordAuthError(errorType string) {
	m.AuthErrorsCounter.WithLabelValues(errorType).Inc()
}

// TrackDBOperation returns a function that records the duration of a database operation
func (m *Metrics) TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		m.DbOperationDuration.WithLabelValues(operationType).Observe(time.Since(startTime).Seconds())
	}
}

const startKey = "metrics:start"

// InstrumentDB times every gorm create, query, update and delete
func (m *Metrics) InstrumentDB(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(startKey, time.Now())
	}
	after := func(op string) func(tx *gorm.DB) {
		track := m.TrackDBOperation(op)
		return func(tx *gorm.DB) {
			if v, ok := tx.InstanceGet(startKey); ok {
				if start, ok := v.(time.Time); ok {
					track(start)
				}
			}
		}
	}

	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("metrics:before_create", before); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("metrics:after_create", after("create")); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("metrics:before_query", before); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("metrics:after_query", after("query")); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("metrics:before_update", before); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("metrics:after_update", after("update")); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("metrics:before_delete", before); err != nil {
		return err
	}
	return cb.Delete().After("gorm:delete").Register("metrics:after_delete", after("delete"))
}
