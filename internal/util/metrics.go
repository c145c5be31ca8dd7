package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders placed",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order placements",
	}, []string{"reason"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of the checkout transaction",
		Buckets: prometheus.DefBuckets,
	})

	CheckoutCleanupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_cleanup_failures_total",
		Help: "Total number of failed post-commit checkout steps",
	}, []string{"step"})

	ProductsSoldOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_sold_out_total",
		Help: "Total number of products drained to zero stock by checkouts",
	})

	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart mutations",
	}, []string{"op"})

	UserLoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "user_logins_total",
		Help: "Total number of login attempts",
	}, []string{"result"})

	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Total number of cache lookups",
	}, []string{"cache", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
