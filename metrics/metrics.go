package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jersey_orders_created_total",
		Help: "Total number of orders created by the customer flow.",
	})

	OrdersDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jersey_orders_deleted_total",
		Help: "Total number of orders hard-deleted before payment.",
	})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jersey_transitions_total",
		Help: "Lifecycle actions applied, by action and outcome.",
	},
		[]string{"action", "outcome"},
	)

	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jersey_store_errors_total",
		Help: "Order store failures, by operation and error class.",
	},
		[]string{"operation", "class"},
	)

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jersey_notifications_total",
		Help: "Notification attempts, by rule and ledger status.",
	},
		[]string{"rule", "status"},
	)

	PanelCacheItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jersey_panel_cache_items",
		Help: "Current number of orders cached by each admin panel.",
	},
		[]string{"panel"},
	)

	ChangeEventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jersey_change_events_published_total",
		Help: "Change events handed to the change feed, by outcome.",
	},
		[]string{"outcome"},
	)
)
