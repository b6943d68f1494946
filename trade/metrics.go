package trade

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/escrow"
)

// defines prometheus metrics
var (
	promDeposits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_trade_deposits_total",
		Help: "total number of deposits accepted in escrow",
	})

	promRejectedDeposits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_trade_deposits_rejected_total",
		Help: "total number of deposits refused by the rules",
	})

	promSettlements = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_trade_settlements_total",
		Help: "total number of instances settled",
	})

	promCancellations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_trade_cancellations_total",
		Help: "total number of instances cancelled",
	})

	promViolations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_trade_conservation_violations_total",
		Help: "total number of reallocations refused for not conserving quantities",
	})

	promOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_trade_open_instances",
		Help: "number of instances that are not terminal",
	})
)

func init() {
	escrow.PromCollectors = append(escrow.PromCollectors, promDeposits,
		promRejectedDeposits, promSettlements, promCancellations, promViolations, promOpen)
}
