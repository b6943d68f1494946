package journal

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/escrow"
)

var promRecords = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "escrow_journal_records_total",
	Help: "total number of outcomes recorded in the journal",
})

func init() {
	escrow.PromCollectors = append(escrow.PromCollectors, promRecords)
}
