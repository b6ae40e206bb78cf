package extract

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "extraction_messages_processed_total",
		Help: "Messages retired from the unprocessed queue.",
	})
	listingsExtracted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "extraction_listings_total",
		Help: "Property listings stored, per tenant.",
	}, []string{"user"})
	batchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "extraction_batch_errors_total",
		Help: "Inference batches that failed or returned a result-count mismatch.",
	})
)

func init() {
	prometheus.MustRegister(messagesProcessed, listingsExtracted, batchErrors)
}
