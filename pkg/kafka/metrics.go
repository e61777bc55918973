package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProducerMessages counts produced messages by topic and result
// ("ok" or "error"). Async writes are counted when the batch completes.
var ProducerMessages = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kafka_producer_messages_total",
		Help: "Total number of Kafka messages produced, by topic and result",
	},
	[]string{"topic", "result"},
)
