package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inboundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatclient",
		Name:      "inbound_messages_total",
		Help:      "Messages delivered by the broker on subscribed topics.",
	})
	duplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatclient",
		Name:      "duplicates_dropped_total",
		Help:      "Inbound messages dropped by correlation-id dedup.",
	})
	integrityDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatclient",
		Name:      "integrity_dropped_total",
		Help:      "Direct messages dropped on checksum mismatch.",
	})
	decodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatclient",
		Name:      "decode_errors_total",
		Help:      "Inbound payloads that failed JSON decoding.",
	})
	serverErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatclient",
		Name:      "server_errors_total",
		Help:      "Error-status payloads surfaced as session errors.",
	})
)
