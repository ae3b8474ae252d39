package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    TopologyPeers = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "go_mesh",
        Name:      "topology_peers",
        Help:      "Current number of peers in the local topology view",
    })

    NodeEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_mesh",
        Name:      "node_events_total",
        Help:      "Total number of peer up/down transitions applied to the topology",
    }, []string{"type"})

    Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_mesh",
        Name:      "transitions_total",
        Help:      "Lifecycle operations by outcome (ok, error, prevented)",
    }, []string{"op", "result"})

    HookRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_mesh",
        Subsystem: "hooks",
        Name:      "runs_total",
        Help:      "Hook pipeline runs by name and final action",
    }, []string{"hook", "action"})

    // Channel-level pub/sub metrics
    MessagesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_mesh",
        Subsystem: "pubsub",
        Name:      "published_total",
        Help:      "Total number of messages published per channel",
    }, []string{"channel"})
    MessagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_mesh",
        Subsystem: "pubsub",
        Name:      "received_total",
        Help:      "Total number of messages received per channel",
    }, []string{"channel"})
    FramesMalformed = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_mesh",
        Subsystem: "pubsub",
        Name:      "malformed_frames_total",
        Help:      "Inbound frames dropped because they carry no channel separator",
    })
    Subscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "go_mesh",
        Subsystem: "pubsub",
        Name:      "subscriptions",
        Help:      "Number of channels this member is subscribed to",
    })

    // Transport socket metrics
    FramesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_mesh",
        Subsystem: "transport",
        Name:      "frames_sent_total",
        Help:      "Frames queued to connected subscribers",
    }, []string{"transport"})
    FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_mesh",
        Subsystem: "transport",
        Name:      "frames_dropped_total",
        Help:      "Frames dropped because a subscriber queue was full",
    }, []string{"transport"})
    Subscribers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Namespace: "go_mesh",
        Subsystem: "transport",
        Name:      "subscribers",
        Help:      "Subscriber connections attached to local publish sockets",
    }, []string{"transport"})
    Reconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_mesh",
        Subsystem: "transport",
        Name:      "reconnects_total",
        Help:      "Subscriber stream re-establishments after an error",
    }, []string{"transport"})

    GRPCConnDials = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_mesh",
        Subsystem: "grpc_conn",
        Name:      "dials_total",
        Help:      "Total number of new gRPC connections dialed",
    })
    GRPCConnReuse = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_mesh",
        Subsystem: "grpc_conn",
        Name:      "reuse_total",
        Help:      "Total number of gRPC connection reuses from cache",
    })
    GRPCConnEvictions = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_mesh",
        Subsystem: "grpc_conn",
        Name:      "evictions_total",
        Help:      "Total number of cached gRPC connections evicted",
    })
    GRPCConnActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "go_mesh",
        Subsystem: "grpc_conn",
        Name:      "active",
        Help:      "Number of active cached gRPC connections",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(TopologyPeers, NodeEvents, Transitions, HookRuns)
        prometheus.MustRegister(MessagesPublished, MessagesReceived, FramesMalformed, Subscriptions)
        prometheus.MustRegister(FramesSent, FramesDropped, Subscribers, Reconnects)
        prometheus.MustRegister(GRPCConnDials, GRPCConnReuse, GRPCConnEvictions, GRPCConnActive)
    })
}
