package metrics

// Bundle ties together everything one rft process needs to expose
// metrics: the push-model Metrics set, the HTTP server that scrapes
// read from, and whichever pull collectors the caller wants attached
// once its engines exist.
type Bundle struct {
	Server  *MetricsServer
	Metrics *Metrics
}

// NewBundle starts from a fresh registry: it builds the push-model
// Metrics set and the MetricsServer that will expose it, but does not
// start the HTTP listener — call Server.Start once the caller is ready
// to accept scrapes, after attaching any pull collectors with
// AttachTransferStats/AttachDedupStats.
func NewBundle(listen, metricsPath, healthPath string, enablePprof bool) *Bundle {
	server := NewMetricsServer(listen, metricsPath, healthPath, enablePprof)
	return &Bundle{
		Server:  server,
		Metrics: NewMetrics(server.GetRegistry()),
	}
}

// AttachTransferStats registers a pull collector over a sender
// engine's live congestion and progress state.
func (b *Bundle) AttachTransferStats(stats TransferStats) {
	b.Server.MustRegisterCollector(NewTransferCollector(stats))
}

// AttachDedupStats registers a pull collector over a receiver
// engine's duplicate-frame guard.
func (b *Bundle) AttachDedupStats(stats DedupStats) {
	b.Server.MustRegisterCollector(NewDedupCollector(stats))
}
