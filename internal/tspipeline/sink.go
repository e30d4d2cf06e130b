package tspipeline

// Sink is the TS Pipeline's output side (spec.md §4.6): a transport the
// Reader ships reframed TS or defragmented BBFRAMEs to. internal/publish
// implements this for each of the UDP/FIFO/MQTT transports; tspipeline
// only depends on the interface to avoid an import cycle back into
// internal/publish (which in turn depends on internal/status, not on
// tspipeline).
type Sink interface {
	Write(p []byte) error
}

// SinkProvider resolves the sink currently configured for a tuner,
// indirecting through internal/config so a runtime tsip command can
// repoint the Reader's output without the Reader holding a stale
// reference (spec.md §4.6: "a sink change takes effect on the next
// write, not mid-frame").
type SinkProvider interface {
	Current() Sink
}

// noopSink discards everything; used while Configuration has no sink
// configured for a tuner (SinkKind == config.SinkNone).
type noopSink struct{}

func (noopSink) Write(p []byte) error { return nil }
