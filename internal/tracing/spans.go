package tracing

// Span attribute keys.
const (
	AttrCommandID     = "command.id"
	AttrCommandType   = "command.type"
	AttrCommandSource = "command.source"
	AttrCommandActor  = "command.actor"

	AttrEventCount    = "events.count"
	AttrEventKind     = "event.kind"
	AttrEventSequence = "event.sequence"
	AttrEventEntity   = "event.entity_id"

	AttrErrorKind = "error.kind"
)

// Span names and events.
const (
	SpanPrefixCommand = "command.execute."
	EventAppended     = "event.appended"
)
