package eventsourcing

// InstrumentationVersion identifies this library in emitted telemetry.
const InstrumentationVersion = "1.0.0"
