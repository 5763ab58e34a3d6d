/*
	Copyright 2026 OpenVelo
*/

package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	LogLevel          string // sets the log level (zap log level values)
	LogFormat         string // text vs json
	LogFilter         string // zapfilter rules, e.g. "debug:bcst* info:*"
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry
	ProfilingPort     int    // port for profiling

	RecordDir    string // directory for activity files
	ProfilePath  string // path to the athlete profile (YAML)
	MachineClass string // machine type (bike, rower, elliptical, treadmill)
	UploadURL    string // endpoint that receives finished activities
	NatsURL      string // NATS server for live data mirroring (empty = off)
	TickInterval string // aggregation interval
	MaxRampRate  float64
	KeepUploaded bool // keep local files after successful upload
)
