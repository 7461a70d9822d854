// Package telemetry defines the data model shared across the runtime:
// source kinds, typed payload variants, samples with quality annotations,
// the canonical TelemetryFrame exchanged with simulators, and the command
// types routed back to devices.
package telemetry

// Source identifies the origin class of a sample.
type Source string

const (
	SourceHuman     Source = "human"
	SourceSimulator Source = "simulator"
	SourceExternal  Source = "external"
)

// Type identifies the data class within a source.
type Type string

const (
	TypePhysiological  Type = "physiological"
	TypeBehavioral     Type = "behavioral"
	TypeSelfReport     Type = "self_report"
	TypePerformance    Type = "performance"
	TypeTelemetry      Type = "telemetry"
	TypeSystems        Type = "systems"
	TypeDynamics       Type = "dynamics"
	TypeEnvironment    Type = "environment"
	TypeWeather        Type = "weather"
	TypeTraffic        Type = "traffic"
	TypeNavigation     Type = "navigation"
	TypeCommunications Type = "communications"
)

// Kind is the unique (source, type) pair keying streams, series and quality
// profiles.
type Kind struct {
	Source Source
	Type   Type
}

// Key renders the canonical map key, e.g. "human/physiological".
func (k Kind) Key() string { return string(k.Source) + "/" + string(k.Type) }

// Known reports whether the pair is one of the enumerated kinds.
func (k Kind) Known() bool {
	switch k.Source {
	case SourceHuman:
		switch k.Type {
		case TypePhysiological, TypeBehavioral, TypeSelfReport, TypePerformance:
			return true
		}
	case SourceSimulator:
		switch k.Type {
		case TypeTelemetry, TypeSystems, TypeDynamics, TypeEnvironment:
			return true
		}
	case SourceExternal:
		switch k.Type {
		case TypeWeather, TypeTraffic, TypeNavigation, TypeCommunications:
			return true
		}
	}
	return false
}
