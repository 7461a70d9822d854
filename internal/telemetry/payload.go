package telemetry

// Payload is the closed set of typed sample bodies. The dynamic key/value
// payloads of upstream feeds are mapped onto one variant per (source, type)
// pair at the device boundary; unknown pairs travel as Opaque.
//
// Fields returns a fresh numeric view of the payload for generic consumers
// (quality scoring, distribution). Values are included only when set; they
// are not guaranteed finite, since devices can emit NaN on bad reads.
//
// PrimaryValue is the representative scalar appended to the temporal series
// for this payload's kind, false when none applies.
type Payload interface {
	Kind() Kind
	Fields() map[string]float64
	PrimaryValue() (float64, bool)
}

// Opt wraps a literal for optional payload fields.
func Opt(v float64) *float64 { return &v }

// Vec3 is an x/y/z triple in simulator world units.
type Vec3 [3]float64

// Quat is an x/y/z/w orientation quaternion.
type Quat [4]float64

func boolField(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func putOpt(m map[string]float64, key string, v *float64) {
	if v != nil {
		m[key] = *v
	}
}

// Physiological carries wearable vitals. Heart rate is the series value.
type Physiological struct {
	HeartRate       float64
	HRV             *float64
	SkinConductance *float64
	RespirationRate *float64
}

func (Physiological) Kind() Kind { return Kind{SourceHuman, TypePhysiological} }

func (p Physiological) Fields() map[string]float64 {
	m := map[string]float64{"heartRate": p.HeartRate}
	putOpt(m, "hrv", p.HRV)
	putOpt(m, "skinConductance", p.SkinConductance)
	putOpt(m, "respirationRate", p.RespirationRate)
	return m
}

func (p Physiological) PrimaryValue() (float64, bool) { return p.HeartRate, true }

// Behavioral carries eye-tracking derived measures. The series value is the
// saccade rate when known, otherwise horizontal gaze.
type Behavioral struct {
	GazeX           float64
	GazeY           float64
	Confidence      float64
	Worn            bool
	PupilDiameterMM *float64
	FixationMS      *float64
	SaccadeRate     *float64
	BlinkRate       *float64
}

func (Behavioral) Kind() Kind { return Kind{SourceHuman, TypeBehavioral} }

func (b Behavioral) Fields() map[string]float64 {
	m := map[string]float64{
		"gazeX":      b.GazeX,
		"gazeY":      b.GazeY,
		"confidence": b.Confidence,
		"worn":       boolField(b.Worn),
	}
	putOpt(m, "pupilDiameterMm", b.PupilDiameterMM)
	putOpt(m, "fixationMs", b.FixationMS)
	putOpt(m, "saccadeRate", b.SaccadeRate)
	putOpt(m, "blinkRate", b.BlinkRate)
	return m
}

func (b Behavioral) PrimaryValue() (float64, bool) {
	if b.SaccadeRate != nil {
		return *b.SaccadeRate, true
	}
	return b.GazeX, true
}

// SelfReport carries operator-entered ratings, each in [0,1].
type SelfReport struct {
	Workload float64
	Fatigue  *float64
	Stress   *float64
}

func (SelfReport) Kind() Kind { return Kind{SourceHuman, TypeSelfReport} }

func (s SelfReport) Fields() map[string]float64 {
	m := map[string]float64{"workload": s.Workload}
	putOpt(m, "fatigue", s.Fatigue)
	putOpt(m, "stress", s.Stress)
	return m
}

func (s SelfReport) PrimaryValue() (float64, bool) { return s.Workload, true }

// Performance carries task performance measures.
type Performance struct {
	Accuracy   float64
	ReactionMS float64
	ErrorRate  *float64
}

func (Performance) Kind() Kind { return Kind{SourceHuman, TypePerformance} }

func (p Performance) Fields() map[string]float64 {
	m := map[string]float64{"accuracy": p.Accuracy, "reactionMs": p.ReactionMS}
	putOpt(m, "errorRate", p.ErrorRate)
	return m
}

func (p Performance) PrimaryValue() (float64, bool) { return p.ReactionMS, true }

// VehicleTelemetry is the flattened per-tick vehicle state from a simulator
// link. Speed is the series value.
type VehicleTelemetry struct {
	Position     Vec3
	Velocity     Vec3
	Acceleration *Vec3
	Rotation     Quat
	HeadingDeg   float64
	Throttle     float64
	Brake        float64
	Steering     float64
	Gear         int
	SpeedMPS     float64
	AltitudeM    float64
	EngineRPM    float64
	FuelPct      float64
	DamagePct    *float64
}

func (VehicleTelemetry) Kind() Kind { return Kind{SourceSimulator, TypeTelemetry} }

func (v VehicleTelemetry) Fields() map[string]float64 {
	m := map[string]float64{
		"positionX":  v.Position[0],
		"positionY":  v.Position[1],
		"positionZ":  v.Position[2],
		"velocityX":  v.Velocity[0],
		"velocityY":  v.Velocity[1],
		"velocityZ":  v.Velocity[2],
		"headingDeg": v.HeadingDeg,
		"throttle":   v.Throttle,
		"brake":      v.Brake,
		"steering":   v.Steering,
		"gear":       float64(v.Gear),
		"speed":      v.SpeedMPS,
		"altitude":   v.AltitudeM,
		"engineRpm":  v.EngineRPM,
		"fuel":       v.FuelPct,
	}
	if v.Acceleration != nil {
		m["accelerationX"] = v.Acceleration[0]
		m["accelerationY"] = v.Acceleration[1]
		m["accelerationZ"] = v.Acceleration[2]
	}
	putOpt(m, "damage", v.DamagePct)
	return m
}

func (v VehicleTelemetry) PrimaryValue() (float64, bool) { return v.SpeedMPS, true }

// Systems carries aircraft/vehicle systems state. Status is an overall
// health scalar in [0,1].
type Systems struct {
	Status      float64
	GearDown    bool
	AutopilotOn bool
	FlapsPct    *float64
}

func (Systems) Kind() Kind { return Kind{SourceSimulator, TypeSystems} }

func (s Systems) Fields() map[string]float64 {
	m := map[string]float64{
		"status":    s.Status,
		"gearDown":  boolField(s.GearDown),
		"autopilot": boolField(s.AutopilotOn),
	}
	putOpt(m, "flapsPct", s.FlapsPct)
	return m
}

func (s Systems) PrimaryValue() (float64, bool) { return s.Status, true }

// Dynamics carries body-frame motion measures.
type Dynamics struct {
	GForce       float64
	YawRateDPS   *float64
	PitchRateDPS *float64
	RollRateDPS  *float64
	SlipDeg      *float64
}

func (Dynamics) Kind() Kind { return Kind{SourceSimulator, TypeDynamics} }

func (d Dynamics) Fields() map[string]float64 {
	m := map[string]float64{"gForce": d.GForce}
	putOpt(m, "yawRate", d.YawRateDPS)
	putOpt(m, "pitchRate", d.PitchRateDPS)
	putOpt(m, "rollRate", d.RollRateDPS)
	putOpt(m, "slipDeg", d.SlipDeg)
	return m
}

func (d Dynamics) PrimaryValue() (float64, bool) { return d.GForce, true }

// SimEnvironment carries the simulator's own environment model.
type SimEnvironment struct {
	VisibilityM     float64
	WindSpeedMPS    *float64
	TemperatureC    *float64
	PrecipitationMM *float64
}

func (SimEnvironment) Kind() Kind { return Kind{SourceSimulator, TypeEnvironment} }

func (e SimEnvironment) Fields() map[string]float64 {
	m := map[string]float64{"visibility": e.VisibilityM}
	putOpt(m, "windSpeed", e.WindSpeedMPS)
	putOpt(m, "temperature", e.TemperatureC)
	putOpt(m, "precipitation", e.PrecipitationMM)
	return m
}

func (e SimEnvironment) PrimaryValue() (float64, bool) { return e.VisibilityM, true }

// Weather carries external weather service observations.
type Weather struct {
	WindSpeedMPS    float64
	VisibilityM     float64
	WindGustMPS     *float64
	TemperatureC    *float64
	PrecipitationMM *float64
	CloudCoverPct   *float64
}

func (Weather) Kind() Kind { return Kind{SourceExternal, TypeWeather} }

func (w Weather) Fields() map[string]float64 {
	m := map[string]float64{
		"windSpeed":  w.WindSpeedMPS,
		"visibility": w.VisibilityM,
	}
	putOpt(m, "windGust", w.WindGustMPS)
	putOpt(m, "temperature", w.TemperatureC)
	putOpt(m, "precipitation", w.PrecipitationMM)
	putOpt(m, "cloudCover", w.CloudCoverPct)
	return m
}

func (w Weather) PrimaryValue() (float64, bool) { return w.WindSpeedMPS, true }

// Traffic carries surrounding traffic density observations.
type Traffic struct {
	AircraftCount float64
	DensityPerKM2 *float64
	ClosestNM     *float64
}

func (Traffic) Kind() Kind { return Kind{SourceExternal, TypeTraffic} }

func (t Traffic) Fields() map[string]float64 {
	m := map[string]float64{"aircraftCount": t.AircraftCount}
	putOpt(m, "density", t.DensityPerKM2)
	putOpt(m, "closestNm", t.ClosestNM)
	return m
}

func (t Traffic) PrimaryValue() (float64, bool) { return t.AircraftCount, true }

// Navigation carries route progress measures.
type Navigation struct {
	DistanceToWaypointNM float64
	CrossTrackErrorNM    *float64
	BearingDeg           *float64
	ETASeconds           *float64
}

func (Navigation) Kind() Kind { return Kind{SourceExternal, TypeNavigation} }

func (n Navigation) Fields() map[string]float64 {
	m := map[string]float64{"distanceToWaypoint": n.DistanceToWaypointNM}
	putOpt(m, "crossTrackError", n.CrossTrackErrorNM)
	putOpt(m, "bearingDeg", n.BearingDeg)
	putOpt(m, "etaSeconds", n.ETASeconds)
	return m
}

func (n Navigation) PrimaryValue() (float64, bool) { return n.DistanceToWaypointNM, true }

// Communications carries radio state.
type Communications struct {
	FrequencyMHz  float64
	Volume        *float64
	ActiveStation string
}

func (Communications) Kind() Kind { return Kind{SourceExternal, TypeCommunications} }

func (c Communications) Fields() map[string]float64 {
	m := map[string]float64{"frequency": c.FrequencyMHz}
	putOpt(m, "volume", c.Volume)
	return m
}

func (c Communications) PrimaryValue() (float64, bool) { return c.FrequencyMHz, true }

// Opaque carries samples from kinds outside the enumerated set. Only the
// quality assessor and the distributor accept it; fusion ignores it.
type Opaque struct {
	K      Kind
	Values map[string]float64
}

func (o Opaque) Kind() Kind { return o.K }

func (o Opaque) Fields() map[string]float64 {
	m := make(map[string]float64, len(o.Values))
	for k, v := range o.Values {
		m[k] = v
	}
	return m
}

func (o Opaque) PrimaryValue() (float64, bool) {
	v, ok := o.Values["value"]
	return v, ok
}
