package live

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/victorpuello/kampus-sub004/core"
)

// Named threshold presets; applying one sets all five thresholds atomically.
const (
	PresetConservative = "conservative"
	PresetStandard     = "standard"
	PresetSensitive    = "sensitive"
)

var (
	ErrUnknownPreset = errors.New("unknown monitoring preset")

	presets = map[string]MonitoringConfig{
		PresetConservative: {
			WindowMinutes:      90,
			BlankRateThreshold: 0.30,
			InactivityMinutes:  15,
			SpikeThreshold:     12,
			SeriesLimit:        30,
		},
		PresetStandard: {
			WindowMinutes:      60,
			BlankRateThreshold: 0.25,
			InactivityMinutes:  10,
			SpikeThreshold:     8,
			SeriesLimit:        60,
		},
		PresetSensitive: {
			WindowMinutes:      45,
			BlankRateThreshold: 0.20,
			InactivityMinutes:  6,
			SpikeThreshold:     6,
			SeriesLimit:        90,
		},
	}
)

// MonitoringConfig is the set of tunable alerting thresholds echoed back by
// the backend on every snapshot.
type MonitoringConfig struct {
	WindowMinutes      int     `json:"window_minutes" query:"windowMinutes" validate:"required,min=5,max=240"`
	BlankRateThreshold float64 `json:"blank_rate_threshold" query:"blankRateThreshold" validate:"required,gt=0,lt=1"`
	InactivityMinutes  int     `json:"inactivity_minutes" query:"inactivityMinutes" validate:"required,min=1,max=120"`
	SpikeThreshold     int     `json:"spike_threshold" query:"spikeThreshold" validate:"required,min=1,max=100"`
	SeriesLimit        int     `json:"series_limit" query:"seriesLimit" validate:"required,min=10,max=500"`
}

func (mc *MonitoringConfig) Validate(validate *validator.Validate) error {
	if err := validate.Struct(mc); err != nil {
		return err
	}
	// cross-field rule the tags cannot express: the inactivity alert judges
	// silence within the KPI window, so it must fit inside it
	if mc.InactivityMinutes > mc.WindowMinutes {
		return core.NewValidationError(
			errors.New("inactivity_minutes exceeds window_minutes"),
			core.FieldError{Field: "inactivity_minutes", Error: "must not exceed window_minutes"},
		)
	}
	return nil
}

// Preset returns the config a named preset stands for.
func Preset(name string) (MonitoringConfig, error) {
	cfg, ok := presets[name]
	if !ok {
		return MonitoringConfig{}, errors.Wrap(ErrUnknownPreset, name)
	}
	return cfg, nil
}

// PresetNames lists the known presets.
func PresetNames() []string {
	return []string{PresetConservative, PresetStandard, PresetSensitive}
}
