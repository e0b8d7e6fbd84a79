package model

import "time"

// SmartPlugReading is the canonical record of one home-automation device for
// one poll cycle.
type SmartPlugReading struct {
	DeviceID                 string   `json:"device_id"`
	SwitchState              Tristate `json:"switch_state"`
	RawSwitchState           *string  `json:"raw_switch_state,omitempty"`
	PowerMilliwatts          *int64   `json:"power_mw,omitempty"`
	TemperatureTenthsCelsius *int64   `json:"temperature_dc,omitempty"`
	ProductName              *string  `json:"product_name,omitempty"`
	DeviceName               *string  `json:"device_name,omitempty"`
	Manufacturer             *string  `json:"manufacturer,omitempty"`
	FirmwareVersion          *string  `json:"firmware_version,omitempty"`
	Present                  Tristate `json:"present"`

	// Raw named power fields as reported by the device.
	MultimeterPower *int64 `json:"multimeter_power,omitempty"` // 1/100 W
	SwitchPower     *int64 `json:"switch_power,omitempty"`     // mW

	Thermostat *ThermostatFields `json:"thermostat,omitempty"`

	// IntervalCost is the price of drawing PowerMilliwatts for one collect
	// interval. Set by the writer, not the device.
	IntervalCost *float64 `json:"interval_cost_eur,omitempty"`
}

// ThermostatFields holds the radiator-controller values. Temperatures are in
// 1/10 °C.
type ThermostatFields struct {
	SetTemperature     *int64  `json:"set_temperature,omitempty"`
	ReduceTemperature  *int64  `json:"reduce_temperature,omitempty"`
	ComfortTemperature *int64  `json:"comfort_temperature,omitempty"`
	ValveStatus        *string `json:"valve_status,omitempty"`
}

// RouterStatus is the router connectivity summary for one poll cycle.
type RouterStatus struct {
	Online            Tristate `json:"online"`
	ConnectionStatus  *string  `json:"connection_status,omitempty"`
	ExternalIP        *string  `json:"external_ip,omitempty"`
	ActiveDeviceCount *int64   `json:"active_devices,omitempty"`
}

// RouterSnapshot is what the router-status collector produces per cycle.
type RouterSnapshot struct {
	Status      RouterStatus       `json:"status"`
	SmartPlugs  []SmartPlugReading `json:"smart_plugs"`
	CollectedAt time.Time          `json:"collected_at"`
}

type SpeedtestResult struct {
	PingMs       float64 `json:"ping_ms"`
	DownloadMbps float64 `json:"download_mbps"`
	UploadMbps   float64 `json:"upload_mbps"`
	ServerName   string  `json:"server_name,omitempty"`
}

type WeatherReading struct {
	Location           string  `json:"location"`
	TemperatureCelsius float64 `json:"temperature_celsius"`
	FeelsLikeCelsius   float64 `json:"feels_like_celsius"`
	HumidityPercent    int     `json:"humidity"`
	PressureHpa        int     `json:"pressure"`
	Condition          *string `json:"condition,omitempty"`
	Description        *string `json:"description,omitempty"`
	WindSpeed          float64 `json:"wind_speed"`
	CloudsPercent      int     `json:"clouds"`
}

// LiveMeasurement is one pushed message of the energy provider's realtime
// channel.
type LiveMeasurement struct {
	Timestamp              time.Time `json:"timestamp"`
	Power                  float64   `json:"power"`
	PowerProduction        *float64  `json:"power_production,omitempty"`
	MinPower               *float64  `json:"min_power,omitempty"`
	AveragePower           *float64  `json:"average_power,omitempty"`
	MaxPower               *float64  `json:"max_power,omitempty"`
	AccumulatedConsumption *float64  `json:"accumulated_consumption,omitempty"`
	AccumulatedCost        *float64  `json:"accumulated_cost,omitempty"`
	Currency               *string   `json:"currency,omitempty"`
	VoltagePhase1          *float64  `json:"voltage_phase1,omitempty"`
	VoltagePhase2          *float64  `json:"voltage_phase2,omitempty"`
	VoltagePhase3          *float64  `json:"voltage_phase3,omitempty"`
	CurrentL1              *float64  `json:"current_l1,omitempty"`
	CurrentL2              *float64  `json:"current_l2,omitempty"`
	CurrentL3              *float64  `json:"current_l3,omitempty"`
}

// ConsumptionRecord is a historical bucket covering [From, To).
type ConsumptionRecord struct {
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	ConsumptionKWh  *float64  `json:"consumption_kwh,omitempty"`
	ConsumptionUnit *string   `json:"consumption_unit,omitempty"`
	Cost            *float64  `json:"cost,omitempty"`
	UnitPrice       *float64  `json:"unit_price,omitempty"`
	UnitPriceVAT    *float64  `json:"unit_price_vat,omitempty"`
}

// ProviderPrice is the energy provider's price for the interval that starts
// at StartsAt.
type ProviderPrice struct {
	StartsAt time.Time `json:"starts_at"`
	Total    *float64  `json:"total,omitempty"`
	Energy   *float64  `json:"energy,omitempty"`
	Tax      *float64  `json:"tax,omitempty"`
}

// PriceEntry is the locally configured electricity price. A nil ValidTo is
// open-ended.
type PriceEntry struct {
	ID          int64      `json:"id"`
	PricePerKwh float64    `json:"price_per_kwh"`
	ValidFrom   time.Time  `json:"valid_from"`
	ValidTo     *time.Time `json:"valid_to,omitempty"`
	Description string     `json:"description"`
}
