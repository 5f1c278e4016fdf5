package domain

import (
	"time"
)

// FeatureSchemaVersion travels with every vector so stored assessments can
// be tied to the feature definition that produced them.
const FeatureSchemaVersion = "v2"

// Feature names, in schema order. The order is part of the contract:
// explanation ranking and model inputs iterate features in this order, so
// reordering is a schema version change.
const (
	FeatureAmountNormalized   = "amount_normalized"
	FeatureAmountZScore       = "amount_zscore"
	FeatureAmountRatioAvg     = "amount_ratio_avg"
	FeatureVelocity1h         = "velocity_1h"
	FeatureVelocity24h        = "velocity_24h"
	FeatureFrequencyRatio     = "frequency_ratio"
	FeatureHourOfDay          = "hour_of_day"
	FeatureTypicalHour        = "is_typical_hour"
	FeatureKnownDevice        = "is_known_device"
	FeatureDeviceSeenCount    = "device_seen_count"
	FeatureKnownLocation      = "is_known_location"
	FeatureLocationConsistent = "location_consistency"
	FeatureInternational      = "is_international"
	FeatureFrequentReceiver   = "is_frequent_receiver"
	FeatureAccountAge         = "account_age"
	FeatureHistoricalFraud    = "historical_fraud"
	FeatureSenderBlacklisted  = "sender_blacklisted"
	FeatureReceiverBlacklist  = "receiver_blacklisted"
	FeatureChannelRisk        = "channel_risk"
	FeatureTypeRisk           = "type_risk"
)

// FeatureNames is the fixed iteration order for schema v2.
var FeatureNames = []string{
	FeatureAmountNormalized,
	FeatureAmountZScore,
	FeatureAmountRatioAvg,
	FeatureVelocity1h,
	FeatureVelocity24h,
	FeatureFrequencyRatio,
	FeatureHourOfDay,
	FeatureTypicalHour,
	FeatureKnownDevice,
	FeatureDeviceSeenCount,
	FeatureKnownLocation,
	FeatureLocationConsistent,
	FeatureInternational,
	FeatureFrequentReceiver,
	FeatureAccountAge,
	FeatureHistoricalFraud,
	FeatureSenderBlacklisted,
	FeatureReceiverBlacklist,
	FeatureChannelRisk,
	FeatureTypeRisk,
}

// FeatureVector is the fixed-shape numeric input to rules, scoring, and
// explanation. Built once per invocation and treated as read-only after
// construction. Defaulted lists features that fell back to cold-start
// defaults; Missing lists lookups that were unreachable (degradation, not
// cold start).
type FeatureVector struct {
	SchemaVersion string             `json:"schema_version"`
	Values        map[string]float64 `json:"values"`
	Defaulted     []string           `json:"defaulted,omitempty"`
	Missing       []string           `json:"missing,omitempty"`
}

// Get returns the named feature, or 0 for a name outside the schema.
func (v *FeatureVector) Get(name string) float64 {
	return v.Values[name]
}

// Has reports whether the vector carries the named feature.
func (v *FeatureVector) Has(name string) bool {
	_, ok := v.Values[name]
	return ok
}

// AccountProfile holds the behavioral aggregates for one account, maintained
// out-of-band by the profile updater after assessments are persisted. The
// pipeline only reads profiles. A missing profile is a cold-start account,
// not an error.
type AccountProfile struct {
	AccountID string `json:"account_id"`

	AvgAmount float64 `json:"avg_amount"`
	StdAmount float64 `json:"std_amount"`
	MaxAmount float64 `json:"max_amount"`

	TxPerDay   float64 `json:"tx_per_day"`
	TxPerWeek  float64 `json:"tx_per_week"`
	TxPerMonth float64 `json:"tx_per_month"`

	TypicalHours      []int    `json:"typical_hours,omitempty"`
	KnownDevices      []string `json:"known_devices,omitempty"`
	KnownLocations    []string `json:"known_locations,omitempty"`
	FrequentReceivers []string `json:"frequent_receivers,omitempty"`

	HistoricalFraudCount int  `json:"historical_fraud_count"`
	AccountAgeDays       int  `json:"account_age_days"`
	Blacklisted          bool `json:"blacklisted"`

	UpdatedAt time.Time `json:"updated_at"`
}

// KnowsDevice reports whether the device has been seen on this account.
func (p *AccountProfile) KnowsDevice(deviceID string) bool {
	for _, d := range p.KnownDevices {
		if d == deviceID {
			return true
		}
	}
	return false
}

// KnowsLocation reports whether the location string (city or country) has
// been seen on this account.
func (p *AccountProfile) KnowsLocation(loc string) bool {
	for _, l := range p.KnownLocations {
		if l == loc {
			return true
		}
	}
	return false
}

// IsTypicalHour reports whether the account usually transacts at this hour.
func (p *AccountProfile) IsTypicalHour(hour int) bool {
	for _, h := range p.TypicalHours {
		if h == hour {
			return true
		}
	}
	return false
}

// IsFrequentReceiver reports whether the account frequently pays receiver.
func (p *AccountProfile) IsFrequentReceiver(receiver string) bool {
	for _, r := range p.FrequentReceivers {
		if r == receiver {
			return true
		}
	}
	return false
}
