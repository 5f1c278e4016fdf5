// Package feature builds the fixed-shape numeric vectors consumed by the
// rule engine, the scoring ensemble, and the explainer.
package feature

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/securepay-ai/sentinel/internal/domain"
	"github.com/securepay-ai/sentinel/internal/repository"
)

// Base risk per origination channel, calibrated offline.
var channelRisk = map[domain.Channel]float64{
	domain.ChannelApp:   0.1,
	domain.ChannelUSSD:  0.2,
	domain.ChannelWeb:   0.3,
	domain.ChannelAgent: 0.4,
	domain.ChannelATM:   0.5,
}

// Base risk per transaction type, calibrated offline.
var typeRisk = map[domain.TransactionType]float64{
	domain.TypeP2P:            0.2,
	domain.TypeP2M:            0.1,
	domain.TypeBillPayment:    0.05,
	domain.TypeMobileRecharge: 0.05,
	domain.TypeBankTransfer:   0.3,
	domain.TypeCashIn:         0.15,
	domain.TypeCashOut:        0.5,
	domain.TypeInternational:  0.7,
	domain.TypeSalary:         0.05,
	domain.TypeRefund:         0.1,
}

// profileFeatures lists the features that fall back to neutral defaults when
// the sender has no behavioral profile yet.
var profileFeatures = []string{
	domain.FeatureAmountZScore,
	domain.FeatureAmountRatioAvg,
	domain.FeatureFrequencyRatio,
	domain.FeatureTypicalHour,
	domain.FeatureKnownDevice,
	domain.FeatureDeviceSeenCount,
	domain.FeatureKnownLocation,
	domain.FeatureLocationConsistent,
	domain.FeatureFrequentReceiver,
	domain.FeatureAccountAge,
	domain.FeatureHistoricalFraud,
	domain.FeatureSenderBlacklisted,
}

// Extractor assembles feature vectors from the request, the sender's
// behavioral profile, and velocity counters. Profile reads go through the
// cache first; a missing profile is a cold-start account and yields neutral
// defaults, while an unreachable lookup is recorded as missing so the
// assessment can be marked degraded.
type Extractor struct {
	repo     domain.Repository
	cache    domain.Cache
	velocity *Tracker

	ceiling     float64
	homeCountry string
	profileTTL  time.Duration
}

// NewExtractor creates a feature extractor.
func NewExtractor(repo domain.Repository, cache domain.Cache, cfg *domain.Config) *Extractor {
	return &Extractor{
		repo:        repo,
		cache:       cache,
		velocity:    NewTracker(cache),
		ceiling:     cfg.Pipeline.AmountCeiling,
		homeCountry: cfg.Pipeline.HomeCountry,
		profileTTL:  cfg.Cache.ProfileTTL(),
	}
}

// Extract builds the feature vector for one transaction. The vector always
// carries every feature in the schema; lookups that fail only degrade the
// result, they never abort it.
func (e *Extractor) Extract(ctx context.Context, tx *domain.TransactionRequest) (*domain.FeatureVector, error) {
	if tx == nil {
		return nil, domain.ErrFeatureUnavailable
	}

	vec := &domain.FeatureVector{
		SchemaVersion: domain.FeatureSchemaVersion,
		Values:        make(map[string]float64, len(domain.FeatureNames)),
	}

	profile := e.lookupProfile(ctx, tx.SenderAccount, vec, "account_profile")
	if profile == nil {
		vec.Defaulted = append(vec.Defaulted, profileFeatures...)
	}

	v1h, v24h, velErr := e.velocity.Observe(ctx, tx.SenderAccount)
	if velErr != nil {
		vec.Missing = append(vec.Missing, "velocity")
		slog.Warn("velocity lookup failed, defaulting to zero",
			"transaction_id", tx.TransactionID,
			"error", velErr,
		)
	}

	e.amountFeatures(tx, profile, vec)
	e.velocityFeatures(profile, vec, v1h, v24h, velErr == nil)
	e.temporalFeatures(tx, profile, vec)
	e.deviceFeatures(tx, profile, vec)
	e.locationFeatures(tx, profile, vec)
	e.counterpartyFeatures(ctx, tx, profile, vec)
	e.historyFeatures(profile, vec)

	vec.Values[domain.FeatureChannelRisk] = channelRisk[tx.Channel]
	vec.Values[domain.FeatureTypeRisk] = typeRisk[tx.Type]

	return vec, nil
}

// lookupProfile reads the account profile through the cache. Returns nil for
// cold-start accounts and for lookup outages; an outage is also recorded in
// the vector's missing list under missLabel.
func (e *Extractor) lookupProfile(ctx context.Context, accountID string, vec *domain.FeatureVector, missLabel string) *domain.AccountProfile {
	cached, err := e.cache.GetProfile(ctx, accountID)
	if err != nil {
		slog.Debug("profile cache read failed", "account", accountID, "error", err)
	} else if cached != nil {
		return cached
	}

	p, err := e.repo.GetAccountProfile(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		vec.Missing = append(vec.Missing, missLabel)
		slog.Warn("profile lookup failed, using defaults",
			"account", accountID,
			"error", err,
		)
		return nil
	}

	if err := e.cache.SetProfile(ctx, accountID, p, e.profileTTL); err != nil {
		slog.Debug("profile cache write failed", "account", accountID, "error", err)
	}
	return p
}

func (e *Extractor) amountFeatures(tx *domain.TransactionRequest, p *domain.AccountProfile, vec *domain.FeatureVector) {
	normalized := 0.0
	if e.ceiling > 0 {
		normalized = math.Min(tx.Amount/e.ceiling, 1.0)
	}
	vec.Values[domain.FeatureAmountNormalized] = normalized

	zscore := 0.0
	ratio := 1.0
	if p != nil {
		if p.StdAmount > 0 {
			zscore = clamp((tx.Amount-p.AvgAmount)/p.StdAmount, -10, 10)
		}
		if p.AvgAmount > 0 {
			ratio = math.Min(tx.Amount/p.AvgAmount, 100)
		}
	}
	vec.Values[domain.FeatureAmountZScore] = zscore
	vec.Values[domain.FeatureAmountRatioAvg] = ratio
}

func (e *Extractor) velocityFeatures(p *domain.AccountProfile, vec *domain.FeatureVector, v1h, v24h int64, ok bool) {
	if !ok {
		vec.Values[domain.FeatureVelocity1h] = 0
		vec.Values[domain.FeatureVelocity24h] = 0
		vec.Values[domain.FeatureFrequencyRatio] = 0
		return
	}

	vec.Values[domain.FeatureVelocity1h] = float64(v1h)
	vec.Values[domain.FeatureVelocity24h] = float64(v24h)

	// Today's observed volume against the account's usual daily rate. Without
	// a profile baseline, the raw count stands in.
	if p != nil && p.TxPerDay > 0 {
		vec.Values[domain.FeatureFrequencyRatio] = float64(v24h) / p.TxPerDay
	} else {
		vec.Values[domain.FeatureFrequencyRatio] = float64(v24h)
	}
}

func (e *Extractor) temporalFeatures(tx *domain.TransactionRequest, p *domain.AccountProfile, vec *domain.FeatureVector) {
	hour := tx.CreatedAt.UTC().Hour()
	vec.Values[domain.FeatureHourOfDay] = float64(hour) / 23.0

	typical := 1.0
	if p != nil && len(p.TypicalHours) > 0 && !p.IsTypicalHour(hour) {
		typical = 0.0
	}
	vec.Values[domain.FeatureTypicalHour] = typical
}

func (e *Extractor) deviceFeatures(tx *domain.TransactionRequest, p *domain.AccountProfile, vec *domain.FeatureVector) {
	// Channels like USSD and agent carry no device id; that is not a signal.
	known := 1.0
	if tx.DeviceID != "" && p != nil && !p.KnowsDevice(tx.DeviceID) {
		known = 0.0
	}
	vec.Values[domain.FeatureKnownDevice] = known

	seen := 0.0
	if p != nil {
		seen = math.Min(float64(len(p.KnownDevices)), 10)
	}
	vec.Values[domain.FeatureDeviceSeenCount] = seen
}

func (e *Extractor) locationFeatures(tx *domain.TransactionRequest, p *domain.AccountProfile, vec *domain.FeatureVector) {
	known := 1.0
	consistency := 1.0

	if tx.Geo != nil && p != nil {
		knownCity := tx.Geo.City != "" && p.KnowsLocation(tx.Geo.City)
		knownCountry := tx.Geo.Country != "" && p.KnowsLocation(tx.Geo.Country)

		switch {
		case knownCity:
			known, consistency = 1.0, 1.0
		case knownCountry:
			known, consistency = 1.0, 0.5
		default:
			known, consistency = 0.0, 0.0
		}
	}

	vec.Values[domain.FeatureKnownLocation] = known
	vec.Values[domain.FeatureLocationConsistent] = consistency

	international := 0.0
	if tx.IsInternational(e.homeCountry) {
		international = 1.0
	}
	vec.Values[domain.FeatureInternational] = international
}

func (e *Extractor) counterpartyFeatures(ctx context.Context, tx *domain.TransactionRequest, p *domain.AccountProfile, vec *domain.FeatureVector) {
	frequent := 0.0
	if p != nil && p.IsFrequentReceiver(tx.ReceiverAccount) {
		frequent = 1.0
	}
	vec.Values[domain.FeatureFrequentReceiver] = frequent

	receiver := p
	if tx.ReceiverAccount != tx.SenderAccount {
		receiver = e.lookupProfile(ctx, tx.ReceiverAccount, vec, "receiver_profile")
	}

	blacklisted := 0.0
	if receiver != nil && receiver.Blacklisted {
		blacklisted = 1.0
	} else if receiver == nil {
		vec.Defaulted = append(vec.Defaulted, domain.FeatureReceiverBlacklist)
	}
	vec.Values[domain.FeatureReceiverBlacklist] = blacklisted
}

func (e *Extractor) historyFeatures(p *domain.AccountProfile, vec *domain.FeatureVector) {
	age := 0.0
	fraud := 0.0
	blacklisted := 0.0

	if p != nil {
		age = math.Min(float64(p.AccountAgeDays)/365.0, 1.0)
		fraud = math.Min(float64(p.HistoricalFraudCount)/5.0, 1.0)
		if p.Blacklisted {
			blacklisted = 1.0
		}
	}

	vec.Values[domain.FeatureAccountAge] = age
	vec.Values[domain.FeatureHistoricalFraud] = fraud
	vec.Values[domain.FeatureSenderBlacklisted] = blacklisted
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
