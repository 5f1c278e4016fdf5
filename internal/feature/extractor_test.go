package feature

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/securepay-ai/sentinel/internal/cache"
	"github.com/securepay-ai/sentinel/internal/domain"
	"github.com/securepay-ai/sentinel/internal/repository"
)

func newTestExtractor(t *testing.T) (*Extractor, domain.Repository) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "sentinel-feature-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	cfg := domain.DefaultConfig()
	return NewExtractor(repo, cache.NewLRUCache(1000), cfg), repo
}

func baseTx(id, sender string) *domain.TransactionRequest {
	return &domain.TransactionRequest{
		TransactionID:   id,
		Amount:          5000,
		Currency:        "BDT",
		SenderAccount:   sender,
		ReceiverAccount: "acct-receiver",
		Type:            domain.TypeP2P,
		Channel:         domain.ChannelApp,
		DeviceID:        "dev-1",
		CreatedAt:       time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
	}
}

func TestExtract(t *testing.T) {
	extractor, repo := newTestExtractor(t)
	ctx := context.Background()

	t.Run("SchemaComplete", func(t *testing.T) {
		vec, err := extractor.Extract(ctx, baseTx("tx-schema", "acct-schema"))
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}

		if vec.SchemaVersion != domain.FeatureSchemaVersion {
			t.Errorf("expected schema %s, got %s", domain.FeatureSchemaVersion, vec.SchemaVersion)
		}
		for _, name := range domain.FeatureNames {
			if !vec.Has(name) {
				t.Errorf("feature %s missing from vector", name)
			}
		}
		if len(vec.Values) != len(domain.FeatureNames) {
			t.Errorf("expected %d features, got %d", len(domain.FeatureNames), len(vec.Values))
		}
	})

	t.Run("ColdStartUsesNeutralDefaults", func(t *testing.T) {
		vec, err := extractor.Extract(ctx, baseTx("tx-cold", "acct-cold"))
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}

		if got := vec.Get(domain.FeatureKnownDevice); got != 1.0 {
			t.Errorf("cold start should not penalize device, got %v", got)
		}
		if got := vec.Get(domain.FeatureTypicalHour); got != 1.0 {
			t.Errorf("cold start should not penalize hour, got %v", got)
		}
		if got := vec.Get(domain.FeatureAmountZScore); got != 0.0 {
			t.Errorf("cold start zscore should be 0, got %v", got)
		}
		if got := vec.Get(domain.FeatureAccountAge); got != 0.0 {
			t.Errorf("cold start account age should be 0, got %v", got)
		}
		if len(vec.Defaulted) == 0 {
			t.Error("cold start should record defaulted features")
		}
		if len(vec.Missing) != 0 {
			t.Errorf("cold start is not a lookup failure, got missing=%v", vec.Missing)
		}

		// amount features never depend on the profile
		want := 5000.0 / 500000.0
		if got := vec.Get(domain.FeatureAmountNormalized); got != want {
			t.Errorf("expected amount_normalized %v, got %v", want, got)
		}
	})

	t.Run("ProfiledAccount", func(t *testing.T) {
		profile := &domain.AccountProfile{
			AccountID:         "acct-known",
			AvgAmount:         2000,
			StdAmount:         500,
			TxPerDay:          4,
			TypicalHours:      []int{9, 10, 11},
			KnownDevices:      []string{"dev-1", "dev-2"},
			KnownLocations:    []string{"Dhaka", "BD"},
			FrequentReceivers: []string{"acct-receiver"},
			AccountAgeDays:    730,
		}
		if err := repo.SaveAccountProfile(ctx, profile); err != nil {
			t.Fatalf("SaveAccountProfile failed: %v", err)
		}
		if err := repo.SaveAccountProfile(ctx, &domain.AccountProfile{AccountID: "acct-receiver"}); err != nil {
			t.Fatalf("SaveAccountProfile failed: %v", err)
		}

		tx := baseTx("tx-known", "acct-known")
		tx.Amount = 4000
		tx.Geo = &domain.Geo{City: "Dhaka", Country: "BD"}

		vec, err := extractor.Extract(ctx, tx)
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}

		if got := vec.Get(domain.FeatureAmountZScore); got != 4.0 {
			t.Errorf("expected zscore (4000-2000)/500 = 4.0, got %v", got)
		}
		if got := vec.Get(domain.FeatureAmountRatioAvg); got != 2.0 {
			t.Errorf("expected ratio 2.0, got %v", got)
		}
		if got := vec.Get(domain.FeatureTypicalHour); got != 1.0 {
			t.Errorf("10:30 UTC is a typical hour, got %v", got)
		}
		if got := vec.Get(domain.FeatureKnownDevice); got != 1.0 {
			t.Errorf("dev-1 is known, got %v", got)
		}
		if got := vec.Get(domain.FeatureDeviceSeenCount); got != 2.0 {
			t.Errorf("expected 2 known devices, got %v", got)
		}
		if got := vec.Get(domain.FeatureKnownLocation); got != 1.0 {
			t.Errorf("Dhaka is known, got %v", got)
		}
		if got := vec.Get(domain.FeatureFrequentReceiver); got != 1.0 {
			t.Errorf("receiver is frequent, got %v", got)
		}
		if got := vec.Get(domain.FeatureAccountAge); got != 1.0 {
			t.Errorf("730 days caps at 1.0, got %v", got)
		}
		if len(vec.Defaulted) != 0 {
			t.Errorf("profiled account should not default, got %v", vec.Defaulted)
		}
	})

	t.Run("UnknownDeviceAndOffHour", func(t *testing.T) {
		tx := baseTx("tx-odd", "acct-known")
		tx.DeviceID = "dev-stolen"
		tx.CreatedAt = time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC)

		vec, err := extractor.Extract(ctx, tx)
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}

		if got := vec.Get(domain.FeatureKnownDevice); got != 0.0 {
			t.Errorf("dev-stolen is unknown, got %v", got)
		}
		if got := vec.Get(domain.FeatureTypicalHour); got != 0.0 {
			t.Errorf("03:00 is not typical, got %v", got)
		}
	})

	t.Run("VelocityCountsPriorSubmissions", func(t *testing.T) {
		first, err := extractor.Extract(ctx, baseTx("tx-v1", "acct-velocity"))
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if got := first.Get(domain.FeatureVelocity1h); got != 0.0 {
			t.Errorf("first submission has no priors, got %v", got)
		}

		second, err := extractor.Extract(ctx, baseTx("tx-v2", "acct-velocity"))
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if got := second.Get(domain.FeatureVelocity1h); got != 1.0 {
			t.Errorf("second submission sees one prior, got %v", got)
		}
		if got := second.Get(domain.FeatureVelocity24h); got != 1.0 {
			t.Errorf("expected 24h velocity 1, got %v", got)
		}
	})

	t.Run("InternationalByGeo", func(t *testing.T) {
		tx := baseTx("tx-intl", "acct-intl")
		tx.Geo = &domain.Geo{Country: "US", City: "New York"}

		vec, err := extractor.Extract(ctx, tx)
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if got := vec.Get(domain.FeatureInternational); got != 1.0 {
			t.Errorf("US origin from BD home is international, got %v", got)
		}
	})

	t.Run("BlacklistedCounterparty", func(t *testing.T) {
		if err := repo.SaveAccountProfile(ctx, &domain.AccountProfile{
			AccountID:   "acct-mule",
			Blacklisted: true,
		}); err != nil {
			t.Fatalf("SaveAccountProfile failed: %v", err)
		}

		tx := baseTx("tx-mule", "acct-sender-x")
		tx.ReceiverAccount = "acct-mule"

		vec, err := extractor.Extract(ctx, tx)
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if got := vec.Get(domain.FeatureReceiverBlacklist); got != 1.0 {
			t.Errorf("receiver is blacklisted, got %v", got)
		}
	})

	t.Run("RiskTablesByChannelAndType", func(t *testing.T) {
		tx := baseTx("tx-risk", "acct-risk")
		tx.Type = domain.TypeCashOut
		tx.Channel = domain.ChannelATM

		vec, err := extractor.Extract(ctx, tx)
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if got := vec.Get(domain.FeatureChannelRisk); got != 0.5 {
			t.Errorf("expected atm channel risk 0.5, got %v", got)
		}
		if got := vec.Get(domain.FeatureTypeRisk); got != 0.5 {
			t.Errorf("expected cash_out type risk 0.5, got %v", got)
		}
	})
}
