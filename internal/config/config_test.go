package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/solar")
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("SOLAR_CONFIG", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rate, credit, err := cfg.Rates()
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if rate.String() != "52" || credit.String() != "30" {
		t.Fatalf("unexpected default rates %s %s", rate, credit)
	}
	if cfg.Billing.DueDay != 15 || cfg.SessionDuration() != 48*time.Hour || cfg.OpTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Schedule.MonthlyBilling != "0 2 1 * *" || len(cfg.Kafka.Brokers) != 0 {
		t.Fatalf("unexpected schedule/kafka defaults %+v", cfg)
	}
}

func TestLoadBillingAndBiddingEnvironment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("RATE_PER_KWH", "48.5")
	t.Setenv("CREDIT_RATE_PER_KWH", "25")
	t.Setenv("INVOICE_DUE_DAY", "10")
	t.Setenv("BID_SESSION_HOURS", "72")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rate, credit, err := cfg.Rates()
	if err != nil || rate.String() != "48.5" || credit.String() != "25" {
		t.Fatalf("unexpected rates %s %s %v", rate, credit, err)
	}
	if cfg.Billing.DueDay != 10 || cfg.SessionDuration() != 72*time.Hour {
		t.Fatalf("unexpected billing/bidding config %+v", cfg)
	}
}

func TestLoadRequiresSecretsForPostgres(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_DSN", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected missing dsn error")
	}

	t.Setenv("STORAGE_DRIVER", StorageMemory)
	if _, err := Load(); err != nil {
		t.Fatalf("memory storage must not need a dsn: %v", err)
	}

	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected missing jwt secret error")
	}
}

func TestLoadYAMLOverridesEnvironment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	path := filepath.Join(t.TempDir(), "solar.yaml")
	body := `
billing:
  rate_per_kwh: "48.50"
  due_day: 10
schedule:
  sweep: "@every 30s"
notify:
  templates:
    bid_selected: "selected {{.BidID}}"
op_timeout: 2s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("SOLAR_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rate, credit, _ := cfg.Rates()
	if rate.String() != "48.5" || credit.String() != "30" {
		t.Fatalf("unexpected rates %s %s", rate, credit)
	}
	if cfg.Billing.DueDay != 10 || cfg.Schedule.Sweep != "@every 30s" || cfg.OpTimeout != 2*time.Second {
		t.Fatalf("yaml overrides not applied: %+v", cfg)
	}
	if cfg.Notify.Templates["bid_selected"] == "" {
		t.Fatalf("template override missing")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	setBaseEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	bad := cfg
	bad.Billing.RatePerKWh = "-1"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected negative rate error")
	}
	bad = cfg
	bad.Billing.DueDay = 31
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected due day error")
	}
	bad = cfg
	bad.Redis.LockTTL = "soon"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected lock ttl error")
	}
}
