package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nexusarena/payment-service/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestWalletMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_wallets.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS user_wallets",
		"CHECK (balance_cents >= 0)",
		"CHECK (balance_after_cents >= 0)",
		"ux_wallet_transactions_reference",
		"ON wallet_transactions (reference_type, reference_id, type)",
		"DROP TABLE IF EXISTS wallet_transactions",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSubscriptionMigrationLimitsLiveSubscriptions(t *testing.T) {
	content := readMigration(t, "*_create_subscriptions.sql")

	checks := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_user_live",
		"WHERE status IN ('active', 'trialing')",
		"provider_subscription_id text NOT NULL UNIQUE",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPayoutMigrationEnforcesMinimum(t *testing.T) {
	content := readMigration(t, "*_create_payouts.sql")
	if !strings.Contains(content, "CHECK (amount_cents >= 100)") {
		t.Errorf("missing payout minimum check")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Ledger Index!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_ledger_index.sql") {
		t.Fatalf("unexpected filename %q", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration invalid: %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestCreateSQLMigrationStaysAfterNewestVersion(t *testing.T) {
	dir := t.TempDir()
	future := filepath.Join(dir, "29991231235959_future_change.sql")
	if err := os.WriteFile(future, []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"), 0o644); err != nil {
		t.Fatalf("seed migration: %v", err)
	}

	path, err := migrate.CreateSQLMigration(dir, "backfill payout fees")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "30000101000000_backfill_payout_fees.sql" {
		t.Fatalf("expected version after newest, got %q", filepath.Base(path))
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration invalid: %v", err)
	}
}

func TestValidateDirRejectsBrokenAnnotations(t *testing.T) {
	cases := map[string]string{
		"unterminated block": "-- +goose Up\n-- +goose StatementBegin\nCREATE TABLE t (id int);\n-- +goose Down\nDROP TABLE t;\n",
		"down before up":     "-- +goose Down\nDROP TABLE t;\n-- +goose Up\nCREATE TABLE t (id int);\n",
		"stray end":          "-- +goose Up\nCREATE TABLE t (id int);\n-- +goose StatementEnd\n-- +goose Down\nDROP TABLE t;\n",
		"missing down":       "-- +goose Up\nCREATE TABLE t (id int);\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "20260401000000_broken.sql"), []byte(body), 0o644); err != nil {
				t.Fatalf("write migration: %v", err)
			}
			if err := migrate.ValidateDir(dir); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
