package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forkline-app/forkline-backend/pkg/migrate"
)

func TestLedgerMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_orders_wallets_ledger.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no ledger migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE wallets",
		"CHECK (balance >= 0)",
		"CHECK (pending_balance >= 0)",
		"CREATE TABLE ledger_entries",
		"CHECK (amount > 0)",
		"status text NOT NULL DEFAULT 'COMPLETED'",
		"balance_before numeric(12,2) NOT NULL DEFAULT 0",
		"CREATE UNIQUE INDEX idx_ledger_wallet_ref ON ledger_entries (wallet_id, reference)",
		"DROP TABLE IF EXISTS ledger_entries",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateMigrationsDir(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir failed validation: %v", err)
	}
}
