package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadRejectsNonPositiveTunables(t *testing.T) {
	t.Setenv("SYNC_REPORT_TTL_SECONDS", "-5")
	t.Setenv("SYNC_AUDIT_BATCH_SIZE", "abc")
	t.Setenv("DEDUP_TTL_SECONDS", "0")

	cfg := Load()
	if cfg.SyncReportTTLSeconds != 20 {
		t.Fatalf("expected fallback report TTL 20, got %d", cfg.SyncReportTTLSeconds)
	}
	if cfg.SyncAuditBatchSize != 500 {
		t.Fatalf("expected fallback batch size 500, got %d", cfg.SyncAuditBatchSize)
	}
	if cfg.DedupTTLSeconds != 30 {
		t.Fatalf("expected fallback dedup TTL 30, got %d", cfg.DedupTTLSeconds)
	}
}
