package mysqlstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/lvillar/pdfstamp/store/storetest"
)

func TestConfigForcesUTC(t *testing.T) {
	cfg, err := Config("app:secret@tcp(db:3306)/pdfstamp?loc=Local&parseTime=false")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.ParseTime || cfg.Loc != time.UTC {
		t.Errorf("ParseTime = %v, Loc = %v", cfg.ParseTime, cfg.Loc)
	}
	if cfg.Addr != "db:3306" || cfg.DBName != "pdfstamp" || cfg.User != "app" {
		t.Errorf("parsed %+v", cfg)
	}
}

func TestConfigRejectsBadDSN(t *testing.T) {
	if _, err := Config("app:secret@tcp(db:3306)"); err == nil {
		t.Fatal("expected error")
	}
}

// Set PDFSTAMP_TEST_MYSQL to a DSN such as
// root:root@tcp(localhost:3306)/pdfstamp_test to run.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("PDFSTAMP_TEST_MYSQL")
	if dsn == "" {
		t.Skip("PDFSTAMP_TEST_MYSQL not set")
	}
	s, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	storetest.Run(t, s)
}
