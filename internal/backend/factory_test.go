package backend

import (
	"context"
	"path/filepath"
	"testing"

	"billminder/internal/config"
	"billminder/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("nil config should fail")
	}

	app := &config.Config{StorageBackend: "bolt", BoltDBPath: "/tmp/x.bolt"}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Type != BoltBackend || cfg.BoltDBPath != "/tmp/x.bolt" {
		t.Errorf("unexpected config %+v", cfg)
	}

	app.StorageBackend = "sheets"
	if _, err := FromAppConfig(app); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"json ok", Config{Type: JSONBackend, BillsFile: "bills.json"}, false},
		{"json missing path", Config{Type: JSONBackend}, true},
		{"sqlite missing path", Config{Type: SQLiteBackend}, true},
		{"bolt missing path", Config{Type: BoltBackend}, true},
		{"unknown type", Config{Type: "memory"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFactory_CreateBackend(t *testing.T) {
	dir := t.TempDir()
	configs := []Config{
		{Type: JSONBackend, BillsFile: filepath.Join(dir, "bills.json")},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(dir, "bills.db")},
		{Type: BoltBackend, BoltDBPath: filepath.Join(dir, "bills.bolt")},
	}

	factory := NewFactory(nil)
	for _, cfg := range configs {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			ctx := context.Background()
			res, err := factory.CreateBackend(ctx, cfg)
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			defer res.Cleanup()

			bill := core.NewBill()
			if err := res.Persister.Save(ctx, []core.Bill{bill}); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := res.Persister.Load(ctx)
			if err != nil || len(got) != 1 || got[0].ID != bill.ID {
				t.Fatalf("load: %v (err=%v)", got, err)
			}
		})
	}
}

func TestFactory_InvalidConfig(t *testing.T) {
	if _, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend}); err == nil {
		t.Error("expected error for missing path")
	}
}
