package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"billminder/internal/core"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_JSONFormatCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Component: ComponentHTTP, Output: &buf})

	logger.Info("hello", FieldBillID, "abc")
	logger.Debug("hidden")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if entry[FieldComponent] != ComponentHTTP || entry[FieldBillID] != "abc" {
		t.Errorf("unexpected entry %v", entry)
	}
	if logger.Component() != ComponentHTTP {
		t.Errorf("Component() = %q", logger.Component())
	}
}

func TestNewHandler_Formats(t *testing.T) {
	for _, format := range []string{FormatText, FormatJSON, FormatTint, "unknown"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			slog.New(NewHandler(format, slog.LevelInfo, &buf)).Info("reminder delivered")
			if !strings.Contains(buf.String(), "reminder delivered") {
				t.Errorf("format %s wrote %q", format, buf.String())
			}
		})
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: FormatText, Output: &buf}).WithComponent(ComponentAMQP)

	logger.Info("connected")
	if !strings.Contains(buf.String(), "component=amqp") {
		t.Errorf("missing component in %q", buf.String())
	}
}

func TestLogFields_WithBill(t *testing.T) {
	b := core.NewBill()
	b.Payee = core.StringPtr("Phone")
	b.Amount = core.AmountPtr(decimal.RequireFromString("19.99"))

	f := NewFields().WithBill(b).WithError(nil)

	if f[FieldBillID] != b.ID.String() || f[FieldPayee] != "Phone" || f[FieldAmount] != "19.99" {
		t.Errorf("unexpected fields %v", f)
	}
	if _, ok := f[FieldDueDate]; ok {
		t.Error("absent due date should be left out")
	}
	if _, ok := f[FieldError]; ok {
		t.Error("nil error should be left out")
	}
	if len(f.ToSlice()) != 2*len(f) {
		t.Error("ToSlice should hold key/value pairs")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: FormatJSON, Output: &buf})

	handler := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req-42" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "inside")
		}),
	))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bills", nil))

	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Errorf("request id missing from %q", buf.String())
	}
}

func TestFromContext_Default(t *testing.T) {
	if FromContext(context.Background()).Logger == nil {
		t.Fatal("FromContext must never return a nil logger")
	}
}

func TestStructuredLogger_Levels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "INFO"},
		{404, "WARN"},
		{500, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			sl := NewStructuredLogger(New(Config{Format: FormatJSON, Output: &buf}))

			r := httptest.NewRequest(http.MethodGet, "/bills?x=1", nil)
			sl.LogHTTPEnd(context.Background(), r, tt.status, 3, "127.0.0.1")

			if !strings.Contains(buf.String(), `"level":"`+tt.level+`"`) {
				t.Errorf("expected level %s in %q", tt.level, buf.String())
			}
		})
	}
}

func TestStructuredLogger_LogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Format: FormatJSON, Output: &buf}))

	sl.LogError(context.Background(), "persist failed", errors.New("disk full"), ComponentStorage, OpUpdate, nil)

	out := buf.String()
	for _, want := range []string{`"error":"disk full"`, `"component":"storage"`, `"operation":"update"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %q", want, out)
		}
	}
}
