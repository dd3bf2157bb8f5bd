package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

type TestConfig struct {
	Config       string        `help:"Config file path"`
	StringField  string        `toml:"test.string_field" env:"STRING_FIELD"`
	BoolField    bool          `toml:"test.bool_field" env:"BOOL_FIELD"`
	IntField     int           `toml:"test.int_field" env:"INT_FIELD"`
	Buffers      uint32        `toml:"capture.buffers" env:"CAPTURE_BUFFERS"`
	Timeout      time.Duration `toml:"capture.timeout" env:"CAPTURE_TIMEOUT"`
	SliceField   []string      `toml:"test.slice_field" env:"SLICE_FIELD"`
	NestedString string        `toml:"nested.deep.value" env:"NESTED_VALUE"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vidbuf.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeConfig(t, `
[test]
string_field = "hello world"
bool_field = true
int_field = 42
slice_field = ["item1", "item2", "item3"]

[capture]
buffers = 6
timeout = "1500ms"

[nested.deep]
value = "nested value"
`)

	cfg := &TestConfig{Config: path}
	if err := LoadConfig(cfg, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	want := TestConfig{
		Config:       path,
		StringField:  "hello world",
		BoolField:    true,
		IntField:     42,
		Buffers:      6,
		Timeout:      1500 * time.Millisecond,
		SliceField:   []string{"item1", "item2", "item3"},
		NestedString: "nested value",
	}
	if !reflect.DeepEqual(*cfg, want) {
		t.Errorf("LoadConfig = %+v, want %+v", *cfg, want)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	t.Setenv("VIDBUF_STRING_FIELD", "env string")
	t.Setenv("VIDBUF_BOOL_FIELD", "false")
	t.Setenv("VIDBUF_INT_FIELD", "123")
	t.Setenv("VIDBUF_CAPTURE_BUFFERS", "8")
	t.Setenv("VIDBUF_CAPTURE_TIMEOUT", "3s")
	t.Setenv("VIDBUF_SLICE_FIELD", "a, b ,c")
	t.Setenv("VIDBUF_NESTED_VALUE", "env nested")

	cfg := &TestConfig{BoolField: true}
	if err := LoadConfig(cfg, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string", cfg.StringField, "env string"},
		{"bool", cfg.BoolField, false},
		{"int", cfg.IntField, 123},
		{"uint", cfg.Buffers, uint32(8)},
		{"duration", cfg.Timeout, 3 * time.Second},
		{"slice", cfg.SliceField, []string{"a", "b", "c"}},
		{"nested", cfg.NestedString, "env nested"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadConfigEnvOverridesToml(t *testing.T) {
	path := writeConfig(t, `
[test]
string_field = "toml value"
bool_field = true
int_field = 100
slice_field = ["toml1", "toml2"]
`)
	t.Setenv("VIDBUF_STRING_FIELD", "env override")
	t.Setenv("VIDBUF_BOOL_FIELD", "false")

	cfg := &TestConfig{Config: path}
	if err := LoadConfig(cfg, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.StringField != "env override" {
		t.Errorf("StringField = %q, want env override", cfg.StringField)
	}
	if cfg.BoolField {
		t.Error("BoolField = true, want false from env")
	}
	if cfg.IntField != 100 {
		t.Errorf("IntField = %d, want 100 from TOML", cfg.IntField)
	}
	if !reflect.DeepEqual(cfg.SliceField, []string{"toml1", "toml2"}) {
		t.Errorf("SliceField = %v, want TOML value", cfg.SliceField)
	}
}

func TestLoadConfigChangedFlagWins(t *testing.T) {
	path := writeConfig(t, "[test]\nint_field = 100\nstring_field = \"toml\"\n")
	t.Setenv("VIDBUF_INT_FIELD", "200")

	cfg := &TestConfig{Config: path}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().IntVar(&cfg.IntField, "int-field", 0, "")
	cmd.PersistentFlags().StringVar(&cfg.StringField, "string-field", "", "")
	if err := cmd.ParseFlags([]string{"--int-field=7", "--string-field=flag"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	if err := LoadConfig(cfg, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.IntField != 7 {
		t.Errorf("IntField = %d, want flag value 7", cfg.IntField)
	}
	if cfg.StringField != "flag" {
		t.Errorf("StringField = %q, want flag value", cfg.StringField)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		toml    string
		env     map[string]string
		wantSub string
	}{
		{
			name:    "invalid TOML",
			toml:    "[test\ninvalid toml syntax\n",
			wantSub: "failed to parse TOML config",
		},
		{
			name:    "wrong TOML type",
			toml:    "[test]\nint_field = \"many\"\n",
			wantSub: "test.int_field",
		},
		{
			name:    "negative uint",
			toml:    "[capture]\nbuffers = -1\n",
			wantSub: "capture.buffers",
		},
		{
			name:    "bad env duration",
			env:     map[string]string{"VIDBUF_CAPTURE_TIMEOUT": "soon"},
			wantSub: "VIDBUF_CAPTURE_TIMEOUT",
		},
		{
			name:    "bad env bool",
			env:     map[string]string{"VIDBUF_BOOL_FIELD": "maybe"},
			wantSub: "VIDBUF_BOOL_FIELD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &TestConfig{}
			if tt.toml != "" {
				cfg.Config = writeConfig(t, tt.toml)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			err := LoadConfig(cfg, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	if err := LoadConfig(TestConfig{}, nil); err == nil {
		t.Error("expected error for non-pointer")
	}
	n := 3
	if err := LoadConfig(&n, nil); err == nil {
		t.Error("expected error for pointer to non-struct")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg := &TestConfig{Config: filepath.Join(t.TempDir(), "absent.toml"), IntField: 5}
	if err := LoadConfig(cfg, nil); err != nil {
		t.Fatalf("LoadConfig should not fail for missing file: %v", err)
	}
	if cfg.IntField != 5 {
		t.Errorf("default overwritten: IntField = %d", cfg.IntField)
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"Device", "device"},
		{"MetricsAddr", "metrics-addr"},
		{"LoggingLinuxav", "logging-linuxav"},
		{"MinBuffers", "min-buffers"},
	}
	for _, tt := range tests {
		if got := fieldNameToFlag(tt.field); got != tt.want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", tt.field, got, tt.want)
		}
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"level1": map[string]any{
			"level2": map[string]any{
				"value": "nested_value",
			},
			"simple": "simple_value",
		},
		"root": "root_value",
	}

	tests := []struct {
		path     string
		expected any
	}{
		{"root", "root_value"},
		{"level1.simple", "simple_value"},
		{"level1.level2.value", "nested_value"},
		{"nonexistent", nil},
		{"level1.nonexistent", nil},
		{"root.child", nil},
	}

	for _, test := range tests {
		result := getNestedValue(data, test.path)
		if result != test.expected {
			t.Errorf("getNestedValue(%q) = %v, expected %v", test.path, result, test.expected)
		}
	}
}

func TestSetFieldValue(t *testing.T) {
	type target struct {
		String   string
		Bool     bool
		Int      int
		Int8     int8
		Uint     uint32
		Float    float64
		Duration time.Duration
		Slice    []string
	}

	tests := []struct {
		field   string
		value   any
		want    any
		wantErr bool
	}{
		{"String", "test string", "test string", false},
		{"Bool", true, true, false},
		{"Int", int64(42), 42, false},
		{"Int8", int64(300), int8(0), true},
		{"Uint", int64(4), uint32(4), false},
		{"Uint", int64(-4), uint32(0), true},
		{"Float", int64(2), 2.0, false},
		{"Float", 0.5, 0.5, false},
		{"Duration", "250ms", 250 * time.Millisecond, false},
		{"Duration", int64(3), 3 * time.Second, false},
		{"Duration", true, time.Duration(0), true},
		{"Slice", []any{"a", "b", "c"}, []string{"a", "b", "c"}, false},
		{"Slice", []any{"a", int64(1)}, []string(nil), true},
		{"String", int64(1), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			s := &target{}
			field := reflect.ValueOf(s).Elem().FieldByName(tt.field)
			err := setFieldValue(field, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("setFieldValue(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if got := field.Interface(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("field = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetFieldValueFromString(t *testing.T) {
	type target struct {
		String   string
		Bool     bool
		Int      int
		Uint     uint8
		Float    float32
		Duration time.Duration
		Slice    []string
		Ints     []int
	}

	tests := []struct {
		field   string
		value   string
		want    any
		wantErr bool
	}{
		{"String", "test string", "test string", false},
		{"Bool", "true", true, false},
		{"Bool", "yes", false, true},
		{"Int", "123", 123, false},
		{"Int", "twelve", 0, true},
		{"Uint", "255", uint8(255), false},
		{"Uint", "256", uint8(0), true},
		{"Float", "1.5", float32(1.5), false},
		{"Duration", "2m", 2 * time.Minute, false},
		{"Slice", "x,y,z", []string{"x", "y", "z"}, false},
		{"Slice", " a , b , c ", []string{"a", "b", "c"}, false},
		{"Ints", "1,2", []int(nil), true},
	}

	for _, tt := range tests {
		t.Run(tt.field+"="+tt.value, func(t *testing.T) {
			s := &target{}
			field := reflect.ValueOf(s).Elem().FieldByName(tt.field)
			err := setFieldValueFromString(field, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := field.Interface(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("field = %v, want %v", got, tt.want)
			}
		})
	}
}

// loggingOptions mirrors the logging fields of the CLI options.
type loggingOptions struct {
	Config         string `help:"Config file path"`
	LoggingLevel   string `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture string `toml:"logging.modules.capture" env:"LOGGING_CAPTURE"`
	LoggingLinuxav string `toml:"logging.modules.linuxav" env:"LOGGING_LINUXAV"`
	LoggingMetrics string `toml:"logging.modules.metrics" env:"LOGGING_METRICS"`
}

func TestLoadLoggingModuleLevels(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "info"
format = "json"

[logging.modules]
capture = "debug"
linuxav = "warn"
`)
	t.Setenv("VIDBUF_LOGGING_METRICS", "error")

	opts := &loggingOptions{
		Config:         path,
		LoggingLevel:   "info",
		LoggingFormat:  "text",
		LoggingCapture: "info",
		LoggingLinuxav: "info",
		LoggingMetrics: "info",
	}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	tests := []struct {
		field string
		got   string
		want  string
	}{
		{"LoggingLevel", opts.LoggingLevel, "info"},
		{"LoggingFormat", opts.LoggingFormat, "json"},
		{"LoggingCapture", opts.LoggingCapture, "debug"},
		{"LoggingLinuxav", opts.LoggingLinuxav, "warn"},
		{"LoggingMetrics", opts.LoggingMetrics, "error"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.field, tt.got, tt.want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	tests := []struct {
		name        string
		toml        string
		wantLevel   string
		wantFormat  string
		wantModules map[string]string
	}{
		{
			name:        "modules table",
			toml:        "[logging]\nlevel = \"debug\"\n\n[logging.modules]\ncapture = \"warn\"\n",
			wantLevel:   "debug",
			wantFormat:  "text",
			wantModules: map[string]string{"capture": "warn"},
		},
		{
			name:        "flat module keys",
			toml:        "[logging]\nformat = \"json\"\nlinuxav = \"error\"\nmetrics = \"debug\"\n",
			wantLevel:   "info",
			wantFormat:  "json",
			wantModules: map[string]string{"linuxav": "error", "metrics": "debug"},
		},
		{
			name:        "no logging section",
			toml:        "[capture]\nbuffers = 4\n",
			wantLevel:   "info",
			wantFormat:  "text",
			wantModules: map[string]string{},
		},
		{
			name:        "malformed file",
			toml:        "[logging\n",
			wantLevel:   "info",
			wantFormat:  "text",
			wantModules: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadLoggingConfig(writeConfig(t, tt.toml))
			if cfg.Level != tt.wantLevel || cfg.Format != tt.wantFormat {
				t.Errorf("level/format = %q/%q, want %q/%q", cfg.Level, cfg.Format, tt.wantLevel, tt.wantFormat)
			}
			if !reflect.DeepEqual(cfg.Modules, tt.wantModules) {
				t.Errorf("modules = %v, want %v", cfg.Modules, tt.wantModules)
			}
		})
	}
}

func TestLoadLoggingConfigMissingPath(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "absent.toml")} {
		cfg := LoadLoggingConfig(path)
		if cfg.Level != "info" || cfg.Format != "text" || cfg.Modules == nil {
			t.Errorf("LoadLoggingConfig(%q) = %+v, want defaults", path, cfg)
		}
	}
}
