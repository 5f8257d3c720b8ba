package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestResolveAPIBase(t *testing.T) {
	tests := []struct {
		host, base, want string
		wantErr          bool
	}{
		{"http://localhost:8000", "/api", "http://localhost:8000/api", false},
		{"http://localhost:8000/", "/api/", "http://localhost:8000/api", false},
		{"http://ignored", "https://exams.example.edu/api/", "https://exams.example.edu/api", false},
		{"localhost:8000", "/api", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.host+tt.base, func(t *testing.T) {
			got, err := resolveAPIBase(tt.host, tt.base)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestViperReadsViteAlias(t *testing.T) {
	t.Setenv("VITE_API_BASE_URL", "http://backend:9000/api")
	t.Chdir(t.TempDir())

	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().String("api-base-url", "/api", "")
	v := viperForCmd(cmd)
	if got := v.GetString("api-base-url"); got != "http://backend:9000/api" {
		t.Errorf("api-base-url = %q", got)
	}
}

func TestWriteStructured(t *testing.T) {
	doc := map[string]int{"easy": 3}

	var buf bytes.Buffer
	if err := writeStructured(&buf, formatYAML, doc); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "easy: 3" {
		t.Errorf("yaml = %q", buf.String())
	}

	buf.Reset()
	if err := writeStructured(&buf, formatJSON, doc); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"easy": 3`) {
		t.Errorf("json = %q", buf.String())
	}

	if err := writeStructured(&buf, "xml", doc); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRootRegistersCommands(t *testing.T) {
	root := rootCmd()
	for _, path := range [][]string{
		{"serve"}, {"login"}, {"logout"}, {"whoami"}, {"options"}, {"pick"},
		{"generate"}, {"history"}, {"paper", "show"}, {"paper", "export"},
		{"students", "import"}, {"students", "export"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == root {
			t.Errorf("command %v not registered", path)
		}
	}
	if root.Flags().Lookup("addr") == nil {
		t.Error("serve flags not registered on root")
	}
}

func TestDashboardConfigRequiresUnitTopicByDefault(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd := &cobra.Command{Use: "x"}
	addGenerationFlags(cmd.Flags())
	cfg, err := dashboardConfig(viperForCmd(cmd), "")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.RequireUnitTopic {
		t.Error("unit and topic should be required unless disabled")
	}

	if err := cmd.Flags().Set("require-unit-topic", "false"); err != nil {
		t.Fatal(err)
	}
	cfg, err = dashboardConfig(viperForCmd(cmd), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RequireUnitTopic {
		t.Error("--require-unit-topic=false should allow subject-only requests")
	}
}
