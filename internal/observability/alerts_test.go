package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestAuthzAlertRules(t *testing.T) {
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "authz.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}

	var spec alertSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		t.Fatalf("failed to unmarshal alert file: %v", err)
	}

	if len(spec.Groups) == 0 {
		t.Fatal("expected at least one alert group")
	}

	seen := map[string]bool{}
	for _, group := range spec.Groups {
		for _, rule := range group.Rules {
			seen[rule.Alert] = true
			if rule.Expr == "" {
				t.Errorf("rule %s has no expression", rule.Alert)
			}
			if rule.For == "" {
				t.Errorf("rule %s has no pending period", rule.Alert)
			}
			if rule.Labels["severity"] == "" {
				t.Errorf("rule %s has no severity label", rule.Alert)
			}
			if rule.Annotations["summary"] == "" {
				t.Errorf("rule %s has no summary annotation", rule.Alert)
			}
		}
	}

	for _, required := range []string{"AuthzDenySpike", "AuthzUnauthenticatedFlood"} {
		if !seen[required] {
			t.Errorf("missing required alert rule %s", required)
		}
	}

	denySpike := findRule(spec, "AuthzDenySpike")
	if denySpike == nil || !strings.Contains(denySpike.Expr, "crewdesk_authz_decisions_total") {
		t.Error("AuthzDenySpike must be driven by the authz decision counter")
	}
}

func findRule(spec alertSpec, name string) *alertRule {
	for _, group := range spec.Groups {
		for i := range group.Rules {
			if group.Rules[i].Alert == name {
				return &group.Rules[i]
			}
		}
	}
	return nil
}
