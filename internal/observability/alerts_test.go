package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
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

var exportedMetrics = []string{
	"ledger_http_requests_total",
	"ledger_http_request_duration_seconds",
	"ledger_jobs_total",
	"ledger_jobs_failures_total",
	"ledger_job_duration_seconds",
	"ledger_finance_anomalies_total",
	"ledger_integration_events_total",
}

func TestLedgerAlertRules(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "ledger.yml"))
	require.NoError(t, err)

	var spec alertSpec
	require.NoError(t, yaml.Unmarshal(data, &spec))
	require.Len(t, spec.Groups, 1)
	group := spec.Groups[0]
	require.Equal(t, "ledger", group.Name)

	severities := map[string]string{
		"LedgerHighErrorRate":        "critical",
		"LedgerJobFailures":          "warning",
		"IntegrationEventsFailing":   "warning",
		"ReconciliationRedrives":     "warning",
		"InventoryValuationVariance": "critical",
		"UnbalancedEntries":          "critical",
	}
	require.Len(t, group.Rules, len(severities))

	for _, rule := range group.Rules {
		want, ok := severities[rule.Alert]
		require.True(t, ok, "unexpected rule %q", rule.Alert)
		require.Equal(t, want, rule.Labels["severity"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["description"], rule.Alert)
		require.NotEmpty(t, rule.For, rule.Alert)
		require.True(t, referencesExportedMetric(rule.Expr), "rule %s queries an unknown metric: %s", rule.Alert, rule.Expr)
	}
}

func referencesExportedMetric(expr string) bool {
	for _, name := range exportedMetrics {
		if strings.Contains(expr, name) {
			return true
		}
	}
	return false
}
