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

type ruleFile struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestFinanceAlertRules(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "finance.yml"))
	require.NoError(t, err)

	var rules ruleFile
	require.NoError(t, yaml.Unmarshal(data, &rules))
	require.Len(t, rules.Groups, 1)
	group := rules.Groups[0]
	require.Equal(t, "finance", group.Name)

	expected := map[string]string{
		"HighErrorRate":            "critical",
		"PaymentRejectionSpike":    "warning",
		"PayeeOverpaid":            "warning",
		"ReconciliationJobFailing": "critical",
	}
	require.Len(t, group.Rules, len(expected))

	known := []string{MetricHTTPRequests, MetricPaymentsRejected, "medconsult_reconciliation_anomalies_total", "medconsult_jobs_failures_total"}
	for _, rule := range group.Rules {
		severity, ok := expected[rule.Alert]
		require.True(t, ok, "unexpected rule %q", rule.Alert)
		require.Equal(t, severity, rule.Labels["severity"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["description"], rule.Alert)
		require.NotEmpty(t, rule.For, rule.Alert)

		references := false
		for _, name := range known {
			if strings.Contains(rule.Expr, name) {
				references = true
			}
		}
		require.True(t, references, "rule %s must reference an exported metric", rule.Alert)
	}
}
