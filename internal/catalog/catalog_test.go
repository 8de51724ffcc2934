package catalog_test

import (
	"strings"
	"testing"

	"erasure/internal/catalog"
)

const catalogYAML = `
brokers:
  - id: acme
    name: Acme People Search
    category: people-search
    removal_method: web_form
    difficulty: easy
    plan_file: brokers/acme.yml
    recheck_days: 14
  - id: datamart
    name: DataMart
    category: marketing-data
    removal_method: email
    difficulty: hard
`

func TestCatalogParsesAndDefaults(t *testing.T) {
	c, err := catalog.FromYAML([]byte(catalogYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d", c.Len())
	}
	acme, ok := c.Get("acme")
	if !ok || acme.RecheckDays != 14 || acme.PlanID() != "broker_acme" {
		t.Fatalf("acme = %+v", acme)
	}
	dm, _ := c.Get("datamart")
	if dm.RecheckDays != 30 {
		t.Fatalf("recheck default = %d", dm.RecheckDays)
	}
	if dm.PlanFile != "" {
		t.Fatalf("datamart should have no plan file")
	}
}

func TestCatalogOrderPreserved(t *testing.T) {
	c, err := catalog.FromYAML([]byte(catalogYAML))
	if err != nil {
		t.Fatal(err)
	}
	all := c.All()
	if all[0].ID != "acme" || all[1].ID != "datamart" {
		t.Fatalf("order = %v", all)
	}
}

func TestCatalogValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(string) string
		errHas string
	}{
		{"bad category", func(s string) string { return strings.Replace(s, "people-search", "social-media", 1) }, "invalid category"},
		{"bad method", func(s string) string { return strings.Replace(s, "web_form", "carrier_pigeon", 1) }, "invalid removal_method"},
		{"bad difficulty", func(s string) string { return strings.Replace(s, "difficulty: easy", "difficulty: extreme", 1) }, "invalid difficulty"},
		{"duplicate id", func(s string) string { return strings.Replace(s, "id: datamart", "id: acme", 1) }, "duplicate broker id"},
	}
	for _, c := range cases {
		_, err := catalog.FromYAML([]byte(c.mutate(catalogYAML)))
		if err == nil || !strings.Contains(err.Error(), c.errHas) {
			t.Fatalf("%s: err=%v", c.name, err)
		}
	}
}
