package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var validRemovalMethods = map[string]bool{
	"web_form":                   true,
	"web_form_with_email_verify": true,
	"web_form_with_phone_verify": true,
	"account_required":           true,
	"email":                      true,
	"mail_or_fax":                true,
	"api":                        true,
}

var validDifficulties = map[string]bool{"easy": true, "medium": true, "hard": true}

var validCategories = map[string]bool{
	"people-search":    true,
	"marketing-data":   true,
	"risk-data":        true,
	"background-check": true,
}

// Broker is one catalog entry. Brokers without a PlanFile cannot be scanned
// automatically and are excluded from scheduling.
type Broker struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Category      string `yaml:"category"`
	RemovalMethod string `yaml:"removal_method"`
	Difficulty    string `yaml:"difficulty"`
	PlanFile      string `yaml:"plan_file,omitempty"`
	RecheckDays   int    `yaml:"recheck_days,omitempty"`
	Notes         string `yaml:"notes,omitempty"`
}

// PlanID derives the plan identifier for a plan-bearing broker.
func (b Broker) PlanID() string {
	return "broker_" + b.ID
}

// Catalog is the validated broker registry.
type Catalog struct {
	brokers map[string]Broker
	order   []string
}

type catalogFile struct {
	Brokers []Broker `yaml:"brokers"`
}

// Load reads and validates the broker catalog.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates catalog bytes.
func FromYAML(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid catalog yaml: %w", err)
	}
	if file.Brokers == nil {
		return nil, fmt.Errorf("catalog must contain a 'brokers' list")
	}
	c := &Catalog{brokers: make(map[string]Broker, len(file.Brokers))}
	for i, b := range file.Brokers {
		if err := validate(&b, i); err != nil {
			return nil, err
		}
		if _, dup := c.brokers[b.ID]; dup {
			return nil, fmt.Errorf("duplicate broker id %q", b.ID)
		}
		c.brokers[b.ID] = b
		c.order = append(c.order, b.ID)
	}
	return c, nil
}

func validate(b *Broker, index int) error {
	if b.ID == "" {
		return fmt.Errorf("broker at index %d: missing id", index)
	}
	if b.Name == "" {
		return fmt.Errorf("broker %q: missing name", b.ID)
	}
	if !validCategories[b.Category] {
		return fmt.Errorf("broker %q: invalid category %q", b.ID, b.Category)
	}
	if !validRemovalMethods[b.RemovalMethod] {
		return fmt.Errorf("broker %q: invalid removal_method %q", b.ID, b.RemovalMethod)
	}
	if !validDifficulties[b.Difficulty] {
		return fmt.Errorf("broker %q: invalid difficulty %q", b.ID, b.Difficulty)
	}
	if b.RecheckDays == 0 {
		b.RecheckDays = 30
	}
	if b.RecheckDays < 1 {
		return fmt.Errorf("broker %q: recheck_days must be positive", b.ID)
	}
	return nil
}

// Get returns the broker with the given id.
func (c *Catalog) Get(brokerID string) (Broker, bool) {
	b, ok := c.brokers[brokerID]
	return b, ok
}

// All returns brokers in catalog order.
func (c *Catalog) All() []Broker {
	out := make([]Broker, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.brokers[id])
	}
	return out
}

// Len returns the number of cataloged brokers.
func (c *Catalog) Len() int {
	return len(c.brokers)
}
