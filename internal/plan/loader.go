package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"gopkg.in/yaml.v3"
)

// Load reads and validates a plan file from the plans root. Plan ids of the
// form "broker_<id>" also resolve to brokers/<id>.yml.
func Load(plansRoot, planID string) (*Plan, error) {
	candidates := []string{
		filepath.Join(plansRoot, planID+".yaml"),
		filepath.Join(plansRoot, planID+".yml"),
		filepath.Join(plansRoot, "brokers", planID+".yaml"),
		filepath.Join(plansRoot, "brokers", planID+".yml"),
	}
	if short, ok := strings.CutPrefix(planID, "broker_"); ok {
		candidates = append(candidates,
			filepath.Join(plansRoot, "brokers", short+".yaml"),
			filepath.Join(plansRoot, "brokers", short+".yml"),
		)
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		return FromYAML(data)
	}
	return nil, fmt.Errorf("plan not found for plan_id=%s in %s", planID, plansRoot)
}

// FromYAML parses and validates a plan definition.
func FromYAML(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid plan yaml: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Hash returns the SHA-256 of the plan's canonical JSON form. Stable across
// reloads of an unchanged file; used for run provenance.
func Hash(p *Plan) string {
	packed, _ := json.Marshal(p)
	// Round-trip through a map so key order is canonical regardless of
	// struct field order.
	var generic map[string]any
	_ = json.Unmarshal(packed, &generic)
	canonical, _ := json.Marshal(generic)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// ValidateParams checks run parameters against the plan's params_schema.
// Plans without a schema accept any params.
func ValidateParams(p *Plan, params map[string]any) error {
	if len(p.ParamsSchema) == 0 {
		return nil
	}
	raw, err := json.Marshal(p.ParamsSchema)
	if err != nil {
		return fmt.Errorf("plan %s: params_schema not serializable: %w", p.PlanID, err)
	}
	var schema huma.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return fmt.Errorf("plan %s: invalid params_schema: %w", p.PlanID, err)
	}
	schema.PrecomputeMessages()

	registry := huma.NewMapRegistry("#/components/schemas/", huma.DefaultSchemaNamer)
	pb := huma.NewPathBuffer([]byte("params"), 6)
	res := &huma.ValidateResult{}
	if params == nil {
		params = map[string]any{}
	}
	huma.Validate(registry, &schema, pb, huma.ModeWriteToServer, params, res)
	if len(res.Errors) > 0 {
		return fmt.Errorf("plan %s: params invalid: %w", p.PlanID, res.Errors[0])
	}
	return nil
}
