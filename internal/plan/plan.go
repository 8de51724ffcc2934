package plan

import (
	"fmt"
	"regexp"
)

// TaskType is the closed set of executable task types. Plans referencing a
// type outside this set are rejected at load time, never at execution time.
type TaskType string

const (
	TypeHTTPRequest        TaskType = "http.request"
	TypeScrapeStatic       TaskType = "scrape.static"
	TypeScrapeRendered     TaskType = "scrape.rendered"
	TypeFormSubmit         TaskType = "form.submit"
	TypeEmailSend          TaskType = "email.send"
	TypeEmailCheck         TaskType = "email.check"
	TypeEmailClickVerify   TaskType = "email.click_verify"
	TypeMatchIdentity      TaskType = "match.identity"
	TypeBrokerUpdateStatus TaskType = "broker.update_status"
	TypeQueueHumanAction   TaskType = "queue.human_action"
	TypeCaptchaSolve       TaskType = "captcha.solve"
	TypeWaitDelay          TaskType = "wait.delay"
	TypeDiscoverSearch     TaskType = "discover.search_engine"
)

var knownTypes = map[TaskType]bool{
	TypeHTTPRequest:        true,
	TypeScrapeStatic:       true,
	TypeScrapeRendered:     true,
	TypeFormSubmit:         true,
	TypeEmailSend:          true,
	TypeEmailCheck:         true,
	TypeEmailClickVerify:   true,
	TypeMatchIdentity:      true,
	TypeBrokerUpdateStatus: true,
	TypeQueueHumanAction:   true,
	TypeCaptchaSolve:       true,
	TypeWaitDelay:          true,
	TypeDiscoverSearch:     true,
}

// SideEffectTypes are task types that act on an external system. Under the
// side-effect approval policy they require approval even when the plan does
// not flag them.
var SideEffectTypes = map[TaskType]bool{
	TypeFormSubmit:         true,
	TypeEmailSend:          true,
	TypeEmailClickVerify:   true,
	TypeBrokerUpdateStatus: true,
}

type Target struct {
	TargetID string `yaml:"target_id" json:"target_id"`
	Kind     string `yaml:"kind" json:"kind"`
	BaseURL  string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Notes    string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

type ApprovalSpec struct {
	Prompt      string `yaml:"prompt" json:"prompt"`
	PreviewKind string `yaml:"preview_kind,omitempty" json:"preview_kind,omitempty"`
}

type OutputSpec struct {
	SaveAs       string `yaml:"save_as,omitempty" json:"save_as,omitempty"`
	ArtifactKind string `yaml:"artifact_kind,omitempty" json:"artifact_kind,omitempty"`
}

type Task struct {
	ID               string         `yaml:"id" json:"id"`
	Name             string         `yaml:"name" json:"name"`
	Type             TaskType       `yaml:"type" json:"type"`
	DependsOn        []string       `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Idempotent       *bool          `yaml:"idempotent,omitempty" json:"idempotent,omitempty"`
	MaxAttempts      int            `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
	TimeoutMS        int            `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
	RequiresApproval bool           `yaml:"requires_approval,omitempty" json:"requires_approval,omitempty"`
	Approval         *ApprovalSpec  `yaml:"approval,omitempty" json:"approval,omitempty"`
	Input            map[string]any `yaml:"input" json:"input"`
	Output           *OutputSpec    `yaml:"output,omitempty" json:"output,omitempty"`
}

// IsIdempotent defaults to true when the plan does not say otherwise.
func (t Task) IsIdempotent() bool {
	if t.Idempotent == nil {
		return true
	}
	return *t.Idempotent
}

// Plan is an immutable broker workflow definition. Once validated it is
// identified by a content hash used for run provenance.
type Plan struct {
	PlanID       string         `yaml:"plan_id" json:"plan_id"`
	Version      string         `yaml:"version" json:"version"`
	Description  string         `yaml:"description,omitempty" json:"description,omitempty"`
	Owner        string         `yaml:"owner,omitempty" json:"owner,omitempty"`
	Labels       []string       `yaml:"labels,omitempty" json:"labels,omitempty"`
	Targets      []Target       `yaml:"targets" json:"targets"`
	ParamsSchema map[string]any `yaml:"params_schema,omitempty" json:"params_schema,omitempty"`
	Tasks        []Task         `yaml:"tasks" json:"tasks"`
}

var (
	taskIDPattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)
	targetKinds    = map[string]bool{"website": true, "api": true, "email": true}
)

// Validate rejects structural problems before any task can execute:
// duplicate ids, unresolved or cyclic dependencies, unknown task types.
func (p *Plan) Validate() error {
	if p.PlanID == "" {
		return fmt.Errorf("plan_id is required")
	}
	if !versionPattern.MatchString(p.Version) {
		return fmt.Errorf("plan %s: version %q is not MAJOR.MINOR.PATCH", p.PlanID, p.Version)
	}
	if len(p.Tasks) == 0 {
		return fmt.Errorf("plan %s: at least one task is required", p.PlanID)
	}
	for i, t := range p.Targets {
		if t.TargetID == "" {
			return fmt.Errorf("plan %s: target %d missing target_id", p.PlanID, i)
		}
		if !targetKinds[t.Kind] {
			return fmt.Errorf("plan %s: target %s has unknown kind %q", p.PlanID, t.TargetID, t.Kind)
		}
	}
	byID := make(map[string]Task, len(p.Tasks))
	for _, t := range p.Tasks {
		if !taskIDPattern.MatchString(t.ID) {
			return fmt.Errorf("plan %s: invalid task id %q", p.PlanID, t.ID)
		}
		if t.Name == "" {
			return fmt.Errorf("plan %s: task %s missing name", p.PlanID, t.ID)
		}
		if !knownTypes[t.Type] {
			return fmt.Errorf("plan %s: task %s has unknown type %q", p.PlanID, t.ID, t.Type)
		}
		if t.MaxAttempts < 0 || t.MaxAttempts > 10 {
			return fmt.Errorf("plan %s: task %s max_attempts out of range", p.PlanID, t.ID)
		}
		if _, dup := byID[t.ID]; dup {
			return fmt.Errorf("plan %s: duplicate task id %q", p.PlanID, t.ID)
		}
		byID[t.ID] = t
	}
	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return fmt.Errorf("plan %s: task %s depends on itself", p.PlanID, t.ID)
			}
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("plan %s: task %s depends on undefined task %q", p.PlanID, t.ID, dep)
			}
		}
	}
	if _, err := p.topoOrder(); err != nil {
		return err
	}
	return nil
}

// topoOrder returns task indexes in dependency order, stable with respect to
// declaration order, or an error naming a task on a cycle.
func (p *Plan) topoOrder() ([]int, error) {
	indexByID := make(map[string]int, len(p.Tasks))
	for i, t := range p.Tasks {
		indexByID[t.ID] = i
	}
	indegree := make([]int, len(p.Tasks))
	dependents := make([][]int, len(p.Tasks))
	for i, t := range p.Tasks {
		indegree[i] = len(t.DependsOn)
		for _, dep := range t.DependsOn {
			d := indexByID[dep]
			dependents[d] = append(dependents[d], i)
		}
	}
	order := make([]int, 0, len(p.Tasks))
	ready := make([]bool, len(p.Tasks))
	for len(order) < len(p.Tasks) {
		progressed := false
		for i := range p.Tasks {
			if ready[i] || indegree[i] > 0 {
				continue
			}
			ready[i] = true
			order = append(order, i)
			for _, dep := range dependents[i] {
				indegree[dep]--
			}
			progressed = true
		}
		if !progressed {
			for i := range p.Tasks {
				if !ready[i] {
					return nil, fmt.Errorf("plan %s: dependency cycle involving task %s", p.PlanID, p.Tasks[i].ID)
				}
			}
		}
	}
	return order, nil
}

// OrderedTasks returns the plan's tasks in a deterministic dependency order.
// Validate must have passed.
func (p *Plan) OrderedTasks() []Task {
	order, err := p.topoOrder()
	if err != nil {
		return p.Tasks
	}
	out := make([]Task, len(order))
	for i, idx := range order {
		out[i] = p.Tasks[idx]
	}
	return out
}

// TaskByID returns the task with the given id.
func (p *Plan) TaskByID(id string) (Task, bool) {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}
