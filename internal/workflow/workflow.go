// Package workflow drives the three-step research workflow of a capability:
// generate a prompt, upload the research JSON and process it into the store.
package workflow

import (
	"context"
	"fmt"

	"capresearch/docs/schema/research"
	"capresearch/internal/core"
	"capresearch/pkg/domain"

	"github.com/xeipuuv/gojsonschema"
)

// DefaultMaxUploadBytes bounds a single research upload.
const DefaultMaxUploadBytes int64 = 10 << 20

// StepStatus is the completion state of a workflow step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
)

// Workflow step identifiers in execution order.
const (
	StepGeneratePrompt = "generate_prompt"
	StepUploadResults  = "upload_results"
	StepProcessResults = "process_results"
)

// Step is one entry of the ordered workflow.
type Step struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
}

// Workflow is the step list for the research phase a capability is in.
type Workflow struct {
	CapabilityID   string        `json:"capability_id"`
	CapabilityName string        `json:"capability_name"`
	Status         domain.Status `json:"status"`
	WorkflowType   ResearchType  `json:"workflow_type"`
	CurrentStep    string        `json:"current_step"`
	Steps          []Step        `json:"steps"`
}

// Service implements the workflow operations on top of the core service.
type Service struct {
	core     *core.Service
	schemas  map[ResearchType]*gojsonschema.Schema
	maxBytes int64
}

// Option configures a workflow Service.
type Option func(*Service)

// WithMaxUploadBytes overrides DefaultMaxUploadBytes. Non-positive values are ignored.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// New compiles the research schemas and returns a workflow service.
func New(svc *core.Service, opts ...Option) (*Service, error) {
	if svc == nil {
		return nil, fmt.Errorf("core service required")
	}
	s := &Service{core: svc, schemas: make(map[ResearchType]*gojsonschema.Schema), maxBytes: DefaultMaxUploadBytes}
	for kind, raw := range map[ResearchType]string{
		DomainAnalysis:        research.DomainAnalysis,
		ComprehensiveResearch: research.ComprehensiveResearch,
	} {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", kind, err)
		}
		s.schemas[kind] = schema
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Core returns the underlying core service.
func (s *Service) Core() *core.Service { return s.core }

// MaxUploadBytes is the largest research document accepted.
func (s *Service) MaxUploadBytes() int64 { return s.maxBytes }

// InitializeWorkflow reports which steps of the current research phase are done.
// It does not write anything.
func (s *Service) InitializeWorkflow(ctx context.Context, capabilityID string) (Workflow, error) {
	var wf Workflow
	err := s.core.Observe(ctx, "initialize_workflow", func(ctx context.Context) error {
		return s.core.View(ctx, func(view core.TransactionView) error {
			return s.fillWorkflow(view, capabilityID, &wf)
		})
	})
	return wf, err
}

func (s *Service) fillWorkflow(view core.TransactionView, capabilityID string, wf *Workflow) error {
	c, ok := view.FindCapability(capabilityID)
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityCapability, ID: capabilityID}
	}
	*wf = Workflow{CapabilityID: c.ID, CapabilityName: c.Name, Status: c.Status, WorkflowType: ComprehensiveResearch}
	if c.Status == domain.StatusNew {
		wf.WorkflowType = DomainAnalysis
	}

	var uploaded, processed bool
	domains := len(view.ListDomains(c.ID))
	switch wf.WorkflowType {
	case DomainAnalysis:
		uploaded = domains > 0
		processed = domains > 0 && activeCount(view.ListAttributes(c.ID)) > 0
	default:
		tracker, _ := view.FindTracker(c.Name)
		uploaded = len(view.ListVendorScores(c.ID)) > 0
		processed = tracker.ComprehensiveReady && s.core.Coverage(view, c.ID).Complete()
	}
	wf.Steps = []Step{
		{ID: StepGeneratePrompt, Title: "Generate prompt", Description: "Generate the " + string(wf.WorkflowType) + " research prompt", Status: stepStatus(uploaded)},
		{ID: StepUploadResults, Title: "Upload results", Description: "Upload the research JSON returned for the prompt", Status: stepStatus(uploaded)},
		{ID: StepProcessResults, Title: "Process results", Description: "Validate and store the uploaded research", Status: stepStatus(processed)},
	}
	for _, step := range wf.Steps {
		if step.Status == StepPending {
			wf.CurrentStep = step.ID
			break
		}
	}
	return nil
}

func stepStatus(done bool) StepStatus {
	if done {
		return StepCompleted
	}
	return StepPending
}

func activeCount(attributes []domain.Attribute) int {
	n := 0
	for _, a := range attributes {
		if a.IsActive {
			n++
		}
	}
	return n
}
