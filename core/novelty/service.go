package novelty

import (
	"context"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/victorpuello/kampus-sub004/core"
)

var ErrInvalidTransition = errors.New("invalid case transition")

// Workflow steps, in filing order.
const (
	StepCreate  = "create"
	StepUpload  = "upload"
	StepFile    = "file"
	StepReview  = "review"
	StepApprove = "approve"
	StepExecute = "execute"
)

// StepError reports which workflow step failed and, when a case already
// exists on the backend, which one. There is no rollback: the backend keeps
// whatever the completed steps produced and the caller resumes from here.
type StepError struct {
	Step   string
	CaseID int
	Err    error
}

func (e *StepError) Error() string {
	if e.CaseID != 0 {
		return fmt.Sprintf("novelty case %d: %s step failed: %v", e.CaseID, e.Step, e.Err)
	}
	return fmt.Sprintf("novelty case: %s step failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// API is the backend surface the workflow sequences over.
type API interface {
	CreateCase(ctx context.Context, nc NewCase) (*Case, error)
	UploadAttachment(ctx context.Context, caseID int, name string, body io.Reader) (*Attachment, error)
	FileCase(ctx context.Context, caseID int) (*Case, error)
	ReviewCase(ctx context.Context, caseID int) (*Case, error)
	ResolveCase(ctx context.Context, caseID int, rev Review) (*Case, error)
	ExecuteCase(ctx context.Context, caseID int) (*Case, error)
}

// Upload is one attachment to send along with a filing.
type Upload struct {
	Name string
	Body io.Reader
}

// Service drives the case workflow: it validates payloads, guards
// transitions against the local table and sequences the API calls.
type Service struct {
	api      API
	validate *validator.Validate
	logger   core.Logger
}

func NewService(api API, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{api: api, validate: validate, logger: logger}
}

// FileWithAttachments runs the create, upload and file steps in order and
// returns the filed case. On failure the returned error is a *StepError
// naming the step that failed; completed steps are not undone.
func (s *Service) FileWithAttachments(ctx context.Context, nc NewCase, uploads []Upload) (*Case, error) {
	if nc.ClientRef == uuid.Nil {
		nc.ClientRef = uuid.New()
	}
	if err := nc.Validate(s.validate); err != nil {
		return nil, &StepError{Step: StepCreate, Err: err}
	}

	c, err := s.api.CreateCase(ctx, nc)
	if err != nil {
		return nil, &StepError{Step: StepCreate, Err: err}
	}

	for _, up := range uploads {
		if _, err := s.api.UploadAttachment(ctx, c.ID, up.Name, up.Body); err != nil {
			return c, &StepError{Step: StepUpload, CaseID: c.ID, Err: errors.Wrap(err, up.Name)}
		}
	}

	filed, err := s.api.FileCase(ctx, c.ID)
	if err != nil {
		return c, &StepError{Step: StepFile, CaseID: c.ID, Err: err}
	}
	if s.logger != nil {
		s.logger.Info(fmt.Sprintf("novelty case %d filed (ref %s)", filed.ID, nc.ClientRef))
	}
	return filed, nil
}

// Review moves a filed case into review.
func (s *Service) Review(ctx context.Context, c *Case) (*Case, error) {
	if !CanTransition(c.Status, StatusInReview) {
		return nil, &StepError{Step: StepReview, CaseID: c.ID,
			Err: errors.Wrapf(ErrInvalidTransition, "%s -> %s", c.Status, StatusInReview)}
	}
	out, err := s.api.ReviewCase(ctx, c.ID)
	if err != nil {
		return nil, &StepError{Step: StepReview, CaseID: c.ID, Err: err}
	}
	return out, nil
}

// Resolve approves or rejects a case under review.
func (s *Service) Resolve(ctx context.Context, c *Case, rev Review) (*Case, error) {
	if err := rev.Validate(s.validate); err != nil {
		return nil, &StepError{Step: StepApprove, CaseID: c.ID, Err: err}
	}
	if !CanTransition(c.Status, rev.target()) {
		return nil, &StepError{Step: StepApprove, CaseID: c.ID,
			Err: errors.Wrapf(ErrInvalidTransition, "%s -> %s", c.Status, rev.target())}
	}
	out, err := s.api.ResolveCase(ctx, c.ID, rev)
	if err != nil {
		return nil, &StepError{Step: StepApprove, CaseID: c.ID, Err: err}
	}
	return out, nil
}

// Execute applies an approved case.
func (s *Service) Execute(ctx context.Context, c *Case) (*Case, error) {
	if !CanTransition(c.Status, StatusExecuted) {
		return nil, &StepError{Step: StepExecute, CaseID: c.ID,
			Err: errors.Wrapf(ErrInvalidTransition, "%s -> %s", c.Status, StatusExecuted)}
	}
	out, err := s.api.ExecuteCase(ctx, c.ID)
	if err != nil {
		return nil, &StepError{Step: StepExecute, CaseID: c.ID, Err: err}
	}
	return out, nil
}
