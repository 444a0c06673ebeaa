package novelty

import (
	"context"
	"io"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorpuello/kampus-sub004/core"
)

type fakeAPI struct {
	steps     []string
	uploads   []string
	failAt    string
	lastNew   NewCase
	lastRev   Review
	nextID    int
	caseState Status
}

func (f *fakeAPI) fail(step string) error {
	if f.failAt == step {
		return errors.New(step + " rejected by backend")
	}
	return nil
}

func (f *fakeAPI) CreateCase(_ context.Context, nc NewCase) (*Case, error) {
	f.steps = append(f.steps, StepCreate)
	if err := f.fail(StepCreate); err != nil {
		return nil, err
	}
	f.lastNew = nc
	f.nextID++
	return &Case{ID: f.nextID, ClientRef: nc.ClientRef, Type: nc.Type, StudentID: nc.StudentID, Status: StatusDraft}, nil
}

func (f *fakeAPI) UploadAttachment(_ context.Context, caseID int, name string, body io.Reader) (*Attachment, error) {
	f.steps = append(f.steps, StepUpload)
	if err := f.fail(StepUpload); err != nil {
		return nil, err
	}
	data, _ := ioutil.ReadAll(body)
	f.uploads = append(f.uploads, name)
	return &Attachment{ID: len(f.uploads), Name: name, Size: int64(len(data))}, nil
}

func (f *fakeAPI) FileCase(_ context.Context, caseID int) (*Case, error) {
	f.steps = append(f.steps, StepFile)
	if err := f.fail(StepFile); err != nil {
		return nil, err
	}
	return &Case{ID: caseID, Status: StatusFiled}, nil
}

func (f *fakeAPI) ReviewCase(_ context.Context, caseID int) (*Case, error) {
	f.steps = append(f.steps, StepReview)
	return &Case{ID: caseID, Status: StatusInReview}, nil
}

func (f *fakeAPI) ResolveCase(_ context.Context, caseID int, rev Review) (*Case, error) {
	f.steps = append(f.steps, StepApprove)
	f.lastRev = rev
	return &Case{ID: caseID, Status: rev.target()}, nil
}

func (f *fakeAPI) ExecuteCase(_ context.Context, caseID int) (*Case, error) {
	f.steps = append(f.steps, StepExecute)
	return &Case{ID: caseID, Status: StatusExecuted}, nil
}

func newTestService(api API) *Service {
	return NewService(api, core.NewValidator(), nil)
}

func validNewCase() NewCase {
	return NewCase{
		Type:        TypeTransfer,
		StudentID:   42,
		Description: "transfer to afternoon shift",
	}
}

func TestFileWithAttachmentsSequencesSteps(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(api)

	filed, err := svc.FileWithAttachments(context.Background(), validNewCase(), []Upload{
		{Name: "request.pdf", Body: strings.NewReader("%PDF-1.4")},
		{Name: "consent.pdf", Body: strings.NewReader("%PDF-1.4")},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFiled, filed.Status)
	assert.Equal(t, []string{StepCreate, StepUpload, StepUpload, StepFile}, api.steps)
	assert.Equal(t, []string{"request.pdf", "consent.pdf"}, api.uploads)
	assert.NotEqual(t, uuid.Nil, api.lastNew.ClientRef, "a client ref is assigned when missing")
}

func TestFileWithAttachmentsKeepsExplicitClientRef(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(api)

	nc := validNewCase()
	nc.ClientRef = uuid.MustParse("3b9e5f1c-93ce-4c05-9bd5-8c305f6e4d21")
	_, err := svc.FileWithAttachments(context.Background(), nc, nil)
	require.NoError(t, err)
	assert.Equal(t, nc.ClientRef, api.lastNew.ClientRef)
}

func TestFileWithAttachmentsInvalidPayload(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(api)

	nc := validNewCase()
	nc.Type = "expulsion"
	_, err := svc.FileWithAttachments(context.Background(), nc, nil)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepCreate, stepErr.Step)
	assert.Empty(t, api.steps, "invalid payload never reaches the backend")
}

func TestFileWithAttachmentsReportsFailingStep(t *testing.T) {
	tests := []struct {
		failAt   string
		wantCase bool
	}{
		{StepCreate, false},
		{StepUpload, true},
		{StepFile, true},
	}
	for _, tt := range tests {
		t.Run(tt.failAt, func(t *testing.T) {
			api := &fakeAPI{failAt: tt.failAt}
			svc := newTestService(api)

			c, err := svc.FileWithAttachments(context.Background(), validNewCase(), []Upload{
				{Name: "request.pdf", Body: strings.NewReader("x")},
			})

			var stepErr *StepError
			require.True(t, errors.As(err, &stepErr))
			assert.Equal(t, tt.failAt, stepErr.Step)
			if tt.wantCase {
				require.NotNil(t, c, "the created case is returned so the caller can resume")
				assert.Equal(t, c.ID, stepErr.CaseID)
			} else {
				assert.Nil(t, c)
			}
		})
	}
}

func TestReviewGuardsTransition(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(api)

	_, err := svc.Review(context.Background(), &Case{ID: 1, Status: StatusDraft})
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Empty(t, api.steps)

	out, err := svc.Review(context.Background(), &Case{ID: 1, Status: StatusFiled})
	require.NoError(t, err)
	assert.Equal(t, StatusInReview, out.Status)
}

func TestResolve(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(api)

	// rejection requires a comment
	_, err := svc.Resolve(context.Background(), &Case{ID: 1, Status: StatusInReview}, Review{Decision: DecisionReject})
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepApprove, stepErr.Step)

	out, err := svc.Resolve(context.Background(), &Case{ID: 1, Status: StatusInReview},
		Review{Decision: DecisionReject, Comment: "missing consent form"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)

	out, err = svc.Resolve(context.Background(), &Case{ID: 1, Status: StatusInReview}, Review{Decision: DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, out.Status)

	_, err = svc.Resolve(context.Background(), &Case{ID: 1, Status: StatusExecuted}, Review{Decision: DecisionApprove})
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestExecuteGuardsTransition(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(api)

	_, err := svc.Execute(context.Background(), &Case{ID: 1, Status: StatusRejected})
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	out, err := svc.Execute(context.Background(), &Case{ID: 1, Status: StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, out.Status)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusDraft, StatusFiled))
	assert.True(t, CanTransition(StatusInReview, StatusRejected))
	assert.False(t, CanTransition(StatusFiled, StatusApproved))
	assert.False(t, CanTransition(StatusRejected, StatusExecuted))
	assert.False(t, CanTransition(StatusExecuted, StatusDraft))
}
