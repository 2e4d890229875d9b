package core

import (
	"context"
	"slices"
	"strings"

	"scodata/internal/attribute"
	"scodata/pkg/domain"
)

// ModelRuns manages model runs and their lifecycle:
//
//	CREATED -> RUNNING -> SUCCESS | FAILED
//	CREATED | RUNNING -> CANCELED
//
// Every transition is a named operation. Out-of-order calls fail with
// domain.ErrInvalidStateTransition and leave the run unchanged.
type ModelRuns struct {
	resources[domain.ModelRun]
}

// ModelRunInput describes a new run. Arguments are validated against
// ArgumentDefinitions and missing ones take the definition default.
type ModelRunInput struct {
	ExperimentID        string
	FunctionalDataID    string
	ImageGroupID        string
	ModelID             string
	Arguments           []attribute.Attribute
	ArgumentDefinitions attribute.Set
	Properties          domain.Properties
}

// Create stores a run in state CREATED.
func (m *ModelRuns) Create(ctx context.Context, in ModelRunInput) (domain.ModelRun, error) {
	op := m.op("create")
	return runValue(m.svc, ctx, op, domain.Ref{Type: m.typ}, func(ctx context.Context) (domain.ModelRun, error) {
		if strings.TrimSpace(in.ModelID) == "" {
			return domain.ModelRun{}, domain.NewError(domain.ErrInvalidAttributeValue, op, domain.Ref{Type: m.typ}, "model id required")
		}
		refs := []domain.Ref{{Type: domain.TypeExperiment, ID: in.ExperimentID}}
		if in.FunctionalDataID != "" {
			refs = append(refs, domain.Ref{Type: domain.TypeFunctionalData, ID: in.FunctionalDataID})
		}
		if in.ImageGroupID != "" {
			refs = append(refs, domain.Ref{Type: domain.TypeImageGroup, ID: in.ImageGroupID})
		}
		for _, ref := range refs {
			if err := m.svc.ownerExists(ctx, op, ref); err != nil {
				return domain.ModelRun{}, err
			}
		}
		args, err := attribute.Validate(in.Arguments, in.ArgumentDefinitions)
		if err != nil {
			return domain.ModelRun{}, withRef(err, domain.Ref{Type: m.typ})
		}
		h, err := m.newHandle(in.Properties, "")
		if err != nil {
			return domain.ModelRun{}, err
		}
		h.Properties[domain.PropertyState] = domain.String(string(domain.RunCreated))
		h.Properties[domain.PropertyModel] = domain.String(in.ModelID)
		unlock := m.svc.lock(h.Ref())
		defer unlock()
		run := domain.ModelRun{
			Handle:           h,
			State:            domain.RunCreated,
			ExperimentID:     in.ExperimentID,
			FunctionalDataID: in.FunctionalDataID,
			ImageGroupID:     in.ImageGroupID,
			ModelID:          in.ModelID,
			Arguments:        attribute.WithDefaults(args, in.ArgumentDefinitions),
			Schedule:         domain.Schedule{CreatedAt: h.CreatedAt},
		}
		if err := m.commit(ctx, &run, handback{}); err != nil {
			return domain.ModelRun{}, err
		}
		return run, nil
	})
}

// Start moves a CREATED run to RUNNING.
func (m *ModelRuns) Start(ctx context.Context, id string) (domain.ModelRun, error) {
	return m.transition(ctx, "start", id, domain.RunRunning, func(run *domain.ModelRun) error {
		now := m.svc.now()
		run.Schedule.StartedAt = &now
		return nil
	})
}

// CompleteFailure moves a RUNNING run to FAILED with message.
func (m *ModelRuns) CompleteFailure(ctx context.Context, id, message string) (domain.ModelRun, error) {
	return m.transition(ctx, "complete_failure", id, domain.RunFailed, func(run *domain.ModelRun) error {
		now := m.svc.now()
		run.Schedule.FinishedAt = &now
		run.Error = message
		return nil
	})
}

// Cancel marks a CREATED or RUNNING run as CANCELED. It does not stop any
// computation driven by the caller.
func (m *ModelRuns) Cancel(ctx context.Context, id string) (domain.ModelRun, error) {
	return m.transition(ctx, "cancel", id, domain.RunCanceled, func(run *domain.ModelRun) error {
		now := m.svc.now()
		run.Schedule.FinishedAt = &now
		return nil
	})
}

// CompleteSuccess stores the result attachments and moves a RUNNING run to
// SUCCESS. Results are written before the state changes; if the state cannot
// be recorded they are removed again.
func (m *ModelRuns) CompleteSuccess(ctx context.Context, id string, results []AttachmentInput) (domain.ModelRun, error) {
	var written []string
	run, err := m.transition(ctx, "complete_success", id, domain.RunSuccess, func(run *domain.ModelRun) error {
		for _, in := range results {
			att, err := m.svc.attachments.put(ctx, run.Ref(), in)
			if err != nil {
				return err
			}
			written = append(written, att.Filename)
			if !slices.Contains(run.Results, att.Filename) {
				run.Results = append(run.Results, att.Filename)
			}
		}
		now := m.svc.now()
		run.Schedule.FinishedAt = &now
		return nil
	})
	if err != nil && len(written) > 0 {
		ref := m.ref(id)
		for _, name := range written {
			if _, rerr := m.svc.attachments.remove(context.WithoutCancel(ctx), ref, name); rerr != nil {
				m.svc.logger.Warn("remove result after failed completion", "id", id, "file", name, "error", rerr)
			}
		}
	}
	return run, err
}

// transition applies fn and the state change under the run lock.
func (m *ModelRuns) transition(ctx context.Context, verb, id string, to domain.RunState, fn func(*domain.ModelRun) error) (domain.ModelRun, error) {
	op := m.op(verb)
	return runValue(m.svc, ctx, op, m.ref(id), func(ctx context.Context) (domain.ModelRun, error) {
		unlock := m.svc.lock(m.ref(id))
		defer unlock()
		run, err := m.load(ctx, op, id)
		if err != nil {
			return domain.ModelRun{}, err
		}
		if !canTransition(run.State, to) {
			return domain.ModelRun{}, domain.InvalidTransition(op, id, run.State, to)
		}
		if err := fn(&run); err != nil {
			return domain.ModelRun{}, err
		}
		run.State = to
		run.Properties[domain.PropertyState] = domain.String(string(to))
		if err := m.save(ctx, op, &run); err != nil {
			return domain.ModelRun{}, err
		}
		m.svc.logger.Info("model run transition", "id", id, "state", to)
		return run, nil
	})
}

// AddAttachment stores a result file on a SUCCESS run.
func (m *ModelRuns) AddAttachment(ctx context.Context, id string, in AttachmentInput) (domain.Attachment, error) {
	op := m.op("add_attachment")
	return runValue(m.svc, ctx, op, m.ref(id), func(ctx context.Context) (domain.Attachment, error) {
		unlock := m.svc.lock(m.ref(id))
		defer unlock()
		run, err := m.load(ctx, op, id)
		if err != nil {
			return domain.Attachment{}, err
		}
		if run.State != domain.RunSuccess {
			return domain.Attachment{}, domain.NewError(domain.ErrInvalidStateTransition, op, run.Ref(), "attachments require a successful run, run is "+string(run.State))
		}
		att, err := m.svc.attachments.put(ctx, run.Ref(), in)
		if err != nil {
			return domain.Attachment{}, err
		}
		if slices.Contains(run.Results, att.Filename) {
			return att, nil
		}
		run.Results = append(run.Results, att.Filename)
		if err := m.save(ctx, op, &run); err != nil {
			_, _ = m.svc.attachments.remove(context.WithoutCancel(ctx), run.Ref(), att.Filename)
			return domain.Attachment{}, err
		}
		return att, nil
	})
}

// DeleteAttachment removes a result file and drops it from the run results.
// It reports whether the file existed.
func (m *ModelRuns) DeleteAttachment(ctx context.Context, id, filename string) (bool, error) {
	op := m.op("delete_attachment")
	return runValue(m.svc, ctx, op, m.ref(id), func(ctx context.Context) (bool, error) {
		unlock := m.svc.lock(m.ref(id))
		defer unlock()
		run, err := m.load(ctx, op, id)
		if err != nil {
			return false, err
		}
		name := cleanName(filename)
		if i := slices.Index(run.Results, name); i >= 0 {
			run.Results = slices.Delete(run.Results, i, i+1)
			if err := m.save(ctx, op, &run); err != nil {
				return false, err
			}
		}
		return m.svc.attachments.remove(ctx, run.Ref(), name)
	})
}

// GetAttachment returns the bytes of a result file.
func (m *ModelRuns) GetAttachment(ctx context.Context, id, filename string) ([]byte, error) {
	return m.svc.attachments.Get(ctx, m.ref(id), filename)
}

// ListAttachments returns the result file records of a run.
func (m *ModelRuns) ListAttachments(ctx context.Context, id string) ([]domain.Attachment, error) {
	if err := m.svc.ownerExists(ctx, m.op("list_attachments"), m.ref(id)); err != nil {
		return nil, err
	}
	return m.svc.attachments.List(ctx, m.ref(id))
}
