package core

import (
	"context"

	"scodata/pkg/domain"
)

// Experiments manages experiment resources. An experiment refers to a subject,
// a stimulus image group and optionally functional data; none are owned.
type Experiments struct {
	resources[domain.Experiment]
}

// ExperimentInput describes a new experiment.
type ExperimentInput struct {
	SubjectID        string
	ImageGroupID     string
	FunctionalDataID string
	Properties       domain.Properties
}

// Create stores a new experiment after checking that its references resolve.
func (m *Experiments) Create(ctx context.Context, in ExperimentInput) (domain.Experiment, error) {
	op := m.op("create")
	return runValue(m.svc, ctx, op, domain.Ref{Type: m.typ}, func(ctx context.Context) (domain.Experiment, error) {
		refs := []domain.Ref{
			{Type: domain.TypeSubject, ID: in.SubjectID},
			{Type: domain.TypeImageGroup, ID: in.ImageGroupID},
		}
		if in.FunctionalDataID != "" {
			refs = append(refs, domain.Ref{Type: domain.TypeFunctionalData, ID: in.FunctionalDataID})
		}
		for _, ref := range refs {
			if err := m.svc.ownerExists(ctx, op, ref); err != nil {
				return domain.Experiment{}, err
			}
		}
		h, err := m.newHandle(in.Properties, "")
		if err != nil {
			return domain.Experiment{}, err
		}
		unlock := m.svc.lock(h.Ref())
		defer unlock()
		exp := domain.Experiment{
			Handle:           h,
			SubjectID:        in.SubjectID,
			ImageGroupID:     in.ImageGroupID,
			FunctionalDataID: in.FunctionalDataID,
		}
		if err := m.commit(ctx, &exp, handback{}); err != nil {
			return domain.Experiment{}, err
		}
		return exp, nil
	})
}

// SetFunctionalData points the experiment at a functional data resource. An
// empty id clears the reference.
func (m *Experiments) SetFunctionalData(ctx context.Context, id, funcdataID string) (domain.Experiment, error) {
	op := m.op("set_funcdata")
	return runValue(m.svc, ctx, op, m.ref(id), func(ctx context.Context) (domain.Experiment, error) {
		if funcdataID != "" {
			if err := m.svc.ownerExists(ctx, op, domain.Ref{Type: domain.TypeFunctionalData, ID: funcdataID}); err != nil {
				return domain.Experiment{}, err
			}
		}
		unlock := m.svc.lock(m.ref(id))
		defer unlock()
		exp, err := m.load(ctx, op, id)
		if err != nil {
			return domain.Experiment{}, err
		}
		exp.FunctionalDataID = funcdataID
		if err := m.save(ctx, op, &exp); err != nil {
			return domain.Experiment{}, err
		}
		return exp, nil
	})
}
