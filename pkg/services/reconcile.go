package services

import (
	"errors"
	"strings"

	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/validation"
)

// Per-entity error messages returned to providers.
const (
	msgDuplicateEntity = "Duplicate entity_id in payload"
	msgEntityNotFound  = "Entity not found"
)

// fullSyncPlanner diffs a full-sync payload against a provider's current
// slice. Entities are added in chunks; Finish computes deletions.
type fullSyncPlanner struct {
	providerID string
	current    []*models.ProviderEntity
	byID       map[string]*models.ProviderEntity
	seen       map[string]struct{}
	cs         *models.Changeset
}

func newFullSyncPlanner(providerID string, current []*models.ProviderEntity) *fullSyncPlanner {
	byID := make(map[string]*models.ProviderEntity, len(current))
	for _, e := range current {
		byID[e.EntityID] = e
	}
	return &fullSyncPlanner{
		providerID: providerID,
		current:    current,
		byID:       byID,
		seen:       make(map[string]struct{}),
		cs:         &models.Changeset{},
	}
}

// Add plans a chunk of the payload.
func (p *fullSyncPlanner) Add(inputs []models.EntityInput) {
	for i := range inputs {
		in := &inputs[i]
		p.cs.Result.Total++

		id := strings.TrimSpace(in.EntityID)
		if _, dup := p.seen[id]; dup {
			p.fail(id, msgDuplicateEntity)
			continue
		}
		// Marked before validation: an invalid entry keeps its stored row.
		p.seen[id] = struct{}{}

		row, err := validation.NormalizeEntity(p.providerID, in)
		if err != nil {
			p.fail(id, problemMessage(err))
			continue
		}

		existing := p.byID[id]
		switch {
		case existing == nil:
			p.cs.Result.Created++
			p.cs.Upserts = append(p.cs.Upserts, row)
		case existing.SameContent(row):
			p.cs.Result.Unchanged++
		default:
			p.cs.Result.Updated++
			p.cs.Upserts = append(p.cs.Upserts, row)
		}
	}
}

// Result returns the running counters.
func (p *fullSyncPlanner) Result() models.SyncResult {
	return p.cs.Result
}

// Finish deletes every stored entity the payload omitted and returns the plan.
func (p *fullSyncPlanner) Finish() *models.Changeset {
	for _, e := range p.current {
		if _, ok := p.seen[e.EntityID]; ok {
			continue
		}
		p.cs.Deletes = append(p.cs.Deletes, e.EntityID)
		p.cs.Result.Deleted++
	}
	return p.cs
}

func (p *fullSyncPlanner) fail(entityID, message string) {
	p.cs.Result.Errors++
	p.cs.Errors = append(p.cs.Errors, models.EntityError{EntityID: entityID, Error: message})
}

// PlanFullSync computes the declarative replace of current by inputs: new
// entities are created, changed ones updated, identical ones left alone and
// omitted ones deleted. Invalid entries are reported and keep their stored row.
func PlanFullSync(providerID string, current []*models.ProviderEntity, inputs []models.EntityInput) *models.Changeset {
	p := newFullSyncPlanner(providerID, current)
	p.Add(inputs)
	return p.Finish()
}

// PlanOperations applies ops in order to a view of current and returns the
// net change. Entities no operation names are never touched.
func PlanOperations(providerID string, current []*models.ProviderEntity, ops []models.Operation) *models.Changeset {
	original := make(map[string]*models.ProviderEntity, len(current))
	view := make(map[string]*models.ProviderEntity, len(current))
	for _, e := range current {
		original[e.EntityID] = e
		view[e.EntityID] = e
	}

	cs := &models.Changeset{}
	var touched []string
	touchedSet := make(map[string]struct{})
	touch := func(id string) {
		if _, ok := touchedSet[id]; !ok {
			touchedSet[id] = struct{}{}
			touched = append(touched, id)
		}
	}
	fail := func(id, message string) {
		cs.Result.Errors++
		cs.Errors = append(cs.Errors, models.EntityError{EntityID: id, Error: message})
	}

	for i := range ops {
		op := &ops[i]
		cs.Result.Total++
		id := strings.TrimSpace(op.TargetEntityID())

		switch op.Action {
		case models.SyncActionUpsert:
			if op.Entity == nil {
				fail(id, "Missing entity")
				continue
			}
			row, err := validation.NormalizeEntity(providerID, op.Entity)
			if err != nil {
				fail(id, problemMessage(err))
				continue
			}
			existing := view[id]
			switch {
			case existing == nil:
				cs.Result.Created++
			case existing.SameContent(row):
				cs.Result.Unchanged++
			default:
				cs.Result.Updated++
			}
			view[id] = row
			touch(id)
		case models.SyncActionDelete:
			if view[id] == nil {
				fail(id, msgEntityNotFound)
				continue
			}
			delete(view, id)
			cs.Result.Deleted++
			touch(id)
		}
	}

	for _, id := range touched {
		before, after := original[id], view[id]
		switch {
		case after == nil && before != nil:
			cs.Deletes = append(cs.Deletes, id)
		case after != nil && (before == nil || !before.SameContent(after)):
			cs.Upserts = append(cs.Upserts, after)
		}
	}
	return cs
}

func problemMessage(err error) string {
	var p *validation.EntityProblem
	if errors.As(err, &p) {
		return p.Message
	}
	return err.Error()
}
