package manager

import (
	"context"
	"errors"
	"fmt"

	"menza/internal/apperr"
	"menza/internal/config"
	"menza/internal/db"
	"menza/internal/events"
	"menza/internal/metrics"
	"menza/internal/model"
	"menza/internal/slots"
)

// WorkingHourInput is one meal window as supplied by a client.
type WorkingHourInput struct {
	Meal string `validate:"required"`
	From string `validate:"required"`
	To   string `validate:"required"`
}

// CanteenInput is the payload of a canteen create.
type CanteenInput struct {
	Name         string             `validate:"required"`
	Location     string             `validate:"required"`
	Capacity     int                `validate:"gt=0"`
	WorkingHours []WorkingHourInput `validate:"dive"`
}

// CanteenPatch is a partial canteen update. Nil or empty fields are left unchanged.
type CanteenPatch struct {
	Name         *string
	Location     *string
	Capacity     *int
	WorkingHours []WorkingHourInput
}

// GetCanteen returns one canteen.
func (m *Manager) GetCanteen(ctx context.Context, id int64) (*model.Canteen, error) {
	c, err := m.store.GetCanteen(ctx, id)
	if err != nil {
		return nil, canteenNotFound(err)
	}
	return c, nil
}

// ListCanteens returns all canteens ordered by id.
func (m *Manager) ListCanteens(ctx context.Context) ([]model.Canteen, error) {
	canteens, err := m.store.ListCanteens(ctx)
	if err != nil {
		return nil, fmt.Errorf("list canteens: %w", err)
	}
	return canteens, nil
}

// CreateCanteen stores a new canteen on behalf of an admin.
func (m *Manager) CreateCanteen(ctx context.Context, in *CanteenInput, requesterID int64) (*model.Canteen, error) {
	if err := m.requireAdmin(ctx, requesterID, "Only an admin can create a canteen."); err != nil {
		return nil, err
	}
	if in == nil {
		return nil, apperr.New(apperr.BadRequest, "Canteen data must be provided.")
	}
	if len(in.WorkingHours) == 0 {
		return nil, apperr.New(apperr.BadRequest, "Canteen must have working hours.")
	}
	if err := m.validate.Struct(in); err != nil {
		return nil, apperr.Wrap(apperr.BadRequest, validationMessage("Invalid canteen data", err), err)
	}
	hours, err := workingHours(in.WorkingHours)
	if err != nil {
		return nil, err
	}

	c := &model.Canteen{Name: in.Name, Location: in.Location, Capacity: in.Capacity, WorkingHours: hours}
	if err := m.store.CreateCanteen(ctx, c); err != nil {
		return nil, duplicateName(err)
	}

	metrics.IncCanteenOp("create")
	m.logger.Info().Int64("canteen_id", c.ID).Str("name", c.Name).Int64("by", requesterID).Msg("Canteen created")
	m.publish(events.CanteenChanged, events.CanteenPayload{CanteenID: c.ID})
	return c, nil
}

// UpdateCanteen merges patch into an existing canteen on behalf of an admin.
// Working hours are replaced only when the patch carries at least one.
func (m *Manager) UpdateCanteen(ctx context.Context, id int64, patch *CanteenPatch, requesterID int64) (*model.Canteen, error) {
	if patch == nil {
		return nil, apperr.New(apperr.BadRequest, "Canteen data must be provided.")
	}
	if err := m.requireAdmin(ctx, requesterID, "Only an admin can update the canteen."); err != nil {
		return nil, err
	}

	c, err := m.store.GetCanteen(ctx, id)
	if err != nil {
		return nil, canteenNotFound(err)
	}

	if patch.Name != nil && *patch.Name != "" {
		c.Name = *patch.Name
	}
	if patch.Location != nil && *patch.Location != "" {
		c.Location = *patch.Location
	}
	if patch.Capacity != nil && *patch.Capacity > 0 {
		c.Capacity = *patch.Capacity
	}
	c.WorkingHours = nil
	if len(patch.WorkingHours) > 0 {
		for i := range patch.WorkingHours {
			if err := m.validate.Struct(&patch.WorkingHours[i]); err != nil {
				return nil, apperr.Wrap(apperr.BadRequest, validationMessage("Invalid canteen data", err), err)
			}
		}
		if c.WorkingHours, err = workingHours(patch.WorkingHours); err != nil {
			return nil, err
		}
	}

	if err := m.store.UpdateCanteen(ctx, c); err != nil {
		return nil, canteenNotFound(duplicateName(err))
	}

	metrics.IncCanteenOp("update")
	m.logger.Info().Int64("canteen_id", c.ID).Int64("by", requesterID).Msg("Canteen updated")
	m.publish(events.CanteenChanged, events.CanteenPayload{CanteenID: c.ID})
	return m.GetCanteen(ctx, c.ID)
}

// DeleteCanteen cancels every active reservation of the canteen and removes it, atomically.
// Reservation rows are retained.
func (m *Manager) DeleteCanteen(ctx context.Context, id int64, requesterID int64) error {
	if err := m.requireAdmin(ctx, requesterID, "Only an admin can delete the canteen."); err != nil {
		return err
	}

	cancelled, err := m.store.DeleteCanteenCascadeCancel(ctx, id)
	if err != nil {
		return canteenNotFound(err)
	}

	metrics.IncCanteenOp("delete")
	metrics.AddCancellations("canteen_delete", int(cancelled))
	m.logger.Warn().
		Int64("canteen_id", id).
		Int64("cancelled", cancelled).
		Int64("by", requesterID).
		Msg("Canteen deleted")
	m.publish(events.CanteenDeleted, events.CanteenPayload{CanteenID: id, Cancelled: cancelled})
	return nil
}

// SyncCanteensFromConfig applies the canteen seed file.
func (m *Manager) SyncCanteensFromConfig(ctx context.Context, cfg *config.CanteensConfig) error {
	ids, err := m.store.SyncCanteensFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("sync canteens: %w", err)
	}
	for _, id := range ids {
		m.publish(events.CanteenChanged, events.CanteenPayload{CanteenID: id})
	}
	metrics.IncCanteenOp("sync")
	return nil
}

func workingHours(in []WorkingHourInput) ([]model.WorkingHour, error) {
	out := make([]model.WorkingHour, 0, len(in))
	for i, wh := range in {
		meal, err := model.ParseMealType(wh.Meal)
		if err != nil {
			return nil, apperr.Newf(apperr.BadRequest, "Working hour %d: meal must be breakfast, lunch or dinner.", i+1)
		}
		from, err := slots.ParseTimeOfDay(wh.From)
		if err != nil {
			return nil, apperr.Newf(apperr.BadRequest, "Working hour %d: times must be HH:MM.", i+1)
		}
		to, err := slots.ParseTimeOfDay(wh.To)
		if err != nil {
			return nil, apperr.Newf(apperr.BadRequest, "Working hour %d: times must be HH:MM.", i+1)
		}
		if from >= to {
			return nil, apperr.Newf(apperr.BadRequest, "Working hour %d: from must be before to.", i+1)
		}
		out = append(out, model.WorkingHour{Meal: meal, From: wh.From, To: wh.To})
	}
	return out, nil
}

func canteenNotFound(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.Wrap(apperr.CanteenNotFound, "Canteen does not exist", err)
	}
	return err
}

func duplicateName(err error) error {
	if errors.Is(err, db.ErrDuplicate) {
		return apperr.Wrap(apperr.Conflict, "A canteen with this name already exists.", err)
	}
	return err
}
