package booking

import (
	"context"
	"fmt"
	"time"

	"menza/internal/apperr"
	"menza/internal/metrics"
	"menza/internal/model"
	"menza/internal/slots"
)

// AvailabilityRequest is an unparsed availability query.
type AvailabilityRequest struct {
	StartDate string
	EndDate   string
	StartTime string
	EndTime   string
	Duration  int
}

// CanteenStatus lists the slots of one canteen for a query.
type CanteenStatus struct {
	CanteenID int64
	Slots     []slots.Slot
}

func (s *Service) parseQuery(req AvailabilityRequest) (slots.Query, error) {
	formatErr := apperr.New(apperr.InvalidFormat, "Invalid date or time format.")

	start, err := slots.ParseDate(req.StartDate)
	if err != nil {
		return slots.Query{}, formatErr
	}
	end, err := slots.ParseDate(req.EndDate)
	if err != nil {
		return slots.Query{}, formatErr
	}
	timeStart, err := slots.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return slots.Query{}, formatErr
	}
	timeEnd, err := slots.ParseTimeOfDay(req.EndTime)
	if err != nil {
		return slots.Query{}, formatErr
	}

	if start.After(end) || timeStart >= timeEnd || !slots.ValidDuration(req.Duration) {
		return slots.Query{}, apperr.New(apperr.BadRequest, "Invalid input parameters.")
	}
	if days := int(end.Sub(start)/(24*time.Hour)) + 1; days > s.maxDays {
		return slots.Query{}, apperr.Newf(apperr.BadRequest, "Date range cannot exceed %d days.", s.maxDays)
	}

	return slots.Query{
		DateStart: start,
		DateEnd:   end,
		TimeStart: timeStart,
		TimeEnd:   timeEnd,
		Duration:  req.Duration,
	}, nil
}

func cacheKey(q slots.Query) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d",
		slots.FormatDate(q.DateStart), slots.FormatDate(q.DateEnd), q.TimeStart, q.TimeEnd, q.Duration)
}

// CanteenStatus computes the slots of one canteen. The query is validated before the
// canteen is looked up.
func (s *Service) CanteenStatus(ctx context.Context, id int64, req AvailabilityRequest) (*CanteenStatus, error) {
	q, err := s.parseQuery(req)
	if err != nil {
		return nil, err
	}

	canteen, err := s.store.GetCanteen(ctx, id)
	if err != nil {
		return nil, notFound(err, apperr.CanteenNotFound, "Canteen does not exist")
	}

	computed, err := s.slotsFor(ctx, canteen, q)
	if err != nil {
		return nil, err
	}
	return &CanteenStatus{CanteenID: canteen.ID, Slots: computed}, nil
}

// AllCanteensStatus computes the slots of every canteen, ordered by canteen id.
func (s *Service) AllCanteensStatus(ctx context.Context, req AvailabilityRequest) ([]CanteenStatus, error) {
	q, err := s.parseQuery(req)
	if err != nil {
		return nil, err
	}

	canteens, err := s.store.ListCanteens(ctx)
	if err != nil {
		return nil, fmt.Errorf("list canteens: %w", err)
	}

	out := make([]CanteenStatus, 0, len(canteens))
	for i := range canteens {
		computed, err := s.slotsFor(ctx, &canteens[i], q)
		if err != nil {
			return nil, err
		}
		out = append(out, CanteenStatus{CanteenID: canteens[i].ID, Slots: computed})
	}
	return out, nil
}

func (s *Service) slotsFor(ctx context.Context, canteen *model.Canteen, q slots.Query) ([]slots.Slot, error) {
	started := s.clock.Now()
	key := cacheKey(q)

	var entry string
	if s.cache != nil {
		cached, k, ok := s.cache.Get(ctx, canteen.ID, key)
		if ok {
			metrics.ObserveAvailability(true, s.clock.Since(started))
			return cached, nil
		}
		entry = k
	}

	computed, err := s.calc.ComputeSlots(ctx, *canteen, q)
	if err != nil {
		return nil, fmt.Errorf("compute slots for canteen %d: %w", canteen.ID, err)
	}
	if computed == nil {
		computed = []slots.Slot{}
	}

	if s.cache != nil {
		s.cache.Set(ctx, entry, computed)
	}
	metrics.ObserveAvailability(false, s.clock.Since(started))
	return computed, nil
}
