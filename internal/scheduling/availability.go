package scheduling

import (
	"context"
	"fmt"
	"time"
)

// IsSlotFree reports whether practitionerID has no live appointment at
// exactly at. excludeID skips the appointment being re-checked. Storage
// failures return false together with the error.
func (s *Service) IsSlotFree(ctx context.Context, practitionerID int64, at time.Time, excludeID *int64) (bool, error) {
	return isSlotFree(ctx, s.repo, practitionerID, at, excludeID)
}

func isSlotFree(ctx context.Context, st Store, practitionerID int64, at time.Time, excludeID *int64) (bool, error) {
	n, err := st.CountActiveAppointmentsAt(ctx, practitionerID, at, excludeID)
	if err != nil {
		return false, fmt.Errorf("check slot availability: %w", err)
	}
	return n == 0, nil
}

func requireSlotFree(ctx context.Context, st Store, practitionerID int64, at time.Time, excludeID *int64) error {
	free, err := isSlotFree(ctx, st, practitionerID, at, excludeID)
	if err != nil {
		return err
	}
	if !free {
		return ErrSlotTaken
	}
	return nil
}
