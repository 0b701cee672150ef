package entity

import (
	"context"

	"github.com/jordanlanch/territoryengine/pkg/models"
)

// TransferOwnership sets the entity's owner and persists it. Entities that are
// not Ownable, or already owned by newOwnerID, are left alone and report false.
// On a failed save the in-memory owner is restored.
func (r *Registry) TransferOwnership(ctx context.Context, e models.Assignable, newOwnerID string) (bool, error) {
	o, ok := e.(models.Ownable)
	if !ok {
		return false, nil
	}
	previous := o.OwnerID()
	if previous == newOwnerID {
		return false, nil
	}

	o.SetOwnerID(newOwnerID)
	if err := r.Save(ctx, e); err != nil {
		o.SetOwnerID(previous)
		return false, err
	}
	return true, nil
}
