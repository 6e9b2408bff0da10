// Package adapters contains anti-corruption adapters for cross-module
// communication. Each adapter translates one module's port into another
// module's service or repository surface.
package adapters

import (
	"context"

	leadsrepo "closing_backend/internal/leads/repository"
	nurturing "closing_backend/internal/nurturing/service"

	"github.com/google/uuid"
)

// LeadsDirectoryAdapter exposes the leads repository through the nurturing
// module's LeadDirectory port.
type LeadsDirectoryAdapter struct {
	repo leadsrepo.LeadsRepository
}

func NewLeadsDirectoryAdapter(repo leadsrepo.LeadsRepository) *LeadsDirectoryAdapter {
	return &LeadsDirectoryAdapter{repo: repo}
}

func (a *LeadsDirectoryAdapter) GetContact(ctx context.Context, leadID uuid.UUID) (nurturing.Contact, error) {
	lead, err := a.repo.GetByID(ctx, leadID)
	if err != nil {
		return nurturing.Contact{}, err
	}

	contact := nurturing.Contact{
		LeadID:   lead.ID,
		Phone:    lead.Phone,
		OptedOut: lead.OptedOut,
	}
	if lead.Email != nil {
		contact.Email = *lead.Email
	}
	return contact, nil
}

func (a *LeadsDirectoryAdapter) SetOptedOut(ctx context.Context, leadID uuid.UUID, optedOut bool) error {
	return a.repo.SetOptedOut(ctx, leadID, optedOut)
}

// Compile-time check that the adapter satisfies the port.
var _ nurturing.LeadDirectory = (*LeadsDirectoryAdapter)(nil)
