package quotations

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/sales/pricing"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service owns the quotation lifecycle: DRAFT → SENT → ACCEPTED /
// REJECTED, with EXPIRED derived lazily from validUntil at read time.
type Service struct {
	repo     Repository
	numbers  shared.NumberSource
	validate *validator.Validate
}

// NewService builds Service.
func NewService(repo Repository, numbers shared.NumberSource) *Service {
	return &Service{
		repo:     repo,
		numbers:  numbers,
		validate: validator.New(),
	}
}

// Create builds a new DRAFT quotation. All line and document amounts
// are recomputed; submitted totals are ignored.
func (s *Service) Create(ctx context.Context, req CreateQuotationRequest) (*Quotation, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, shared.NewValidationError("", err.Error())
	}
	if req.ValidUntil.Before(req.QuoteDate) {
		return nil, shared.NewValidationError("valid_until", "must not be before quote_date")
	}

	totals, lines, err := calculateLines(req.Currency, req.Lines)
	if err != nil {
		return nil, err
	}

	docNumber, err := s.numbers.Next(ctx, "quotation")
	if err != nil {
		return nil, fmt.Errorf("generate doc number: %w", err)
	}

	quotation := Quotation{
		DocNumber:      docNumber,
		SalesCaseID:    req.SalesCaseID,
		CustomerID:     req.CustomerID,
		Revision:       1,
		QuoteDate:      req.QuoteDate,
		ValidUntil:     req.ValidUntil,
		Status:         QuotationStatusDraft,
		Currency:       req.Currency,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		TaxAmount:      totals.TaxAmount,
		TotalAmount:    totals.Total,
		Notes:          req.Notes,
	}

	var quotationID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		revision, err := repo.MaxRevision(ctx, req.SalesCaseID)
		if err != nil {
			return err
		}
		quotation.Revision = revision + 1

		id, err := repo.Create(ctx, quotation)
		if err != nil {
			return fmt.Errorf("create quotation: %w", err)
		}
		quotationID = id

		for _, line := range lines {
			line.QuotationID = quotationID
			if _, err := repo.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("insert quotation line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.repo.Get(ctx, quotationID)
}

// Update edits a DRAFT quotation. Providing lines replaces all lines
// and recomputes the document totals in the same transaction.
func (s *Service) Update(ctx context.Context, id int64, req UpdateQuotationRequest) (*Quotation, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	if existing.Status != QuotationStatusDraft {
		return nil, &shared.InvalidStateError{
			Entity:   "quotation",
			ID:       id,
			Current:  string(existing.Status),
			Required: string(QuotationStatusDraft),
		}
	}

	updates := make(map[string]interface{})
	if req.QuoteDate != nil {
		updates["quote_date"] = *req.QuoteDate
	}
	if req.ValidUntil != nil {
		updates["valid_until"] = *req.ValidUntil
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}

	var linesToInsert []QuotationLine
	if req.Lines != nil {
		totals, lines, err := calculateLines(existing.Currency, *req.Lines)
		if err != nil {
			return nil, err
		}
		linesToInsert = lines
		updates["subtotal"] = totals.Subtotal
		updates["discount_amount"] = totals.DiscountAmount
		updates["tax_amount"] = totals.TaxAmount
		updates["total_amount"] = totals.Total
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if len(updates) > 0 {
			if err := repo.Update(ctx, id, updates); err != nil {
				return err
			}
		}
		if req.Lines != nil {
			if err := repo.DeleteLines(ctx, id); err != nil {
				return err
			}
			for _, line := range linesToInsert {
				line.QuotationID = id
				if _, err := repo.InsertLine(ctx, line); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update quotation: %w", err)
	}

	return s.repo.Get(ctx, id)
}

// Send transitions DRAFT → SENT.
func (s *Service) Send(ctx context.Context, id int64) (*Quotation, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	if eff := existing.EffectiveStatus(time.Now()); eff != QuotationStatusDraft {
		return nil, &shared.InvalidStateError{
			Entity:   "quotation",
			ID:       id,
			Current:  string(eff),
			Required: string(QuotationStatusDraft),
		}
	}

	err = s.repo.UpdateStatus(ctx, id, QuotationStatusDraft, QuotationStatusSent, existing.Version)
	if err != nil {
		return nil, fmt.Errorf("send quotation: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Accept transitions SENT → ACCEPTED. Expiry is revalidated against
// the clock at write time, and a sales case may hold only one
// ACCEPTED quotation: accepting another fails unless supersedePrior
// demotes the currently accepted one in the same transaction.
func (s *Service) Accept(ctx context.Context, id int64, supersedePrior bool) (*Quotation, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	if eff := existing.EffectiveStatus(time.Now()); eff != QuotationStatusSent {
		return nil, &shared.InvalidStateError{
			Entity:   "quotation",
			ID:       id,
			Current:  string(eff),
			Required: string(QuotationStatusSent),
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		prior, err := repo.FindAcceptedByCase(ctx, existing.SalesCaseID)
		if err != nil {
			return err
		}
		if prior != nil && prior.ID != id {
			if !supersedePrior {
				return &shared.InvalidStateError{
					Entity:   "quotation",
					ID:       prior.ID,
					Current:  string(QuotationStatusAccepted),
					Required: "supersede before accepting another quotation in the case",
				}
			}
			if err := repo.UpdateStatus(ctx, prior.ID, QuotationStatusAccepted, QuotationStatusSuperseded, prior.Version); err != nil {
				return err
			}
		}
		return repo.UpdateStatus(ctx, id, QuotationStatusSent, QuotationStatusAccepted, existing.Version)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Reject transitions SENT → REJECTED.
func (s *Service) Reject(ctx context.Context, id int64) (*Quotation, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	if eff := existing.EffectiveStatus(time.Now()); eff != QuotationStatusSent {
		return nil, &shared.InvalidStateError{
			Entity:   "quotation",
			ID:       id,
			Current:  string(eff),
			Required: string(QuotationStatusSent),
		}
	}

	err = s.repo.UpdateStatus(ctx, id, QuotationStatusSent, QuotationStatusRejected, existing.Version)
	if err != nil {
		return nil, fmt.Errorf("reject quotation: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Clone produces a new DRAFT quotation in the same case with the next
// revision number and a copy of every line. The source is untouched.
func (s *Service) Clone(ctx context.Context, id int64) (*Quotation, error) {
	source, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}

	docNumber, err := s.numbers.Next(ctx, "quotation")
	if err != nil {
		return nil, fmt.Errorf("generate doc number: %w", err)
	}

	clone := *source
	clone.ID = 0
	clone.DocNumber = docNumber
	clone.Status = QuotationStatusDraft
	clone.Version = 0
	clone.Notes = source.Notes
	clone.Lines = nil

	var cloneID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		revision, err := repo.MaxRevision(ctx, source.SalesCaseID)
		if err != nil {
			return err
		}
		clone.Revision = revision + 1

		id, err := repo.Create(ctx, clone)
		if err != nil {
			return fmt.Errorf("create clone: %w", err)
		}
		cloneID = id

		for _, line := range source.Lines {
			line.ID = 0
			line.QuotationID = cloneID
			if _, err := repo.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("copy quotation line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.repo.Get(ctx, cloneID)
}

// Get returns one quotation with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*Quotation, error) {
	return s.repo.Get(ctx, id)
}

// List returns quotations matching the filter.
func (s *Service) List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	return s.repo.List(ctx, req)
}

func calculateLines(currency string, reqs []LineRequest) (pricing.DocumentTotals, []QuotationLine, error) {
	inputs := make([]pricing.LineInput, len(reqs))
	for i, r := range reqs {
		inputs[i] = pricing.LineInput{
			LineOrder:   r.LineOrder,
			IsHeader:    r.IsHeader,
			ItemID:      r.ItemID,
			Description: r.Description,
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
			DiscountPct: r.DiscountPct,
			TaxPct:      r.TaxPct,
		}
	}

	totals, calc, err := pricing.Calculate(currency, inputs)
	if err != nil {
		return pricing.DocumentTotals{}, nil, err
	}

	lines := make([]QuotationLine, len(calc))
	for i, c := range calc {
		lines[i] = QuotationLine{
			LineOrder:      c.LineOrder,
			IsHeader:       c.IsHeader,
			ItemID:         c.ItemID,
			Description:    c.Description,
			Quantity:       c.Quantity,
			UnitPrice:      c.UnitPrice,
			DiscountPct:    c.DiscountPct,
			DiscountAmount: c.DiscountAmount,
			TaxPct:         c.TaxPct,
			TaxAmount:      c.TaxAmount,
			LineTotal:      c.Total,
		}
	}
	return totals, lines, nil
}
