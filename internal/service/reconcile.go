package service

import (
	"context"
	"fmt"
	"time"

	"pumpdesk/backend/internal/domain"
	"pumpdesk/backend/internal/metrics"
	"pumpdesk/backend/internal/store"
)

// computeSaleLines derives per-nozzle sale lines for one checkpoint. Every
// nozzle must belong to the checkpoint and every current reading must be at
// or above its stored previous reading. A checkpoint with zero entered
// readings is a valid no-sales run.
func (s *Service) computeSaleLines(ctx context.Context, checkpointName string, entries []domain.ReadingEntry, rates domain.RateTable) ([]domain.SaleLine, int64, error) {
	cp, ok := s.registry.Checkpoint(checkpointName)
	if !ok {
		return nil, 0, fmt.Errorf("unknown checkpoint %q: %w", checkpointName, store.ErrValidation)
	}

	nozzles := make([]string, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if !s.registry.Owns(cp.Name, entry.Nozzle) {
			return nil, 0, fmt.Errorf("nozzle %q does not belong to checkpoint %q: %w", entry.Nozzle, cp.Name, store.ErrValidation)
		}
		if seen[entry.Nozzle] {
			return nil, 0, fmt.Errorf("duplicate reading for nozzle %q: %w", entry.Nozzle, store.ErrValidation)
		}
		seen[entry.Nozzle] = true
		nozzles = append(nozzles, entry.Nozzle)
	}

	previous, err := s.repo.GetPreviousReadings(ctx, nozzles)
	if err != nil {
		return nil, 0, err
	}

	lines := make([]domain.SaleLine, 0, len(entries))
	var total int64
	for _, entry := range entries {
		prev := previous[entry.Nozzle]
		if entry.Current < prev {
			return nil, 0, fmt.Errorf("nozzle %q: current reading %d below previous %d: %w",
				entry.Nozzle, entry.Current, prev, store.ErrValidation)
		}

		fuel, _ := s.registry.FuelTypeFor(entry.Nozzle)
		rate := rates.Resolve(fuel, s.fallbackRates)
		liters := entry.Current - prev
		amount := liters * rate

		lines = append(lines, domain.SaleLine{
			Nozzle:      entry.Nozzle,
			FuelType:    fuel,
			Previous:    prev,
			Current:     entry.Current,
			NetLiters:   liters,
			RatePaise:   rate,
			AmountPaise: amount,
		})
		total += amount
	}

	return lines, total, nil
}

// allocatePayments resolves the declared non-cash methods against the gross
// total. The credit amount is always derived from liters and the selected
// fuel's rate; the direct methods follow the blank/garbage-to-zero input
// policy. Cash is the residual, kept even when negative so the identity
// total = other + cash holds and the shortfall stays visible.
func allocatePayments(decl domain.PaymentDeclaration, totalPaise int64, rates domain.RateTable, fallback domain.RateTable) (domain.PaymentBreakdown, error) {
	var breakdown domain.PaymentBreakdown

	if decl.Credit.Enabled {
		fuel, err := domain.ParseFuelType(decl.Credit.FuelType)
		if err != nil {
			return domain.PaymentBreakdown{}, fmt.Errorf("credit fuel type: %w", store.ErrValidation)
		}
		liters := domain.ParseLitersOrZero(decl.Credit.Liters)
		rate := rates.Resolve(fuel, fallback)
		breakdown.CreditPaise = domain.LitersCost(liters, rate)
		breakdown.CreditLiters = liters.String()
		breakdown.CreditFuelType = fuel
	}
	if decl.UPI.Enabled {
		breakdown.UPIPaise = domain.ParseAmountOrZero(decl.UPI.Amount)
	}
	if decl.HPPay.Enabled {
		breakdown.HPPayPaise = domain.ParseAmountOrZero(decl.HPPay.Amount)
	}
	if decl.DTPlus.Enabled {
		breakdown.DTPlusPaise = domain.ParseAmountOrZero(decl.DTPlus.Amount)
	}

	breakdown.TotalOtherPaise = breakdown.CreditPaise + breakdown.UPIPaise + breakdown.HPPayPaise + breakdown.DTPlusPaise
	breakdown.CashInHandPaise = totalPaise - breakdown.TotalOtherPaise
	return breakdown, nil
}

// BuildSalesSummary is the preview step: it derives sale lines and, when a
// payment declaration is present, the payment breakdown. Nothing is persisted
// and no expense request is touched.
func (s *Service) BuildSalesSummary(ctx context.Context, req domain.SalesSummaryRequest) (domain.SalesSummary, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.SalesSummary{}, fmt.Errorf("authentication required")
	}

	rateSet, err := s.CurrentRates(ctx)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	lines, total, err := s.computeSaleLines(ctx, req.Checkpoint, req.Readings, rateSet.Rates)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	summary := domain.SalesSummary{
		Checkpoint:      req.Checkpoint,
		Lines:           lines,
		TotalSalesPaise: total,
	}

	if req.Payments != nil {
		breakdown, err := allocatePayments(*req.Payments, total, rateSet.Rates, s.fallbackRates)
		if err != nil {
			return domain.SalesSummary{}, err
		}
		summary.Payments = &breakdown
	}

	return summary, nil
}

// FinalizeReconciliation recomputes the full pipeline server-side, folds in
// the caller's unused approved expenses and any testing fuel, and persists the
// resulting record. The record write and the expense marking land in one
// store transaction.
func (s *Service) FinalizeReconciliation(ctx context.Context, req domain.FinalizeRequest) (domain.SalesRecord, error) {
	started := time.Now()
	record, err := s.finalize(ctx, req)
	if err != nil {
		metrics.ObserveReconcile(req.Checkpoint, metrics.ResultError, time.Since(started))
		return domain.SalesRecord{}, err
	}
	metrics.ObserveReconcile(record.Checkpoint, metrics.ResultSuccess, time.Since(started))
	metrics.AddExpensesMarked(len(record.ExpenseIDs))
	return record, nil
}

func (s *Service) finalize(ctx context.Context, req domain.FinalizeRequest) (domain.SalesRecord, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SalesRecord{}, fmt.Errorf("authentication required")
	}

	rateSet, err := s.CurrentRates(ctx)
	if err != nil {
		return domain.SalesRecord{}, err
	}

	lines, total, err := s.computeSaleLines(ctx, req.Checkpoint, req.Readings, rateSet.Rates)
	if err != nil {
		return domain.SalesRecord{}, err
	}

	breakdown, err := allocatePayments(req.Payments, total, rateSet.Rates, s.fallbackRates)
	if err != nil {
		return domain.SalesRecord{}, err
	}

	expenses, err := s.repo.GetUnusedApprovedExpenses(ctx, actor.Username)
	if err != nil {
		return domain.SalesRecord{}, err
	}

	var expensesPaise int64
	expenseIDs := make([]string, 0, len(expenses))
	for _, expense := range expenses {
		expensesPaise += expense.AmountPaise
		expenseIDs = append(expenseIDs, expense.ID)
	}

	var testingCost int64
	var testing *domain.TestingDetails
	if req.Testing != nil {
		fuel, err := domain.ParseFuelType(req.Testing.FuelType)
		if err != nil {
			return domain.SalesRecord{}, fmt.Errorf("testing fuel type: %w", store.ErrValidation)
		}
		liters := domain.ParseLitersOrZero(req.Testing.Liters)
		if liters.IsPositive() {
			rate := rateSet.Rates.Resolve(fuel, s.fallbackRates)
			testingCost = domain.LitersCost(liters, rate)
			testing = &domain.TestingDetails{Liters: liters.String(), FuelType: fuel}
		}
	}

	netAmount := total - expensesPaise - testingCost
	finalNetCash := netAmount - breakdown.TotalOtherPaise

	record := domain.SalesRecord{
		OperatorID:            actor.Username,
		Checkpoint:            req.Checkpoint,
		Lines:                 lines,
		TotalSalesPaise:       total,
		Payments:              breakdown,
		ApprovedExpensesPaise: expensesPaise,
		TestingCostPaise:      testingCost,
		Testing:               testing,
		NetAmountPaise:        netAmount,
		FinalNetCashPaise:     finalNetCash,
		ExpenseIDs:            expenseIDs,
		CreatedAt:             time.Now().UTC(),
	}

	saved, err := s.repo.SaveSalesRecord(ctx, record, expenseIDs)
	if err != nil {
		return domain.SalesRecord{}, err
	}

	s.logAudit(ctx, "reconciliation_finalize", "sales_record", saved.ID,
		fmt.Sprintf("checkpoint=%s,total=%d,cash=%d,expenses=%d,net=%d",
			saved.Checkpoint, saved.TotalSalesPaise, saved.Payments.CashInHandPaise,
			saved.ApprovedExpensesPaise, saved.FinalNetCashPaise))
	return *saved, nil
}
