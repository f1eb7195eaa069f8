package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"pumpdesk/backend/internal/cache"
	"pumpdesk/backend/internal/checkpoint"
	"pumpdesk/backend/internal/domain"
	"pumpdesk/backend/internal/store"
	"pumpdesk/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	svc := New(repo, checkpoint.Default(), cache.NoopRateCache{}, 5*time.Second, nil)
	return svc, repo
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func setPrevious(t *testing.T, repo *memory.Store, readings map[string]int64) {
	t.Helper()
	if err := repo.SetPreviousReadings(context.Background(), readings, "test"); err != nil {
		t.Fatalf("set previous readings: %v", err)
	}
}

func TestBuildSalesSummarySingleNozzle(t *testing.T) {
	svc, repo := newTestService(t)
	setPrevious(t, repo, map[string]int64{"HSD1": 12345, "HSD2": 12345})

	summary, err := svc.BuildSalesSummary(cashierCtx(), domain.SalesSummaryRequest{
		Checkpoint: "Front",
		Readings:   []domain.ReadingEntry{{Nozzle: "HSD1", Current: 12395}},
	})
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}

	if len(summary.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(summary.Lines))
	}
	line := summary.Lines[0]
	if line.NetLiters != 50 {
		t.Fatalf("expected 50 liters, got %d", line.NetLiters)
	}
	if line.FuelType != domain.FuelHSD {
		t.Fatalf("expected HSD, got %s", line.FuelType)
	}
	// 50 L at the 8730-paise default HSD rate.
	if line.AmountPaise != 436500 {
		t.Fatalf("expected 436500 paise, got %d", line.AmountPaise)
	}
	if summary.TotalSalesPaise != 436500 {
		t.Fatalf("expected total 436500, got %d", summary.TotalSalesPaise)
	}
}

func TestBuildSalesSummaryZeroNozzlesIsValid(t *testing.T) {
	svc, _ := newTestService(t)

	summary, err := svc.BuildSalesSummary(cashierCtx(), domain.SalesSummaryRequest{
		Checkpoint: "Front",
	})
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if len(summary.Lines) != 0 || summary.TotalSalesPaise != 0 {
		t.Fatalf("expected empty summary, got %d lines total %d", len(summary.Lines), summary.TotalSalesPaise)
	}
}

func TestBuildSalesSummaryRejectsBadInput(t *testing.T) {
	svc, repo := newTestService(t)
	setPrevious(t, repo, map[string]int64{"HSD1": 1000})

	// Current below previous is a data-entry error.
	_, err := svc.BuildSalesSummary(cashierCtx(), domain.SalesSummaryRequest{
		Checkpoint: "Front",
		Readings:   []domain.ReadingEntry{{Nozzle: "HSD1", Current: 999}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for decreasing meter, got %v", err)
	}

	// A nozzle belonging to a different checkpoint.
	_, err = svc.BuildSalesSummary(cashierCtx(), domain.SalesSummaryRequest{
		Checkpoint: "Front",
		Readings:   []domain.ReadingEntry{{Nozzle: "MS", Current: 5000}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for foreign nozzle, got %v", err)
	}

	// An unknown checkpoint.
	_, err = svc.BuildSalesSummary(cashierCtx(), domain.SalesSummaryRequest{
		Checkpoint: "Nowhere",
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for unknown checkpoint, got %v", err)
	}

	// Duplicate nozzle entries.
	_, err = svc.BuildSalesSummary(cashierCtx(), domain.SalesSummaryRequest{
		Checkpoint: "Front",
		Readings: []domain.ReadingEntry{
			{Nozzle: "HSD1", Current: 1200},
			{Nozzle: "HSD1", Current: 1300},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for duplicate nozzle, got %v", err)
	}
}

func TestAllocatePaymentsMixedMethods(t *testing.T) {
	fallback := domain.RateTable{domain.FuelMS: 9550}

	breakdown, err := allocatePayments(domain.PaymentDeclaration{
		Credit: domain.CreditState{Enabled: true, Liters: "10", FuelType: "MS"},
		UPI:    domain.PaymentMethodState{Enabled: true, Amount: "2000"},
	}, 1000000, nil, fallback)
	if err != nil {
		t.Fatalf("allocation failed: %v", err)
	}

	if breakdown.CreditPaise != 95500 {
		t.Fatalf("expected credit 95500, got %d", breakdown.CreditPaise)
	}
	if breakdown.UPIPaise != 200000 {
		t.Fatalf("expected upi 200000, got %d", breakdown.UPIPaise)
	}
	if breakdown.TotalOtherPaise != 295500 {
		t.Fatalf("expected other 295500, got %d", breakdown.TotalOtherPaise)
	}
	if breakdown.CashInHandPaise != 704500 {
		t.Fatalf("expected cash 704500, got %d", breakdown.CashInHandPaise)
	}
}

func TestAllocatePaymentsIdentityHolds(t *testing.T) {
	fallback := domain.RateTable{domain.FuelMS: 9550, domain.FuelHSD: 8730}

	declarations := []domain.PaymentDeclaration{
		{}, // all disabled
		{UPI: domain.PaymentMethodState{Enabled: true, Amount: ""}},        // enabled but blank
		{UPI: domain.PaymentMethodState{Enabled: true, Amount: "abc"}},     // garbage
		{UPI: domain.PaymentMethodState{Enabled: true, Amount: "-40"}},     // negative
		{DTPlus: domain.PaymentMethodState{Enabled: true, Amount: "50000"}}, // over-declared
		{
			Credit: domain.CreditState{Enabled: true, Liters: "3.5", FuelType: "HSD"},
			UPI:    domain.PaymentMethodState{Enabled: true, Amount: "120.25"},
			HPPay:  domain.PaymentMethodState{Enabled: true, Amount: "10"},
			DTPlus: domain.PaymentMethodState{Enabled: true, Amount: "0.05"},
		},
	}

	const total = int64(250000)
	for i, decl := range declarations {
		breakdown, err := allocatePayments(decl, total, nil, fallback)
		if err != nil {
			t.Fatalf("case %d: allocation failed: %v", i, err)
		}
		if breakdown.TotalOtherPaise+breakdown.CashInHandPaise != total {
			t.Errorf("case %d: identity broken: other=%d cash=%d total=%d",
				i, breakdown.TotalOtherPaise, breakdown.CashInHandPaise, total)
		}
	}

	// Over-declared non-cash leaves a negative, visible cash residual.
	breakdown, err := allocatePayments(domain.PaymentDeclaration{
		UPI: domain.PaymentMethodState{Enabled: true, Amount: "5000"},
	}, 100000, nil, fallback)
	if err != nil {
		t.Fatalf("allocation failed: %v", err)
	}
	if breakdown.CashInHandPaise != -400000 {
		t.Fatalf("expected cash -400000, got %d", breakdown.CashInHandPaise)
	}
}

func TestAllocatePaymentsRejectsBadCreditFuel(t *testing.T) {
	_, err := allocatePayments(domain.PaymentDeclaration{
		Credit: domain.CreditState{Enabled: true, Liters: "5", FuelType: "JETFUEL"},
	}, 1000, nil, domain.RateTable{})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFinalizeReconciliationFullRun(t *testing.T) {
	svc, repo := newTestService(t)
	setPrevious(t, repo, map[string]int64{"MS": 1000, "HSD": 2000})

	// One approved 500-rupee expense for the operator.
	created, err := repo.CreateRequest(context.Background(), domain.Request{
		RequesterID: "cashier",
		Type:        domain.RequestTypeExpense,
		Description: "pump motor repair",
		AmountPaise: 50000,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if _, err := repo.UpdateRequestStatus(context.Background(), created.ID, domain.RequestStatusApproved, "manager"); err != nil {
		t.Fatalf("approve request: %v", err)
	}

	record, err := svc.FinalizeReconciliation(cashierCtx(), domain.FinalizeRequest{
		Checkpoint: "Central",
		Readings: []domain.ReadingEntry{
			{Nozzle: "MS", Current: 1100}, // 100 L x 9550
		},
		Payments: domain.PaymentDeclaration{
			UPI: domain.PaymentMethodState{Enabled: true, Amount: "2000"},
		},
		Testing: &domain.TestingEntry{Liters: "2", FuelType: "MS"},
	})
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if record.TotalSalesPaise != 955000 {
		t.Fatalf("expected total 955000, got %d", record.TotalSalesPaise)
	}
	if record.Payments.TotalOtherPaise != 200000 {
		t.Fatalf("expected other 200000, got %d", record.Payments.TotalOtherPaise)
	}
	if record.Payments.CashInHandPaise != 755000 {
		t.Fatalf("expected cash 755000, got %d", record.Payments.CashInHandPaise)
	}
	if record.ApprovedExpensesPaise != 50000 {
		t.Fatalf("expected expenses 50000, got %d", record.ApprovedExpensesPaise)
	}
	if record.TestingCostPaise != 19100 {
		t.Fatalf("expected testing cost 19100, got %d", record.TestingCostPaise)
	}
	// netAmount = 955000 - 50000 - 19100.
	if record.NetAmountPaise != 885900 {
		t.Fatalf("expected net 885900, got %d", record.NetAmountPaise)
	}
	// finalNetCash = netAmount - totalOther.
	if record.FinalNetCashPaise != 685900 {
		t.Fatalf("expected final net cash 685900, got %d", record.FinalNetCashPaise)
	}
	if len(record.ExpenseIDs) != 1 || record.ExpenseIDs[0] != created.ID {
		t.Fatalf("expected expense %s consumed, got %v", created.ID, record.ExpenseIDs)
	}

	// The consumed expense must never contribute to a later run.
	unused, err := repo.GetUnusedApprovedExpenses(context.Background(), "cashier")
	if err != nil {
		t.Fatalf("list unused expenses: %v", err)
	}
	if len(unused) != 0 {
		t.Fatalf("expected no unused expenses, got %d", len(unused))
	}

	second, err := svc.FinalizeReconciliation(cashierCtx(), domain.FinalizeRequest{
		Checkpoint: "Central",
		Readings:   []domain.ReadingEntry{{Nozzle: "HSD", Current: 2010}},
	})
	if err != nil {
		t.Fatalf("second finalize failed: %v", err)
	}
	if second.ApprovedExpensesPaise != 0 || len(second.ExpenseIDs) != 0 {
		t.Fatalf("expense double-counted: %d (%v)", second.ApprovedExpensesPaise, second.ExpenseIDs)
	}
}

func TestFinalizeSpecNetting(t *testing.T) {
	svc, repo := newTestService(t)
	// 100 L of MSP-Auto at the 9820-paise default = 982000 gross.
	setPrevious(t, repo, map[string]int64{"MSP-Auto": 500})

	created, err := repo.CreateRequest(context.Background(), domain.Request{
		RequesterID: "cashier",
		Type:        domain.RequestTypeExpense,
		Description: "stationery",
		AmountPaise: 50000,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if _, err := repo.UpdateRequestStatus(context.Background(), created.ID, domain.RequestStatusApproved, "admin"); err != nil {
		t.Fatalf("approve request: %v", err)
	}

	record, err := svc.FinalizeReconciliation(cashierCtx(), domain.FinalizeRequest{
		Checkpoint: "Auto Point",
		Readings:   []domain.ReadingEntry{{Nozzle: "MSP-Auto", Current: 600}},
		Testing:    &domain.TestingEntry{Liters: "2", FuelType: "MS"},
	})
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	// netAmount = 982000 - 50000 - 19100; no non-cash so finalNetCash equals it.
	if record.NetAmountPaise != 912900 {
		t.Fatalf("expected net 912900, got %d", record.NetAmountPaise)
	}
	if record.FinalNetCashPaise != record.NetAmountPaise {
		t.Fatalf("expected finalNetCash %d, got %d", record.NetAmountPaise, record.FinalNetCashPaise)
	}
	if record.Testing == nil || record.Testing.FuelType != domain.FuelMS {
		t.Fatalf("expected testing details on record, got %+v", record.Testing)
	}
}

func TestFinalizeFailureLeavesNoMarks(t *testing.T) {
	svc, repo := newTestService(t)
	setPrevious(t, repo, map[string]int64{"HSD1": 1000})

	created, err := repo.CreateRequest(context.Background(), domain.Request{
		RequesterID: "cashier",
		Type:        domain.RequestTypeExpense,
		Description: "tea",
		AmountPaise: 1500,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if _, err := repo.UpdateRequestStatus(context.Background(), created.ID, domain.RequestStatusApproved, "admin"); err != nil {
		t.Fatalf("approve request: %v", err)
	}

	// Invalid testing fuel fails the run before any persistence.
	_, err = svc.FinalizeReconciliation(cashierCtx(), domain.FinalizeRequest{
		Checkpoint: "Front",
		Readings:   []domain.ReadingEntry{{Nozzle: "HSD1", Current: 1100}},
		Testing:    &domain.TestingEntry{Liters: "1", FuelType: "WATER"},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	unused, err := repo.GetUnusedApprovedExpenses(context.Background(), "cashier")
	if err != nil {
		t.Fatalf("list unused expenses: %v", err)
	}
	if len(unused) != 1 {
		t.Fatalf("failed finalize must not consume expenses, got %d unused", len(unused))
	}
	records, err := repo.ListSalesRecords(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("failed finalize must not persist a record, got %d", len(records))
	}
}

func TestFinalizeRequiresActor(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.FinalizeReconciliation(context.Background(), domain.FinalizeRequest{
		Checkpoint: "Front",
	})
	if err == nil {
		t.Fatal("expected error without actor")
	}
}
