package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"pumpdesk/backend/internal/domain"
	"pumpdesk/backend/internal/metrics"
	"pumpdesk/backend/internal/service"
)

func (a *API) exportSalesRecord(w http.ResponseWriter, r *http.Request, recordID string) {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok || (actor.Role != roleManager && actor.Role != roleAdmin) {
		writeError(w, http.StatusForbidden, errors.New("manager or admin role required"))
		return
	}

	started := time.Now()

	record, err := a.service.SalesRecord(r.Context(), recordID)
	if err != nil {
		metrics.ObserveExport(metrics.ResultError, time.Since(started))
		writeError(w, statusFor(err), err)
		return
	}

	payload, err := buildSalesRecordXLSX(record)
	if err != nil {
		metrics.ObserveExport(metrics.ResultError, time.Since(started))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	metrics.ObserveExport(metrics.ResultSuccess, time.Since(started))

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "sales-record-"+record.ID+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// buildSalesRecordXLSX renders one reconciliation record as a two-sheet
// workbook: a summary sheet and a per-nozzle lines sheet. Paise figures are
// written as rupees with two decimals.
func buildSalesRecordXLSX(record domain.SalesRecord) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	linesSheet := "lines"
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(linesSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Sales Record")
	_ = f.SetCellValue(summarySheet, "A3", "Record ID")
	_ = f.SetCellValue(summarySheet, "B3", record.ID)
	_ = f.SetCellValue(summarySheet, "A4", "Operator")
	_ = f.SetCellValue(summarySheet, "B4", record.OperatorID)
	_ = f.SetCellValue(summarySheet, "A5", "Checkpoint")
	_ = f.SetCellValue(summarySheet, "B5", record.Checkpoint)
	_ = f.SetCellValue(summarySheet, "A6", "Created At")
	_ = f.SetCellValue(summarySheet, "B6", record.CreatedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A8", "Total Sales")
	_ = f.SetCellValue(summarySheet, "B8", rupees(record.TotalSalesPaise))
	_ = f.SetCellValue(summarySheet, "A9", "Credit")
	_ = f.SetCellValue(summarySheet, "B9", rupees(record.Payments.CreditPaise))
	_ = f.SetCellValue(summarySheet, "A10", "UPI")
	_ = f.SetCellValue(summarySheet, "B10", rupees(record.Payments.UPIPaise))
	_ = f.SetCellValue(summarySheet, "A11", "HP Pay")
	_ = f.SetCellValue(summarySheet, "B11", rupees(record.Payments.HPPayPaise))
	_ = f.SetCellValue(summarySheet, "A12", "DT Plus")
	_ = f.SetCellValue(summarySheet, "B12", rupees(record.Payments.DTPlusPaise))
	_ = f.SetCellValue(summarySheet, "A13", "Total Non-Cash")
	_ = f.SetCellValue(summarySheet, "B13", rupees(record.Payments.TotalOtherPaise))
	_ = f.SetCellValue(summarySheet, "A14", "Cash In Hand")
	_ = f.SetCellValue(summarySheet, "B14", rupees(record.Payments.CashInHandPaise))
	_ = f.SetCellValue(summarySheet, "A15", "Approved Expenses")
	_ = f.SetCellValue(summarySheet, "B15", rupees(record.ApprovedExpensesPaise))
	_ = f.SetCellValue(summarySheet, "A16", "Testing Cost")
	_ = f.SetCellValue(summarySheet, "B16", rupees(record.TestingCostPaise))
	_ = f.SetCellValue(summarySheet, "A17", "Net Amount")
	_ = f.SetCellValue(summarySheet, "B17", rupees(record.NetAmountPaise))
	_ = f.SetCellValue(summarySheet, "A18", "Final Net Cash")
	_ = f.SetCellValue(summarySheet, "B18", rupees(record.FinalNetCashPaise))
	if record.Testing != nil {
		_ = f.SetCellValue(summarySheet, "A20", "Testing Fuel")
		_ = f.SetCellValue(summarySheet, "B20", string(record.Testing.FuelType))
		_ = f.SetCellValue(summarySheet, "A21", "Testing Liters")
		_ = f.SetCellValue(summarySheet, "B21", record.Testing.Liters)
	}

	_ = f.SetCellValue(linesSheet, "A1", "Nozzle")
	_ = f.SetCellValue(linesSheet, "B1", "Fuel")
	_ = f.SetCellValue(linesSheet, "C1", "Previous")
	_ = f.SetCellValue(linesSheet, "D1", "Current")
	_ = f.SetCellValue(linesSheet, "E1", "Net Liters")
	_ = f.SetCellValue(linesSheet, "F1", "Rate")
	_ = f.SetCellValue(linesSheet, "G1", "Amount")
	for i, line := range record.Lines {
		row := i + 2
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("A%d", row), line.Nozzle)
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("B%d", row), string(line.FuelType))
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("C%d", row), line.Previous)
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("D%d", row), line.Current)
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("E%d", row), line.NetLiters)
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("F%d", row), rupees(line.RatePaise))
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("G%d", row), rupees(line.AmountPaise))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rupees(paise int64) float64 {
	return float64(paise) / 100
}
