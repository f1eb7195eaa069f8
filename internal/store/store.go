package store

import (
	"context"
	"errors"
	"time"

	"pumpdesk/backend/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("invalid input")
)

type Repository interface {
	GetCurrentRates(ctx context.Context) (*domain.RateSet, error)
	SaveRates(ctx context.Context, set domain.RateSet) (*domain.RateSet, error)

	GetPreviousReadings(ctx context.Context, nozzles []string) (map[string]int64, error)
	SetPreviousReadings(ctx context.Context, readings map[string]int64, updatedBy string) error

	CreateRequest(ctx context.Context, req domain.Request) (*domain.Request, error)
	ListRequestsByRequester(ctx context.Context, requesterID string) ([]domain.Request, error)
	ListRequests(ctx context.Context) ([]domain.Request, error)
	UpdateRequestStatus(ctx context.Context, requestID string, status string, approvedBy string) (*domain.Request, error)
	GetUnusedApprovedExpenses(ctx context.Context, requesterID string) ([]domain.Request, error)

	// SaveSalesRecord persists the record and marks the given expense requests
	// used in one transaction. Either both writes land or neither does, so an
	// expense can never be double-counted by a later run.
	SaveSalesRecord(ctx context.Context, record domain.SalesRecord, expenseIDs []string) (*domain.SalesRecord, error)
	GetSalesRecord(ctx context.Context, recordID string) (*domain.SalesRecord, error)
	ListSalesRecordsByOperator(ctx context.Context, operatorID string, from time.Time, to time.Time) ([]domain.SalesRecord, error)
	ListSalesRecords(ctx context.Context, from time.Time, to time.Time) ([]domain.SalesRecord, error)

	GetFuelStock(ctx context.Context) ([]domain.FuelStock, error)
	UpdateFuelStock(ctx context.Context, entries []domain.FuelStock) error
	GetFuelDensity(ctx context.Context) ([]domain.FuelDensity, error)
	UpdateFuelDensity(ctx context.Context, entries []domain.FuelDensity) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
