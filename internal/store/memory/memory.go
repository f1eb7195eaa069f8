package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pumpdesk/backend/internal/domain"
	"pumpdesk/backend/internal/store"
	"pumpdesk/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	rateSets         []domain.RateSet
	previousReadings map[string]int64
	requestsByID     map[string]domain.Request
	recordsByID      map[string]domain.SalesRecord
	fuelStock        map[domain.FuelType]domain.FuelStock
	fuelDensity      map[domain.FuelType]domain.FuelDensity
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_CASHIER_PASSWORD. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"manager", managerPwd, domain.RoleManager},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()

	readings := map[string]int64{
		"HSD1": 125430, "HSD2": 98231,
		"MS": 201544, "HSD": 157902,
		"MS-Auto": 88410, "MSP-Auto": 64205,
		"Nozzle 1": 40112, "Nozzle 2": 39877, "Nozzle 3": 41230, "Nozzle 4": 38564,
	}

	stock := map[domain.FuelType]domain.FuelStock{}
	for fuel, qty := range map[domain.FuelType]float64{
		domain.FuelMS: 8200, domain.FuelMSP: 4100, domain.FuelHSD: 11500, domain.FuelCNG: 2600,
	} {
		stock[fuel] = domain.FuelStock{FuelType: fuel, QuantityLiters: qty, UpdatedAt: now}
	}

	density := map[domain.FuelType]domain.FuelDensity{}
	for fuel, d := range map[domain.FuelType]domain.FuelDensityReading{
		domain.FuelMS:  {HydrometerReading: 745.2, Temperature: 28.5},
		domain.FuelMSP: {HydrometerReading: 752.8, Temperature: 28.5},
		domain.FuelHSD: {HydrometerReading: 832.4, Temperature: 29.0},
	} {
		density[fuel] = domain.FuelDensity{
			FuelType:          fuel,
			HydrometerReading: d.HydrometerReading,
			Temperature:       d.Temperature,
			UpdatedAt:         now,
		}
	}

	return &Store{
		rateSets:         make([]domain.RateSet, 0, 8),
		previousReadings: readings,
		requestsByID:     make(map[string]domain.Request),
		recordsByID:      make(map[string]domain.SalesRecord),
		fuelStock:        stock,
		fuelDensity:      density,
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  seedUsers(),
	}
}

func (s *Store) GetCurrentRates(_ context.Context) (*domain.RateSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rateSets) == 0 {
		return nil, store.ErrNotFound
	}
	latest := s.rateSets[len(s.rateSets)-1]
	copySet := latest
	copySet.Rates = make(domain.RateTable, len(latest.Rates))
	for fuel, rate := range latest.Rates {
		copySet.Rates[fuel] = rate
	}
	return &copySet, nil
}

func (s *Store) SaveRates(_ context.Context, set domain.RateSet) (*domain.RateSet, error) {
	if len(set.Rates) == 0 {
		return nil, store.ErrValidation
	}
	for _, rate := range set.Rates {
		if rate <= 0 {
			return nil, store.ErrValidation
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if set.ID == "" {
		set.ID = xid.New("rate")
	}
	if set.UpdatedAt.IsZero() {
		set.UpdatedAt = time.Now().UTC()
	}
	s.rateSets = append(s.rateSets, set)
	saved := set
	return &saved, nil
}

func (s *Store) GetPreviousReadings(_ context.Context, nozzles []string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int64, len(nozzles))
	for _, nozzle := range nozzles {
		if reading, ok := s.previousReadings[nozzle]; ok {
			result[nozzle] = reading
		}
	}
	return result, nil
}

func (s *Store) SetPreviousReadings(_ context.Context, readings map[string]int64, _ string) error {
	for _, reading := range readings {
		if reading < 0 {
			return store.ErrValidation
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for nozzle, reading := range readings {
		s.previousReadings[nozzle] = reading
	}
	return nil
}

func (s *Store) CreateRequest(_ context.Context, req domain.Request) (*domain.Request, error) {
	if req.RequesterID == "" || req.Description == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = xid.New("req")
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	req.Status = domain.RequestStatusPending
	req.UsedInCalculation = false
	req.UsedDate = nil

	s.requestsByID[req.ID] = req
	created := req
	return &created, nil
}

func (s *Store) ListRequestsByRequester(_ context.Context, requesterID string) ([]domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Request, 0, 16)
	for _, req := range s.requestsByID {
		if req.RequesterID == requesterID {
			result = append(result, req)
		}
	}
	sortRequests(result)
	return result, nil
}

func (s *Store) ListRequests(_ context.Context) ([]domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Request, 0, len(s.requestsByID))
	for _, req := range s.requestsByID {
		result = append(result, req)
	}
	sortRequests(result)
	return result, nil
}

func (s *Store) UpdateRequestStatus(_ context.Context, requestID string, status string, approvedBy string) (*domain.Request, error) {
	if status != domain.RequestStatusApproved && status != domain.RequestStatusRejected {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.requestsByID[requestID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if req.Status != domain.RequestStatusPending {
		return nil, store.ErrValidation
	}

	req.Status = status
	req.ApprovedBy = approvedBy
	req.UpdatedAt = time.Now().UTC()
	s.requestsByID[requestID] = req
	updated := req
	return &updated, nil
}

func (s *Store) GetUnusedApprovedExpenses(_ context.Context, requesterID string) ([]domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Request, 0, 8)
	for _, req := range s.requestsByID {
		if req.RequesterID != requesterID || req.Type != domain.RequestTypeExpense {
			continue
		}
		if req.Status != domain.RequestStatusApproved || req.UsedInCalculation {
			continue
		}
		result = append(result, req)
	}
	sortRequests(result)
	return result, nil
}

func (s *Store) SaveSalesRecord(_ context.Context, record domain.SalesRecord, expenseIDs []string) (*domain.SalesRecord, error) {
	if record.OperatorID == "" || record.Checkpoint == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every expense before touching any state so the two writes
	// stay all-or-nothing.
	for _, id := range expenseIDs {
		req, exists := s.requestsByID[id]
		if !exists {
			return nil, store.ErrNotFound
		}
		if req.Status != domain.RequestStatusApproved || req.UsedInCalculation {
			return nil, store.ErrValidation
		}
	}

	if record.ID == "" {
		record.ID = xid.New("rec")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	now := time.Now().UTC()
	for _, id := range expenseIDs {
		req := s.requestsByID[id]
		req.UsedInCalculation = true
		usedAt := now
		req.UsedDate = &usedAt
		req.UpdatedAt = now
		s.requestsByID[id] = req
	}

	s.recordsByID[record.ID] = record
	saved := record
	return &saved, nil
}

func (s *Store) GetSalesRecord(_ context.Context, recordID string) (*domain.SalesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.recordsByID[recordID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyRecord := record
	return &copyRecord, nil
}

func (s *Store) ListSalesRecordsByOperator(_ context.Context, operatorID string, from time.Time, to time.Time) ([]domain.SalesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SalesRecord, 0, 16)
	for _, record := range s.recordsByID {
		if record.OperatorID != operatorID || !inRange(record.CreatedAt, from, to) {
			continue
		}
		result = append(result, record)
	}
	sortRecords(result)
	return result, nil
}

func (s *Store) ListSalesRecords(_ context.Context, from time.Time, to time.Time) ([]domain.SalesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SalesRecord, 0, len(s.recordsByID))
	for _, record := range s.recordsByID {
		if !inRange(record.CreatedAt, from, to) {
			continue
		}
		result = append(result, record)
	}
	sortRecords(result)
	return result, nil
}

func (s *Store) GetFuelStock(_ context.Context) ([]domain.FuelStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.FuelStock, 0, len(s.fuelStock))
	for _, entry := range s.fuelStock {
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.FuelStock) int {
		return strings.Compare(string(a.FuelType), string(b.FuelType))
	})
	return result, nil
}

func (s *Store) UpdateFuelStock(_ context.Context, entries []domain.FuelStock) error {
	for _, entry := range entries {
		if entry.QuantityLiters < 0 {
			return store.ErrValidation
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		if entry.UpdatedAt.IsZero() {
			entry.UpdatedAt = time.Now().UTC()
		}
		s.fuelStock[entry.FuelType] = entry
	}
	return nil
}

func (s *Store) GetFuelDensity(_ context.Context) ([]domain.FuelDensity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.FuelDensity, 0, len(s.fuelDensity))
	for _, entry := range s.fuelDensity {
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.FuelDensity) int {
		return strings.Compare(string(a.FuelType), string(b.FuelType))
	})
	return result, nil
}

func (s *Store) UpdateFuelDensity(_ context.Context, entries []domain.FuelDensity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		if entry.UpdatedAt.IsZero() {
			entry.UpdatedAt = time.Now().UTC()
		}
		s.fuelDensity[entry.FuelType] = entry
	}
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if !inRange(entry.CreatedAt, from, to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		result = append(result, user)
	}
	slices.SortFunc(result, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func sortRequests(requests []domain.Request) {
	slices.SortFunc(requests, func(a, b domain.Request) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func sortRecords(records []domain.SalesRecord) {
	slices.SortFunc(records, func(a, b domain.SalesRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func inRange(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && at.After(to) {
		return false
	}
	return true
}
