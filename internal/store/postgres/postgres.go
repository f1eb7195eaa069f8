package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pumpdesk/backend/internal/domain"
	"pumpdesk/backend/internal/store"
	"pumpdesk/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetCurrentRates(ctx context.Context) (*domain.RateSet, error) {
	var id string
	var updatedBy string
	var updatedAt time.Time
	var ratesJSON []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, rates, updated_by, updated_at
		FROM fuel_rates
		ORDER BY updated_at DESC, id DESC
		LIMIT 1
	`).Scan(&id, &ratesJSON, &updatedBy, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rates := domain.RateTable{}
	if err := json.Unmarshal(ratesJSON, &rates); err != nil {
		return nil, err
	}

	return &domain.RateSet{
		ID:        id,
		Rates:     rates,
		UpdatedBy: updatedBy,
		UpdatedAt: updatedAt.UTC(),
	}, nil
}

func (s *Store) SaveRates(ctx context.Context, set domain.RateSet) (*domain.RateSet, error) {
	if len(set.Rates) == 0 {
		return nil, store.ErrValidation
	}
	for _, rate := range set.Rates {
		if rate <= 0 {
			return nil, store.ErrValidation
		}
	}

	if set.ID == "" {
		set.ID = xid.New("rate")
	}
	if set.UpdatedAt.IsZero() {
		set.UpdatedAt = time.Now().UTC()
	}

	ratesJSON, err := json.Marshal(set.Rates)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fuel_rates (id, rates, updated_by, updated_at)
		VALUES ($1,$2,$3,$4)
	`, set.ID, ratesJSON, set.UpdatedBy, set.UpdatedAt)
	if err != nil {
		return nil, err
	}

	saved := set
	return &saved, nil
}

func (s *Store) GetPreviousReadings(ctx context.Context, nozzles []string) (map[string]int64, error) {
	if len(nozzles) == 0 {
		return map[string]int64{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT nozzle, reading
		FROM previous_readings
		WHERE nozzle = ANY($1)
	`, nozzles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make(map[string]int64, len(nozzles))
	for rows.Next() {
		var nozzle string
		var reading int64
		if err := rows.Scan(&nozzle, &reading); err != nil {
			return nil, err
		}
		readings[nozzle] = reading
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return readings, nil
}

func (s *Store) SetPreviousReadings(ctx context.Context, readings map[string]int64, updatedBy string) error {
	for _, reading := range readings {
		if reading < 0 {
			return store.ErrValidation
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for nozzle, reading := range readings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO previous_readings (nozzle, reading, updated_by, updated_at)
			VALUES ($1,$2,$3,now())
			ON CONFLICT (nozzle)
			DO UPDATE SET reading = EXCLUDED.reading, updated_by = EXCLUDED.updated_by, updated_at = now()
		`, nozzle, reading, updatedBy)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) CreateRequest(ctx context.Context, req domain.Request) (*domain.Request, error) {
	if req.RequesterID == "" || req.Description == "" {
		return nil, store.ErrValidation
	}

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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests
			(id, requester_id, type, description, amount_paise, request_date,
			 status, used_in_calculation, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,false,$8,$9)
	`, req.ID, req.RequesterID, req.Type, req.Description, req.AmountPaise,
		nullString(req.Date), req.Status, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return nil, err
	}

	created := req
	return &created, nil
}

const requestColumns = `
	id, requester_id, type, description, amount_paise, COALESCE(request_date,''),
	status, COALESCE(approved_by,''), used_in_calculation, used_date, created_at, updated_at
`

func scanRequest(scanner interface{ Scan(...any) error }) (domain.Request, error) {
	var req domain.Request
	var usedDate sql.NullTime
	err := scanner.Scan(
		&req.ID,
		&req.RequesterID,
		&req.Type,
		&req.Description,
		&req.AmountPaise,
		&req.Date,
		&req.Status,
		&req.ApprovedBy,
		&req.UsedInCalculation,
		&usedDate,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return domain.Request{}, err
	}
	if usedDate.Valid {
		at := usedDate.Time.UTC()
		req.UsedDate = &at
	}
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	return req, nil
}

func (s *Store) ListRequestsByRequester(ctx context.Context, requesterID string) ([]domain.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE requester_id = $1
		ORDER BY created_at DESC, id ASC
	`, requesterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (s *Store) ListRequests(ctx context.Context) ([]domain.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (s *Store) UpdateRequestStatus(ctx context.Context, requestID string, status string, approvedBy string) (*domain.Request, error) {
	if status != domain.RequestStatusApproved && status != domain.RequestStatusRejected {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var currentStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM requests WHERE id = $1 FOR UPDATE
	`, requestID).Scan(&currentStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if currentStatus != domain.RequestStatusPending {
		return nil, store.ErrValidation
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE requests
		SET status = $2, approved_by = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+requestColumns+`
	`, requestID, status, approvedBy)

	updated, err := scanRequest(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) GetUnusedApprovedExpenses(ctx context.Context, requesterID string) ([]domain.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE requester_id = $1
		  AND type = $2
		  AND status = $3
		  AND used_in_calculation = false
		ORDER BY created_at DESC, id ASC
	`, requesterID, domain.RequestTypeExpense, domain.RequestStatusApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (s *Store) SaveSalesRecord(ctx context.Context, record domain.SalesRecord, expenseIDs []string) (*domain.SalesRecord, error) {
	if record.OperatorID == "" || record.Checkpoint == "" {
		return nil, store.ErrValidation
	}

	if record.ID == "" {
		record.ID = xid.New("rec")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	linesJSON, err := json.Marshal(record.Lines)
	if err != nil {
		return nil, err
	}
	paymentsJSON, err := json.Marshal(record.Payments)
	if err != nil {
		return nil, err
	}
	var testingJSON []byte
	if record.Testing != nil {
		testingJSON, err = json.Marshal(record.Testing)
		if err != nil {
			return nil, err
		}
	}
	expenseIDsJSON, err := json.Marshal(record.ExpenseIDs)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock and re-check every expense inside the transaction so two
	// concurrent finalizes cannot both consume the same request.
	for _, id := range expenseIDs {
		var status string
		var used bool
		err := tx.QueryRowContext(ctx, `
			SELECT status, used_in_calculation
			FROM requests
			WHERE id = $1
			FOR UPDATE
		`, id).Scan(&status, &used)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if status != domain.RequestStatusApproved || used {
			return nil, store.ErrValidation
		}
	}

	for _, id := range expenseIDs {
		_, err := tx.ExecContext(ctx, `
			UPDATE requests
			SET used_in_calculation = true, used_date = now(), updated_at = now()
			WHERE id = $1
		`, id)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales_records
			(id, operator_id, checkpoint, lines, total_sales_paise, payments,
			 approved_expenses_paise, testing_cost_paise, testing,
			 net_amount_paise, final_net_cash_paise, expense_ids, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, record.ID, record.OperatorID, record.Checkpoint, linesJSON, record.TotalSalesPaise,
		paymentsJSON, record.ApprovedExpensesPaise, record.TestingCostPaise, testingJSON,
		record.NetAmountPaise, record.FinalNetCashPaise, expenseIDsJSON, record.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	saved := record
	return &saved, nil
}

const salesRecordColumns = `
	id, operator_id, checkpoint, lines, total_sales_paise, payments,
	approved_expenses_paise, testing_cost_paise, testing,
	net_amount_paise, final_net_cash_paise, expense_ids, created_at
`

func scanSalesRecord(scanner interface{ Scan(...any) error }) (domain.SalesRecord, error) {
	var record domain.SalesRecord
	var linesJSON, paymentsJSON, expenseIDsJSON []byte
	var testingJSON []byte

	err := scanner.Scan(
		&record.ID,
		&record.OperatorID,
		&record.Checkpoint,
		&linesJSON,
		&record.TotalSalesPaise,
		&paymentsJSON,
		&record.ApprovedExpensesPaise,
		&record.TestingCostPaise,
		&testingJSON,
		&record.NetAmountPaise,
		&record.FinalNetCashPaise,
		&expenseIDsJSON,
		&record.CreatedAt,
	)
	if err != nil {
		return domain.SalesRecord{}, err
	}

	if err := json.Unmarshal(linesJSON, &record.Lines); err != nil {
		return domain.SalesRecord{}, err
	}
	if err := json.Unmarshal(paymentsJSON, &record.Payments); err != nil {
		return domain.SalesRecord{}, err
	}
	if len(testingJSON) > 0 {
		var testing domain.TestingDetails
		if err := json.Unmarshal(testingJSON, &testing); err != nil {
			return domain.SalesRecord{}, err
		}
		record.Testing = &testing
	}
	if len(expenseIDsJSON) > 0 {
		if err := json.Unmarshal(expenseIDsJSON, &record.ExpenseIDs); err != nil {
			return domain.SalesRecord{}, err
		}
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}

func (s *Store) GetSalesRecord(ctx context.Context, recordID string) (*domain.SalesRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+salesRecordColumns+`
		FROM sales_records
		WHERE id = $1
	`, recordID)

	record, err := scanSalesRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *Store) ListSalesRecordsByOperator(ctx context.Context, operatorID string, from time.Time, to time.Time) ([]domain.SalesRecord, error) {
	from, to = normalizeRange(from, to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+salesRecordColumns+`
		FROM sales_records
		WHERE operator_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC, id ASC
	`, operatorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSalesRecords(rows)
}

func (s *Store) ListSalesRecords(ctx context.Context, from time.Time, to time.Time) ([]domain.SalesRecord, error) {
	from, to = normalizeRange(from, to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+salesRecordColumns+`
		FROM sales_records
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC, id ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSalesRecords(rows)
}

func (s *Store) GetFuelStock(ctx context.Context) ([]domain.FuelStock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fuel_type, quantity_liters, COALESCE(updated_by,''), updated_at
		FROM fuel_stock
		ORDER BY fuel_type ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.FuelStock, 0, 4)
	for rows.Next() {
		var entry domain.FuelStock
		if err := rows.Scan(&entry.FuelType, &entry.QuantityLiters, &entry.UpdatedBy, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entry.UpdatedAt = entry.UpdatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) UpdateFuelStock(ctx context.Context, entries []domain.FuelStock) error {
	for _, entry := range entries {
		if entry.QuantityLiters < 0 {
			return store.ErrValidation
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, entry := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO fuel_stock (fuel_type, quantity_liters, updated_by, updated_at)
			VALUES ($1,$2,$3,now())
			ON CONFLICT (fuel_type)
			DO UPDATE SET quantity_liters = EXCLUDED.quantity_liters,
				updated_by = EXCLUDED.updated_by, updated_at = now()
		`, entry.FuelType, entry.QuantityLiters, entry.UpdatedBy)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetFuelDensity(ctx context.Context) ([]domain.FuelDensity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fuel_type, hydrometer_reading, temperature, COALESCE(updated_by,''), updated_at
		FROM fuel_density
		ORDER BY fuel_type ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.FuelDensity, 0, 4)
	for rows.Next() {
		var entry domain.FuelDensity
		if err := rows.Scan(&entry.FuelType, &entry.HydrometerReading, &entry.Temperature, &entry.UpdatedBy, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entry.UpdatedAt = entry.UpdatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) UpdateFuelDensity(ctx context.Context, entries []domain.FuelDensity) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, entry := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO fuel_density (fuel_type, hydrometer_reading, temperature, updated_by, updated_at)
			VALUES ($1,$2,$3,$4,now())
			ON CONFLICT (fuel_type)
			DO UPDATE SET hydrometer_reading = EXCLUDED.hydrometer_reading,
				temperature = EXCLUDED.temperature,
				updated_by = EXCLUDED.updated_by, updated_at = now()
		`, entry.FuelType, entry.HydrometerReading, entry.Temperature, entry.UpdatedBy)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs
			(id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	from, to = normalizeRange(from, to)
	if limit < 1 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC, id ASC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func collectRequests(rows *sql.Rows) ([]domain.Request, error) {
	requests := make([]domain.Request, 0, 16)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

func collectSalesRecords(rows *sql.Rows) ([]domain.SalesRecord, error) {
	records := make([]domain.SalesRecord, 0, 16)
	for rows.Next() {
		record, err := scanSalesRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func normalizeRange(from time.Time, to time.Time) (time.Time, time.Time) {
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}
	return from, to
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
