package domain

import "time"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

type RateUpdateRequest struct {
	Rates map[string]string `json:"rates"`
}

// ReadingEntry is one operator-entered meter value. The previous reading is
// fetched server-side and is read-only to the operator.
type ReadingEntry struct {
	Nozzle  string `json:"nozzle"`
	Current int64  `json:"current"`
}

type PreviousReadingsUpdateRequest struct {
	Readings map[string]int64 `json:"readings"`
}

// NozzleReading pairs a supervisor-set previous meter value with an
// operator-entered current value. A meter is monotonically increasing, so
// current < previous is a data-entry error rejected before any computation.
type NozzleReading struct {
	Nozzle   string `json:"nozzle"`
	Previous int64  `json:"previous"`
	Current  int64  `json:"current"`
}

// SaleLine is derived on demand from a NozzleReading and the rate table. It is
// never stored independently and never mutated.
type SaleLine struct {
	Nozzle      string   `json:"nozzle"`
	FuelType    FuelType `json:"fuel_type"`
	Previous    int64    `json:"previous"`
	Current     int64    `json:"current"`
	NetLiters   int64    `json:"net_liters"`
	RatePaise   int64    `json:"rate_paise"`
	AmountPaise int64    `json:"amount_paise"`
}

type SalesSummaryRequest struct {
	Checkpoint string              `json:"checkpoint"`
	Readings   []ReadingEntry      `json:"readings"`
	Payments   *PaymentDeclaration `json:"payments,omitempty"`
}

type SalesSummary struct {
	Checkpoint      string            `json:"checkpoint"`
	Lines           []SaleLine        `json:"lines"`
	TotalSalesPaise int64             `json:"total_sales_paise"`
	Payments        *PaymentBreakdown `json:"payments,omitempty"`
}

// PaymentMethodState is one directly entered non-cash method. Amount keeps the
// raw operator input and is parsed under the ParseAmountOrZero policy.
type PaymentMethodState struct {
	Enabled bool   `json:"enabled"`
	Amount  string `json:"amount,omitempty"`
}

// CreditState is the credit-fuel method. Its amount is always derived from
// liters and the selected fuel type's rate, never entered directly.
type CreditState struct {
	Enabled  bool   `json:"enabled"`
	Liters   string `json:"liters,omitempty"`
	FuelType string `json:"fuel_type,omitempty"`
}

type PaymentDeclaration struct {
	Credit CreditState        `json:"credit"`
	UPI    PaymentMethodState `json:"upi"`
	HPPay  PaymentMethodState `json:"hp_pay"`
	DTPlus PaymentMethodState `json:"dt_plus"`
}

// PaymentBreakdown is the resolved allocation. Cash is always the residual,
// so TotalOtherPaise + CashInHandPaise equals the gross total identically,
// even when the residual is negative.
type PaymentBreakdown struct {
	CreditPaise     int64    `json:"credit_paise"`
	CreditLiters    string   `json:"credit_liters,omitempty"`
	CreditFuelType  FuelType `json:"credit_fuel_type,omitempty"`
	UPIPaise        int64    `json:"upi_paise"`
	HPPayPaise      int64    `json:"hp_pay_paise"`
	DTPlusPaise     int64    `json:"dt_plus_paise"`
	TotalOtherPaise int64    `json:"total_other_paise"`
	CashInHandPaise int64    `json:"cash_in_hand_paise"`
}

type TestingEntry struct {
	Liters   string `json:"liters"`
	FuelType string `json:"fuel_type"`
}

type TestingDetails struct {
	Liters   string   `json:"liters"`
	FuelType FuelType `json:"fuel_type"`
}

type FinalizeRequest struct {
	Checkpoint string             `json:"checkpoint"`
	Readings   []ReadingEntry     `json:"readings"`
	Payments   PaymentDeclaration `json:"payments"`
	Testing    *TestingEntry      `json:"testing,omitempty"`
}

// SalesRecord is the persisted output of one reconciliation run. It captures
// every intermediate figure for audit and is immutable after creation.
type SalesRecord struct {
	ID                    string           `json:"id"`
	OperatorID            string           `json:"operator_id"`
	Checkpoint            string           `json:"checkpoint"`
	Lines                 []SaleLine       `json:"lines"`
	TotalSalesPaise       int64            `json:"total_sales_paise"`
	Payments              PaymentBreakdown `json:"payments"`
	ApprovedExpensesPaise int64            `json:"approved_expenses_paise"`
	TestingCostPaise      int64            `json:"testing_cost_paise"`
	Testing               *TestingDetails  `json:"testing,omitempty"`
	NetAmountPaise        int64            `json:"net_amount_paise"`
	FinalNetCashPaise     int64            `json:"final_net_cash_paise"`
	ExpenseIDs            []string         `json:"expense_ids,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
}

const (
	RequestTypeExpense = "expense"
	RequestTypeHoliday = "holiday"
)

const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

type RequestCreateRequest struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Amount      string `json:"amount,omitempty"`
	Date        string `json:"date,omitempty"`
}

type RequestStatusUpdateRequest struct {
	Status string `json:"status"`
}

// Request is an expense or holiday request. Requests are never deleted; an
// expense request that has been folded into a reconciliation run carries
// UsedInCalculation=true and must never contribute to a later run.
type Request struct {
	ID                string     `json:"id"`
	RequesterID       string     `json:"requester_id"`
	Type              string     `json:"type"`
	Description       string     `json:"description"`
	AmountPaise       int64      `json:"amount_paise,omitempty"`
	Date              string     `json:"date,omitempty"`
	Status            string     `json:"status"`
	ApprovedBy        string     `json:"approved_by,omitempty"`
	UsedInCalculation bool       `json:"used_in_calculation"`
	UsedDate          *time.Time `json:"used_date,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type FuelStock struct {
	FuelType       FuelType  `json:"fuel_type"`
	QuantityLiters float64   `json:"quantity_liters"`
	UpdatedBy      string    `json:"updated_by,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type FuelStockUpdateRequest struct {
	Quantities map[string]float64 `json:"quantities"`
}

type FuelDensity struct {
	FuelType          FuelType  `json:"fuel_type"`
	HydrometerReading float64   `json:"hydrometer_reading"`
	Temperature       float64   `json:"temperature"`
	UpdatedBy         string    `json:"updated_by,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type FuelDensityReading struct {
	HydrometerReading float64 `json:"hydrometer_reading"`
	Temperature       float64 `json:"temperature"`
}

type FuelDensityUpdateRequest struct {
	Readings map[string]FuelDensityReading `json:"readings"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type User struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
