package domain

type ChargeStatus string

const (
	ChargeStatusActive    ChargeStatus = "ACTIVE"
	ChargeStatusCompleted ChargeStatus = "COMPLETED"
	ChargeStatusExpired   ChargeStatus = "EXPIRED"
	ChargeStatusNotFound  ChargeStatus = "NOT_FOUND"
)

// Customer is the payer data sent to the charge provider.
type Customer struct {
	Name  string `json:"name"`
	CPF   string `json:"cpf"`
	Phone string `json:"phone"`
}

// ChargeInfo is a charge as reported by the provider.
type ChargeInfo struct {
	CorrelationID string
	Value         int64
	Status        ChargeStatus
	ExpiresDate   string
	ExpiresIn     int
	CreatedAt     string
	BRCode        string
	QRCodeImage   string
	Customer      *Customer
}

func (c *ChargeInfo) IsActive() bool    { return c.Status == ChargeStatusActive }
func (c *ChargeInfo) IsCompleted() bool { return c.Status == ChargeStatusCompleted }

// ChargeView is the only charge representation handed to API clients: no
// correlation id, no customer data, no internal payment id.
type ChargeView struct {
	Value       int64        `json:"value"`
	Status      ChargeStatus `json:"status"`
	ExpiresDate string       `json:"expiresDate"`
	ExpiresIn   int          `json:"expiresIn"`
	CreatedAt   string       `json:"createdAt"`
	BRCode      string       `json:"brCode"`
	QRCodeImage string       `json:"qrCodeImage"`
}

func (c *ChargeInfo) View() *ChargeView {
	return &ChargeView{
		Value:       c.Value,
		Status:      c.Status,
		ExpiresDate: c.ExpiresDate,
		ExpiresIn:   c.ExpiresIn,
		CreatedAt:   c.CreatedAt,
		BRCode:      c.BRCode,
		QRCodeImage: c.QRCodeImage,
	}
}
