package models

// QuotaRecord is one principal's usage for one UTC day. Date is YYYY-MM-DD.
type QuotaRecord struct {
	PrincipalID string `json:"principal_id"`
	Date        string `json:"date"`
	Count       int    `json:"count"`
}
