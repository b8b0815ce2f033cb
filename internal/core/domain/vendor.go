package domain

import "github.com/shopspring/decimal"

// Vendor carries optional payment-disclosure fields. A vendor with none of
// them set can still sell; the buyer settles out of band.
type Vendor struct {
	ID           string
	Name         string
	BankAccount  string
	QRHandle     string
	WalletHandle string
}

func (v Vendor) PaymentDisclosed() bool {
	return v.BankAccount != "" || v.QRHandle != "" || v.WalletHandle != ""
}

// Product is the catalog collaborator's view: enough to price a line and
// find the owning vendor.
type Product struct {
	ID       string
	VendorID string
	Name     string
	Price    decimal.Decimal
}
