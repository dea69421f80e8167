package common

import "github.com/shopspring/decimal"

// Asset is the static description of the tokenized property. None of these
// fields drive behavior; FeeRate in particular is display-only.
type Asset struct {
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	ReferencePrice decimal.Decimal `json:"referencePrice"`
	Supply         uint64          `json:"supply"`
	SellerAccount  string          `json:"sellerAccount"`
	RentAPR        decimal.Decimal `json:"rentApr"`
	FeeRate        decimal.Decimal `json:"feeRate"`
}
