package pdf

import "context"

// VoucherData is everything printed on a voucher. Values are preformatted.
type VoucherData struct {
	VoucherID    string
	QRToken      string
	DealTitle    string
	BusinessName string
	Price        string
	IssuedAt     string
	ExpiresAt    string
	RedeemURL    string
	Terms        string
}

type Provider interface {
	GenerateVoucher(ctx context.Context, data VoucherData) ([]byte, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateVoucher(ctx context.Context, data VoucherData) ([]byte, error) {
	return nil, nil
}
