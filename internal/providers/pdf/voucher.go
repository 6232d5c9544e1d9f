package pdf

import (
	"context"
	"errors"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateVoucher(ctx context.Context, data VoucherData) ([]byte, error) {
	if strings.TrimSpace(data.QRToken) == "" {
		return nil, errors.New("pdf: voucher has no qr token")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Voucher", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.BusinessName, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
			Top:   4,
		}),
	)

	m.AddRow(12,
		text.NewCol(12, data.DealTitle, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
		}),
	)

	// The QR payload is the redemption URL when one is configured so phone
	// cameras open it directly. Scanners read the token either way.
	payload := data.QRToken
	if data.RedeemURL != "" {
		payload = data.RedeemURL
	}
	m.AddRow(80,
		col.New(3),
		code.NewQrCol(6, payload, props.Rect{
			Center:  true,
			Percent: 100,
		}),
		col.New(3),
	)

	m.AddRow(6, line.NewCol(12))

	m.AddRow(30,
		col.New(6).Add(
			text.New("Voucher ID: "+data.VoucherID, props.Text{Top: 0, Size: 9}),
			text.New("Issued: "+data.IssuedAt, props.Text{Top: 5, Size: 9}),
			text.New("Valid until: "+data.ExpiresAt, props.Text{Top: 10, Size: 9, Style: fontstyle.Bold}),
		),
		col.New(6).Add(
			text.New("Paid: "+data.Price, props.Text{Top: 0, Size: 9, Align: align.Right}),
		),
	)

	if data.Terms != "" {
		m.AddRow(20,
			text.NewCol(12, data.Terms, props.Text{Size: 8}),
		)
	}

	m.AddRow(10,
		text.NewCol(12, "Show this code at the counter. It can be redeemed once.", props.Text{
			Size:  8,
			Style: fontstyle.Italic,
			Align: align.Center,
		}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
