package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vouchr/internal/voucher/domain"
	pkgdb "github.com/smallbiznis/vouchr/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const voucherColumns = `v.id, v.deal_id, v.business_id, v.validation_id, v.qr_token, v.status,
	v.customer_reference, v.issued_at, v.expires_at, v.redeemed_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByExternalRef(ctx context.Context, db *gorm.DB, dealID snowflake.ID, externalRef string) (*domain.Voucher, error) {
	var item domain.Voucher
	err := db.WithContext(ctx).Raw(
		`SELECT `+voucherColumns+`
		 FROM validations val
		 JOIN vouchers v ON v.validation_id = val.id
		 WHERE val.deal_id = ? AND val.external_ref = ?
		 LIMIT 1`,
		dealID,
		externalRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertValidation(ctx context.Context, db *gorm.DB, v *domain.Validation) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "deal_id"}, {Name: "external_ref"}},
		DoNothing: true,
	}).Create(v)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertVoucher(ctx context.Context, db *gorm.DB, v *domain.Voucher) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO vouchers (id, deal_id, business_id, validation_id, qr_token, status,
			customer_reference, issued_at, expires_at, redeemed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		v.ID,
		v.DealID,
		v.BusinessID,
		v.ValidationID,
		v.QRToken,
		string(v.Status),
		v.CustomerReference,
		v.IssuedAt,
		v.ExpiresAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers v WHERE v.id = ?`
	if forUpdate {
		query += pkgdb.ForUpdate(db)
	}

	var item domain.Voucher
	if err := db.WithContext(ctx).Raw(query, id).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByQRToken(ctx context.Context, db *gorm.DB, qrToken string) (*domain.Voucher, error) {
	var item domain.Voucher
	err := db.WithContext(ctx).Raw(
		`SELECT `+voucherColumns+` FROM vouchers v WHERE v.qr_token = ? LIMIT 1`,
		qrToken,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkRedeemed(ctx context.Context, db *gorm.DB, id, businessID snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE vouchers
		 SET status = ?, redeemed_at = ?
		 WHERE id = ? AND business_id = ? AND status = ?`,
		string(domain.StatusRedeemed),
		at,
		id,
		businessID,
		string(domain.StatusIssued),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
