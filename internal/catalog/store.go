package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/piragazh/feasto/internal/discount"
)

// Store reads the discount catalog from Postgres. The catalog is owned and
// written by the admin service; this engine only ever reads it, usage
// counters included.
type Store struct {
	Pool *pgxpool.Pool
}

const listActivePromotionsSQL = `
SELECT id, restaurant_id, name, promotion_type, discount_value, minimum_order,
       usage_limit, usage_count, start_date, end_date, promotion_code, is_active
FROM promotions
WHERE restaurant_id = $1 AND is_active = TRUE
ORDER BY start_date, id`

const findCouponsByCodeSQL = `
SELECT id, code, discount_type, discount_value, max_discount, minimum_order,
       restaurant_id, usage_limit, usage_count, valid_from, valid_until, is_active
FROM coupons
WHERE UPPER(code) = $1`

const findPromotionsByCodeSQL = `
SELECT id, restaurant_id, name, promotion_type, discount_value, minimum_order,
       usage_limit, usage_count, start_date, end_date, promotion_code, is_active
FROM promotions
WHERE restaurant_id = $1 AND UPPER(promotion_code) = $2 AND is_active = TRUE
ORDER BY start_date, id`

const listPromotedRestaurantsSQL = `
SELECT DISTINCT restaurant_id
FROM promotions
WHERE is_active = TRUE AND start_date <= $1 AND end_date >= $1`

// ListActivePromotions returns the published promotions for a restaurant.
func (s Store) ListActivePromotions(ctx context.Context, restaurantID uuid.UUID) ([]discount.Promotion, error) {
	if s.Pool == nil {
		return nil, errors.New("catalog: pool not configured")
	}
	rows, err := s.Pool.Query(ctx, listActivePromotionsSQL, toPgUUID(restaurantID))
	if err != nil {
		return nil, fmt.Errorf("catalog: list promotions: %w", err)
	}
	defer rows.Close()
	return scanPromotions(rows)
}

// FindCouponsByCode looks up a normalized code in the storefront-wide coupon
// table. Matching is case-insensitive; codes are stored case-normalized.
func (s Store) FindCouponsByCode(ctx context.Context, code string) ([]discount.Coupon, error) {
	if s.Pool == nil {
		return nil, errors.New("catalog: pool not configured")
	}
	rows, err := s.Pool.Query(ctx, findCouponsByCodeSQL, discount.NormalizeCode(code))
	if err != nil {
		return nil, fmt.Errorf("catalog: find coupons: %w", err)
	}
	defer rows.Close()

	var out []discount.Coupon
	for rows.Next() {
		var (
			id           pgtype.UUID
			couponCode   string
			discountType string
			value        int64
			maxDiscount  pgtype.Int8
			minimumOrder pgtype.Int8
			restaurantID pgtype.UUID
			usageLimit   pgtype.Int4
			usageCount   int32
			validFrom    pgtype.Timestamptz
			validUntil   pgtype.Timestamptz
			active       bool
		)
		if err := rows.Scan(&id, &couponCode, &discountType, &value, &maxDiscount, &minimumOrder,
			&restaurantID, &usageLimit, &usageCount, &validFrom, &validUntil, &active); err != nil {
			return nil, fmt.Errorf("catalog: scan coupon: %w", err)
		}
		out = append(out, discount.Coupon{
			ID:           fromPgUUID(id),
			Code:         couponCode,
			Type:         discount.CouponType(discountType),
			Value:        value,
			MaxDiscount:  nullableInt64(maxDiscount),
			MinimumOrder: nullableInt64(minimumOrder),
			RestaurantID: nullableUUID(restaurantID),
			UsageLimit:   nullableInt32(usageLimit),
			UsageCount:   usageCount,
			ValidFrom:    nullableTime(validFrom),
			ValidUntil:   nullableTime(validUntil),
			Active:       active,
		})
	}
	return out, rows.Err()
}

// FindPromotionsByCode looks up a normalized code among a restaurant's
// active code-gated promotions.
func (s Store) FindPromotionsByCode(ctx context.Context, restaurantID uuid.UUID, code string) ([]discount.Promotion, error) {
	if s.Pool == nil {
		return nil, errors.New("catalog: pool not configured")
	}
	rows, err := s.Pool.Query(ctx, findPromotionsByCodeSQL, toPgUUID(restaurantID), discount.NormalizeCode(code))
	if err != nil {
		return nil, fmt.Errorf("catalog: find promotions: %w", err)
	}
	defer rows.Close()
	return scanPromotions(rows)
}

// ListPromotedRestaurants returns restaurants with a live promotion window,
// used by the cache refresher to decide what to pre-warm.
func (s Store) ListPromotedRestaurants(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	if s.Pool == nil {
		return nil, errors.New("catalog: pool not configured")
	}
	rows, err := s.Pool.Query(ctx, listPromotedRestaurantsSQL, now)
	if err != nil {
		return nil, fmt.Errorf("catalog: list promoted restaurants: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("catalog: scan restaurant id: %w", err)
		}
		out = append(out, fromPgUUID(id))
	}
	return out, rows.Err()
}

func scanPromotions(rows pgx.Rows) ([]discount.Promotion, error) {
	var out []discount.Promotion
	for rows.Next() {
		var (
			id           pgtype.UUID
			restaurantID pgtype.UUID
			name         string
			promoType    string
			value        int64
			minimumOrder pgtype.Int8
			usageLimit   pgtype.Int4
			usageCount   int32
			startDate    time.Time
			endDate      time.Time
			code         pgtype.Text
			active       bool
		)
		if err := rows.Scan(&id, &restaurantID, &name, &promoType, &value, &minimumOrder,
			&usageLimit, &usageCount, &startDate, &endDate, &code, &active); err != nil {
			return nil, fmt.Errorf("catalog: scan promotion: %w", err)
		}
		promo := discount.Promotion{
			ID:           fromPgUUID(id),
			RestaurantID: fromPgUUID(restaurantID),
			Name:         name,
			Type:         discount.PromotionType(promoType),
			Value:        value,
			MinimumOrder: nullableInt64(minimumOrder),
			UsageLimit:   nullableInt32(usageLimit),
			UsageCount:   usageCount,
			StartDate:    startDate,
			EndDate:      endDate,
			Active:       active,
		}
		if code.Valid && code.String != "" {
			c := code.String
			promo.Code = &c
		}
		out = append(out, promo)
	}
	return out, rows.Err()
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func fromPgUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return uuid.UUID(id.Bytes)
}

func nullableUUID(id pgtype.UUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	u := uuid.UUID(id.Bytes)
	return &u
}

func nullableInt64(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	val := v.Int64
	return &val
}

func nullableInt32(v pgtype.Int4) *int32 {
	if !v.Valid {
		return nil
	}
	val := v.Int32
	return &val
}

func nullableTime(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
