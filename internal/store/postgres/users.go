package postgres

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"stoqplus/backend/internal/domain"
)

const userColumns = `id, name, email, password_hash, is_verified, verification_token, is_super_admin, avatar_url, created_at`

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	return insertUser(ctx, s.db, user)
}

func insertUser(ctx context.Context, db sqlx.ExtContext, user domain.User) error {
	user.Email = normalizeEmail(user.Email)
	_, err := sqlx.NamedExecContext(ctx, db, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :name, :email, :password_hash, :is_verified, :verification_token, :is_super_admin, :avatar_url, :created_at)
	`, user)
	return translate(err)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, `id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, `email = $1`, normalizeEmail(email))
}

func (s *Store) GetUserByVerificationToken(ctx context.Context, token string) (*domain.User, error) {
	return s.getUser(ctx, `verification_token = $1`, token)
}

func (s *Store) getUser(ctx context.Context, where string, arg string) (*domain.User, error) {
	var user domain.User
	if err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE `+where, arg); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE users
		SET name = :name, password_hash = :password_hash, is_verified = :is_verified,
			verification_token = :verification_token, is_super_admin = :is_super_admin, avatar_url = :avatar_url
		WHERE id = :id
	`, user)
	return expectAffected(res, err)
}

func (s *Store) DeleteAccount(ctx context.Context, userID string, storeID string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if storeID != "" {
			if _, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, storeID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
		return expectAffected(res, err)
	})
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM users`); err != nil {
		return 0, err
	}
	return n, nil
}

const membershipColumns = `id, user_id, store_id, role, can_sell, can_manage_products, created_at`

func (s *Store) GetMembershipByUser(ctx context.Context, userID string) (*domain.Membership, error) {
	var m domain.Membership
	if err := s.db.GetContext(ctx, &m, `SELECT `+membershipColumns+` FROM store_users WHERE user_id = $1`, userID); err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *Store) GetMembership(ctx context.Context, storeID string, id string) (*domain.Membership, error) {
	var m domain.Membership
	if err := s.db.GetContext(ctx, &m, `SELECT `+membershipColumns+` FROM store_users WHERE store_id = $1 AND id = $2`, storeID, id); err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *Store) ListTeam(ctx context.Context, storeID string) ([]domain.TeamMember, error) {
	team := make([]domain.TeamMember, 0)
	err := s.db.SelectContext(ctx, &team, `
		SELECT m.id, m.user_id, u.name, u.email, m.role, m.can_sell, m.can_manage_products
		FROM store_users m
		JOIN users u ON u.id = m.user_id
		WHERE m.store_id = $1 AND m.role <> 'OWNER'
		ORDER BY u.name
	`, storeID)
	if err != nil {
		return nil, err
	}
	return team, nil
}

func (s *Store) CreateTeamMember(ctx context.Context, user domain.User, membership domain.Membership) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}
		return insertMembership(ctx, tx, membership)
	})
}

func insertMembership(ctx context.Context, db sqlx.ExtContext, m domain.Membership) error {
	_, err := sqlx.NamedExecContext(ctx, db, `
		INSERT INTO store_users (`+membershipColumns+`)
		VALUES (:id, :user_id, :store_id, :role, :can_sell, :can_manage_products, :created_at)
	`, m)
	return translate(err)
}

func (s *Store) UpdateMembership(ctx context.Context, m domain.Membership) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE store_users SET role = $3, can_sell = $4, can_manage_products = $5
		WHERE store_id = $1 AND id = $2
	`, m.StoreID, m.ID, m.Role, m.CanSell, m.CanManageProducts)
	return expectAffected(res, err)
}

func (s *Store) DeleteMembership(ctx context.Context, storeID string, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM store_users WHERE store_id = $1 AND id = $2`, storeID, id)
	return expectAffected(res, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
