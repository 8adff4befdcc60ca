package database

import (
	"context"

	"zlot-parking/internal/models"
)

const profileColumns = "id, full_name, email, role, account_type, is_admin"

func scanProfile(row scanner) (*models.Profile, error) {
	var p models.Profile
	if err := row.Scan(&p.ID, &p.FullName, &p.Email, &p.Role, &p.AccountType, &p.IsAdmin); err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	return queryOne(ctx, db.q, scanProfile,
		"SELECT "+profileColumns+" FROM profiles WHERE id = ?", id)
}

func (db *DB) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	return queryList(ctx, db.q, scanProfile,
		"SELECT "+profileColumns+" FROM profiles")
}
