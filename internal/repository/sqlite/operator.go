package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/talentflow/pkg/models"
)

func (r *SQLiteRepo) CreateOperator(ctx context.Context, o *models.Operator) (int64, error) {
	if o == nil {
		return 0, fmt.Errorf("operator is nil")
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO operators (name, email, updated, password_hash) VALUES (?, ?, ?, ?)`,
		o.Name, o.Email, now(), o.PasswordHash)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SQLiteRepo) GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, name, email, updated, password_hash FROM operators WHERE email = ?`, email)
	var o models.Operator
	var pw sql.NullString
	if err := row.Scan(&o.ID, &o.Name, &o.Email, &o.Updated, &pw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if pw.Valid {
		o.PasswordHash = pw.String
	}
	return &o, nil
}

func (r *SQLiteRepo) CountOperators(ctx context.Context) (int64, error) {
	var n int64
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM operators`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
