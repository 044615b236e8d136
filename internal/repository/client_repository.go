package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/segyhp/microloan-engine/internal/domain"
)

type clientRepository struct {
	db sqlx.ExtContext
}

func (r *clientRepository) Create(ctx context.Context, client *domain.Client) error {
	query := `
		INSERT INTO clients (name, phone_number, id_number_encrypted, id_number_hash, credit_score, max_loan_limit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := sqlx.GetContext(ctx, r.db, &client.ID, query,
		client.Name,
		client.PhoneNumber,
		client.IDNumberEncrypted,
		client.IDNumberHash,
		client.CreditScore,
		client.MaxLoanLimit,
		client.CreatedAt,
		client.UpdatedAt,
	)

	return translate(err)
}

func (r *clientRepository) GetByID(ctx context.Context, id int64) (*domain.Client, error) {
	query := `
		SELECT id, name, phone_number, id_number_encrypted, id_number_hash, credit_score, max_loan_limit, created_at, updated_at
		FROM clients
		WHERE id = $1
	`

	var client domain.Client
	if err := sqlx.GetContext(ctx, r.db, &client, query, id); err != nil {
		return nil, translate(err)
	}

	return &client, nil
}

func (r *clientRepository) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, r.db, &ids, `SELECT id FROM clients ORDER BY id`)
	if err != nil {
		return nil, translate(err)
	}

	return ids, nil
}

func (r *clientRepository) UpdateCredit(ctx context.Context, id int64, result domain.CreditResult, updatedAt time.Time) error {
	query := `
		UPDATE clients
		SET credit_score = $2, max_loan_limit = $3, updated_at = $4
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, result.Score, result.Limit, updatedAt)
	if err != nil {
		return translate(err)
	}

	return expectRow(res)
}
