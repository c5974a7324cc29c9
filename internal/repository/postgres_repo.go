package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/doctorauto/go-patio-sync/internal/model"
)

type DBConfig struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

type PostgresRepo struct {
	DB *sql.DB
}

func NewPostgresRepoFromConfig(cfg *DBConfig) (*PostgresRepo, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Pass, cfg.Name)
	return NewPostgresRepoFromDSN(dsn)
}

func NewPostgresRepoFromDSN(dsn string) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &PostgresRepo{DB: db}, nil
}

func (r *PostgresRepo) RunMigrations(ctx context.Context) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
		`CREATE TABLE IF NOT EXISTS admins (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            username VARCHAR(100) UNIQUE NOT NULL,
            password_hash TEXT NOT NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT now()
        );`,
		`CREATE TABLE IF NOT EXISTS trello_lists (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            board_id TEXT,
            position DOUBLE PRECISION DEFAULT 0,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT now()
        );`,
		`CREATE TABLE IF NOT EXISTS trello_custom_fields (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            type TEXT,
            options JSONB,
            board_id TEXT,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT now()
        );`,
		`CREATE TABLE IF NOT EXISTS trello_cards (
            id TEXT PRIMARY KEY,
            name TEXT,
            description TEXT,
            id_list TEXT,
            list_name TEXT,
            labels JSONB,
            custom_fields JSONB,
            placa TEXT,
            modelo TEXT,
            responsavel_tecnico TEXT,
            valor_aprovado TEXT,
            previsao_entrega TEXT,
            kommo_lead_id BIGINT,
            date_last_activity TEXT,
            synced_at TIMESTAMP WITH TIME ZONE DEFAULT now(),
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT now()
        );`,
		`CREATE TABLE IF NOT EXISTS sync_links (
            lead_id BIGINT PRIMARY KEY,
            card_id TEXT UNIQUE NOT NULL,
            sync_status TEXT NOT NULL DEFAULT 'pending',
            sync_error TEXT,
            last_sync_at TIMESTAMP WITH TIME ZONE DEFAULT now(),
            created_at TIMESTAMP WITH TIME ZONE DEFAULT now()
        );`,
		`CREATE TABLE IF NOT EXISTS trello_card_history (
            id BIGSERIAL PRIMARY KEY,
            card_id TEXT NOT NULL,
            action_type TEXT NOT NULL,
            from_list TEXT,
            to_list TEXT,
            changed_fields JSONB,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT now()
        );`,
		`CREATE TABLE IF NOT EXISTS kommo_config (
            id INT PRIMARY KEY DEFAULT 1,
            access_token TEXT,
            refresh_token TEXT,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT now()
        );`,
	}
	for _, q := range queries {
		if _, err := r.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepo) GetAdminByUsername(ctx context.Context, username string) (*model.Admin, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at
         FROM admins WHERE username = $1 LIMIT 1`, username)

	var a model.Admin
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PostgresRepo) UpsertAdmin(ctx context.Context, username, passwordHash string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO admins (username, password_hash) VALUES ($1,$2)
		ON CONFLICT (username) DO UPDATE SET password_hash = $2
	`, username, passwordHash)
	return err
}
