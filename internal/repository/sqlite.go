package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/wrongjunior/updaterelay/internal/domain"
)

// UpdateRepository определяет интерфейс журнала полученных обновлений.
type UpdateRepository interface {
	Init() error
	Save(update domain.Update) error
	Recent(limit int) ([]domain.Update, error)
}

// SQLiteRepository реализует журнал на базе SQLite.
type SQLiteRepository struct {
	DB *sql.DB
}

// NewSQLiteRepository создаёт новый экземпляр репозитория.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{DB: db}
}

// Init создаёт таблицу для хранения обновлений, если её ещё нет.
func (repo *SQLiteRepository) Init() error {
	query := `
        CREATE TABLE IF NOT EXISTS updates (
            id INTEGER PRIMARY KEY,
            type TEXT NOT NULL,
            title TEXT NOT NULL,
            message TEXT NOT NULL,
            timestamp DATETIME NOT NULL,
            received_at DATETIME NOT NULL
        );
    `
	_, err := repo.DB.Exec(query)
	return err
}

// Save сохраняет обновление, если такого обновления ещё нет.
func (repo *SQLiteRepository) Save(update domain.Update) error {
	query := `INSERT OR IGNORE INTO updates (id, type, title, message, timestamp, received_at) VALUES (?, ?, ?, ?, ?, ?);`
	_, err := repo.DB.Exec(query, update.ID, string(update.Type), update.Title, update.Message,
		update.Timestamp.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save update %d: %w", update.ID, err)
	}
	return nil
}

// Recent возвращает последние limit обновлений, новые первыми.
func (repo *SQLiteRepository) Recent(limit int) ([]domain.Update, error) {
	rows, err := repo.DB.Query(`SELECT id, type, title, message, timestamp FROM updates ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	updates := []domain.Update{}
	for rows.Next() {
		var (
			u   domain.Update
			typ string
		)
		if err := rows.Scan(&u.ID, &typ, &u.Title, &u.Message, &u.Timestamp); err != nil {
			return nil, err
		}
		u.Type = domain.UpdateType(typ)
		u.Timestamp = u.Timestamp.UTC()
		updates = append(updates, u)
	}
	return updates, rows.Err()
}
