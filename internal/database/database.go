package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// DB постоянное хранилище клиента "ключ-значение" поверх sqlite,
// аналог localStorage браузера
type DB struct {
	db   *sql.DB
	path string
}

// Open открывает (и при необходимости создает) файл хранилища
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("ошибка создания каталога хранилища: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть хранилище %s: %w", path, err)
	}
	// одно соединение: для :memory: каждое соединение видит свою базу
	db.SetMaxOpenConns(1)

	d := &DB{db: db, path: path}
	if err := d.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) createTables() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS storage (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ошибка создания таблицы storage: %w", err)
	}

	return d.applyMigrations()
}

// applyMigrations применяет все миграции к базе данных
func (d *DB) applyMigrations() error {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('storage') WHERE name='updated_at'").Scan(&count)
	if err != nil {
		return fmt.Errorf("ошибка проверки существования столбца updated_at: %w", err)
	}

	if count == 0 {
		_, err = d.db.Exec(`ALTER TABLE storage ADD COLUMN updated_at TEXT NOT NULL DEFAULT ''`)
		if err != nil {
			return fmt.Errorf("ошибка добавления столбца updated_at: %w", err)
		}
	}

	return nil
}

// Get возвращает значение по ключу; ok=false, если ключа нет
func (d *DB) Get(key string) (string, bool, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM storage WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("ошибка чтения ключа %s: %w", key, err)
	}
	return value, true, nil
}

// Set сохраняет значение, перезаписывая существующее
func (d *DB) Set(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO storage (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения ключа %s: %w", key, err)
	}
	return nil
}

// Remove удаляет ключ; отсутствие ключа ошибкой не считается
func (d *DB) Remove(key string) error {
	if _, err := d.db.Exec("DELETE FROM storage WHERE key = ?", key); err != nil {
		return fmt.Errorf("ошибка удаления ключа %s: %w", key, err)
	}
	return nil
}

// Keys возвращает все сохраненные ключи (для отладочного вывода)
func (d *DB) Keys() ([]string, error) {
	rows, err := d.db.Query("SELECT key FROM storage ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ключей: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("ошибка чтения ключа: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (d *DB) Close() error {
	log.Printf("Закрытие хранилища сессии %s", d.path)
	return d.db.Close()
}
