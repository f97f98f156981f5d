// Package queue persists contact-form submissions that could not reach the
// origin while the network was down. Rows stay queued until a background sync
// delivers them; the package never decides retry counts or expiry on its own.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Submission 是一条待同步的联系表单提交。
type Submission struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Payload 返回 POST 到联系接口的 JSON 结构 { name, email, message }。
func (s Submission) Payload() map[string]string {
	return map[string]string{
		"name":    s.Name,
		"email":   s.Email,
		"message": s.Message,
	}
}

// ErrEmptySubmission 表示提交缺少全部字段，无需入队。
var ErrEmptySubmission = errors.New("submission is empty")

// Store 是基于 SQLite 的待同步队列。
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open 打开（必要时创建）队列数据库并建表。
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("queue path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping queue db: %w", err)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate queue db: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS pending_submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`)
	return err
}

// Close 释放底层连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enqueue 写入一条待同步提交并返回其 ID。
func (s *Store) Enqueue(ctx context.Context, sub Submission) (int64, error) {
	sub.Name = strings.TrimSpace(sub.Name)
	sub.Email = strings.TrimSpace(sub.Email)
	sub.Message = strings.TrimSpace(sub.Message)
	if sub.Name == "" && sub.Email == "" && sub.Message == "" {
		return 0, ErrEmptySubmission
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_submissions (name, email, message, created_at) VALUES (?, ?, ?, ?)`,
		sub.Name, sub.Email, sub.Message, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue submission: %w", err)
	}
	return res.LastInsertId()
}

// Pending 按入队顺序返回全部待同步提交。
func (s *Store) Pending(ctx context.Context) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, message, created_at FROM pending_submissions ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var result []Submission
	for rows.Next() {
		var (
			sub       Submission
			createdAt int64
		)
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Email, &sub.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.CreatedAt = time.UnixMilli(createdAt).UTC()
		result = append(result, sub)
	}
	return result, rows.Err()
}

// Count 返回队列长度。
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_submissions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// Delete 在同步成功后移除提交，不存在时静默返回。
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_submissions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete submission %d: %w", id, err)
	}
	return nil
}
