package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash"
	_ "modernc.org/sqlite"

	"github.com/ccp-p/meeting-transcriber/pkg/models"
	"github.com/ccp-p/meeting-transcriber/pkg/utils"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id           TEXT PRIMARY KEY,
    fingerprint  TEXT NOT NULL,
    filename     TEXT NOT NULL,
    model        TEXT NOT NULL,
    record_json  TEXT NOT NULL,
    notes_json   TEXT NOT NULL DEFAULT '[]',
    duration_sec REAL NOT NULL DEFAULT 0,
    process_ms   INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint, model);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

// Store 已完成记录的 SQLite 存储
type Store struct {
	db   *sql.DB
	path string
}

// Fingerprint 音频内容指纹（xxhash64 十六进制）
func Fingerprint(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// Open 打开或创建数据库
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// 单连接即可满足串行写入，也让 :memory: 数据库在连接间保持一致
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	utils.Debug("记录数据库已打开: %s", path)
	return &Store{db: db, path: path}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save 保存一次成功的运行，只接受带完整记录的结果
func (s *Store) Save(ctx context.Context, result *models.RunResult) error {
	if result == nil || result.Record == nil {
		return errors.New("只能保存已完成的记录")
	}
	if result.RunID == "" {
		return errors.New("缺少 run id")
	}

	recordJSON, err := json.Marshal(result.Record)
	if err != nil {
		return fmt.Errorf("序列化记录失败: %w", err)
	}
	notes := result.Notes
	if notes == nil {
		notes = []string{}
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("序列化说明失败: %w", err)
	}

	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (
            id, fingerprint, filename, model, record_json, notes_json,
            duration_sec, process_ms, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.Fingerprint,
		result.FileName,
		result.Model,
		string(recordJSON),
		string(notesJSON),
		result.DurationSec,
		result.ProcessTimeMs,
		createdAt.UTC().Format(createdAtLayout),
	)
	if err != nil {
		return fmt.Errorf("保存记录失败: %w", err)
	}
	return nil
}

// created_at 按文本排序，小数位固定宽度
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = `id, fingerprint, filename, model, record_json, notes_json, duration_sec, process_ms, created_at`

// Get 按 run id 读取
func (s *Store) Get(ctx context.Context, id string) (*models.RunResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// FindByFingerprint 查找同一音频在同一模型下最近一次的结果
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint, model string) (*models.RunResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM runs
         WHERE fingerprint = ? AND model = ?
         ORDER BY created_at DESC LIMIT 1`,
		fingerprint, model)
	return scanRun(row)
}

// List 按时间倒序列出记录，limit <= 0 表示不限制
func (s *Store) List(ctx context.Context, limit int) ([]*models.RunResult, error) {
	query := `SELECT ` + selectColumns + ` FROM runs ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询记录失败: %w", err)
	}
	defer rows.Close()

	var results []*models.RunResult
	for rows.Next() {
		result, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.RunResult, error) {
	var (
		result     models.RunResult
		recordJSON string
		notesJSON  string
		createdAt  string
	)
	err := row.Scan(
		&result.RunID,
		&result.Fingerprint,
		&result.FileName,
		&result.Model,
		&recordJSON,
		&notesJSON,
		&result.DurationSec,
		&result.ProcessTimeMs,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取记录失败: %w", err)
	}

	result.Record = &models.TranscriptRecord{}
	if err := json.Unmarshal([]byte(recordJSON), result.Record); err != nil {
		return nil, fmt.Errorf("解析记录失败: %w", err)
	}
	if err := json.Unmarshal([]byte(notesJSON), &result.Notes); err != nil {
		return nil, fmt.Errorf("解析说明失败: %w", err)
	}
	if len(result.Notes) == 0 {
		result.Notes = nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		result.CreatedAt = ts
	}
	return &result, nil
}
