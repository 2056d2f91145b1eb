package prompt

import (
	"context"
	"database/sql"
	"fmt"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS prompt_points (
    session_id TEXT NOT NULL,
    object_rank INTEGER NOT NULL,
    entry_rank INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    object_id INTEGER NOT NULL,
    frame INTEGER NOT NULL,
    x REAL NOT NULL,
    y REAL NOT NULL,
    polarity INTEGER NOT NULL CHECK(polarity IN (0, 1)),
    saved_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (session_id, object_rank, entry_rank, seq)
);
CREATE INDEX IF NOT EXISTS idx_prompt_session ON prompt_points(session_id);
`

// Store 以会话 ID 为键持久化账本快照
type Store struct {
	db *sql.DB
}

// OpenStore 打开 SQLite 数据库并建表
//
// dsn 可以是文件路径或 ":memory:"
func OpenStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// 内存库每个连接相互独立
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// Save 用账本的当前内容替换该会话已保存的快照
func (s *Store) Save(ctx context.Context, sessionID string, l *Ledger) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM prompt_points WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("清理旧快照失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO prompt_points (
			session_id, object_rank, entry_rank, seq, object_id, frame, x, y, polarity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("准备插入语句失败: %w", err)
	}
	defer stmt.Close()

	for oi, h := range l.objects {
		for ei, e := range h.entries {
			for seq, p := range e.Points {
				_, err := stmt.ExecContext(ctx,
					sessionID, oi, ei, seq, h.objectID, e.Frame, p.X, p.Y, int(e.Polarities[seq]),
				)
				if err != nil {
					return fmt.Errorf("写入提示点失败: %w", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// Load 读取会话的账本快照, 不存在时返回空账本
func (s *Store) Load(ctx context.Context, sessionID string) (*Ledger, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT object_id, frame, x, y, polarity
		FROM prompt_points
		WHERE session_id = ?
		ORDER BY object_rank, entry_rank, seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("查询提示点失败: %w", err)
	}
	defer rows.Close()

	l := NewLedger()
	for rows.Next() {
		var (
			objectID, frame, pol int
			x, y                 float64
		)
		if err := rows.Scan(&objectID, &frame, &x, &y, &pol); err != nil {
			return nil, fmt.Errorf("读取提示点失败: %w", err)
		}
		l.Add(objectID, frame, Point{X: float32(x), Y: float32(y)}, Polarity(pol))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历提示点失败: %w", err)
	}
	return l, nil
}

// Sessions 列出已保存的会话 ID
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT session_id FROM prompt_points ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("读取会话失败: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
