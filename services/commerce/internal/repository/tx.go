package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// 저장소 공통 센티널 에러
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// Tx 저장소 트랜잭션 핸들 (구현별 타입, postgres는 *sql.Tx)
type Tx interface{}

// TxManager 트랜잭션 실행기. fn이 에러를 반환하면 전체 롤백된다.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// SQLTxManager database/sql 기반 트랜잭션 실행기
type SQLTxManager struct {
	db *sql.DB
}

// NewSQLTxManager 트랜잭션 실행기 생성
func NewSQLTxManager(db *sql.DB) *SQLTxManager {
	return &SQLTxManager{db: db}
}

// WithinTx 단일 트랜잭션 안에서 fn 실행 (read committed)
func (m *SQLTxManager) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// querier *sql.DB와 *sql.Tx 공통 쿼리 인터페이스
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func asSQLTx(tx Tx) (*sql.Tx, error) {
	sqlTx, ok := tx.(*sql.Tx)
	if !ok {
		return nil, fmt.Errorf("unexpected transaction type: %T", tx)
	}
	return sqlTx, nil
}
