// Copyright (c) 2024 djtezos contributors

// Package sqlstore is a database/sql-backed store.Store using
// mattn/go-sqlite3, exercising the JSON-typed-column and unique-txhash
// requirements of spec §6 against a real SQL engine rather than an
// in-memory map. Each save is a single INSERT ... ON CONFLICT upsert
// statement, so a row is written whole in one step; its single-row
// atomicity comes from SQLite executing each statement atomically, the
// guarantee internal/compose/context.go gets for free from holding
// everything in one process.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/echa/log"
	_ "github.com/mattn/go-sqlite3"

	"github.com/google/uuid"
	djerrors "github.com/yourlabs/djtezos/engine/errors"
	"github.com/yourlabs/djtezos/model"
	"github.com/yourlabs/djtezos/store"
)

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

const schema = `
CREATE TABLE IF NOT EXISTS blockchains (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	provider_class TEXT NOT NULL,
	explorer_template TEXT,
	confirmation_blocks INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	max_level INTEGER,
	min_level INTEGER
);
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	blockchain_id TEXT NOT NULL,
	address TEXT,
	encrypted_private_key BLOB,
	owner_ref TEXT,
	balance INTEGER NOT NULL DEFAULT 0,
	name TEXT
);
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	sender_ref TEXT,
	receiver_ref TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	txhash TEXT UNIQUE,
	gas_price INTEGER,
	gas INTEGER,
	contract_address TEXT,
	contract_name TEXT,
	contract_source TEXT,
	contract_code TEXT,
	contract_ref TEXT,
	function TEXT,
	args TEXT,
	args_resolved TEXT,
	amount INTEGER,
	level INTEGER,
	last_fail INTEGER,
	state TEXT NOT NULL,
	error TEXT,
	history TEXT
);
CREATE INDEX IF NOT EXISTS idx_tx_sender_state ON transactions(sender_ref, state);
CREATE INDEX IF NOT EXISTS idx_tx_state ON transactions(state);
`

// Store wraps a *sql.DB opened against a SQLite file (or ":memory:") and
// implements store.Store.
type Store struct {
	db *sql.DB
}

// Open opens dsn (a sqlite3 DSN, e.g. a file path or ":memory:") and
// ensures the schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, djerrors.WrapPermanent(err, "sqlstore: open "+dsn)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver serializes writers anyway; avoid SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, djerrors.WrapPermanent(err, "sqlstore: migrate schema")
	}
	log.Infof("sqlstore: opened %s", dsn)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullUUID(p *uuid.UUID) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.String(), Valid: true}
}

func (s *Store) SaveAccount(ctx context.Context, a *model.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, blockchain_id, address, encrypted_private_key, owner_ref, balance, name)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			blockchain_id=excluded.blockchain_id, address=excluded.address,
			encrypted_private_key=excluded.encrypted_private_key, owner_ref=excluded.owner_ref,
			balance=excluded.balance, name=excluded.name`,
		a.ID.String(), a.BlockchainID.String(), a.Address, a.EncryptedPrivateKey,
		nullUUID(a.OwnerRef), a.Balance, a.Name)
	if err != nil {
		return djerrors.Classify(err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, blockchain_id, address, encrypted_private_key, owner_ref, balance, name FROM accounts WHERE id = ?`, id.String())
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound{Kind: "account", ID: id}
	}
	return a, err
}

func (s *Store) ListAccounts(ctx context.Context, blockchainID uuid.UUID) ([]*model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, blockchain_id, address, encrypted_private_key, owner_ref, balance, name FROM accounts WHERE blockchain_id = ?`, blockchainID.String())
	if err != nil {
		return nil, djerrors.Classify(err)
	}
	defer rows.Close()
	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, djerrors.Classify(err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(r scanner) (*model.Account, error) {
	var a model.Account
	var id, bcID string
	var ownerRef sql.NullString
	if err := r.Scan(&id, &bcID, &a.Address, &a.EncryptedPrivateKey, &ownerRef, &a.Balance, &a.Name); err != nil {
		return nil, err
	}
	a.ID, _ = uuid.Parse(id)
	a.BlockchainID, _ = uuid.Parse(bcID)
	if ownerRef.Valid {
		u, _ := uuid.Parse(ownerRef.String)
		a.OwnerRef = &u
	}
	return &a, nil
}

func (s *Store) SaveBlockchain(ctx context.Context, bc *model.Blockchain) error {
	if err := bc.Validate(); err != nil {
		return err
	}
	if bc.ID == uuid.Nil {
		bc.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blockchains (id, name, endpoint, provider_class, explorer_template, confirmation_blocks, is_active, max_level, min_level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, endpoint=excluded.endpoint, provider_class=excluded.provider_class,
			explorer_template=excluded.explorer_template, confirmation_blocks=excluded.confirmation_blocks,
			is_active=excluded.is_active, max_level=excluded.max_level, min_level=excluded.min_level`,
		bc.ID.String(), bc.Name, bc.Endpoint, bc.ProviderClass, bc.ExplorerTemplate,
		bc.ConfirmationBlocks, bc.IsActive, nullInt64(bc.MaxLevel), nullInt64(bc.MinLevel))
	if err != nil {
		return djerrors.Classify(err)
	}
	return nil
}

func (s *Store) GetBlockchain(ctx context.Context, id uuid.UUID) (*model.Blockchain, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, endpoint, provider_class, explorer_template, confirmation_blocks, is_active, max_level, min_level FROM blockchains WHERE id = ?`, id.String())
	bc, err := scanBlockchain(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound{Kind: "blockchain", ID: id}
	}
	return bc, err
}

func (s *Store) ListActiveBlockchains(ctx context.Context) ([]*model.Blockchain, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, endpoint, provider_class, explorer_template, confirmation_blocks, is_active, max_level, min_level FROM blockchains WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, djerrors.Classify(err)
	}
	defer rows.Close()
	var out []*model.Blockchain
	for rows.Next() {
		bc, err := scanBlockchain(rows)
		if err != nil {
			return nil, djerrors.Classify(err)
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

func scanBlockchain(r scanner) (*model.Blockchain, error) {
	var bc model.Blockchain
	var id string
	var maxLevel, minLevel sql.NullInt64
	if err := r.Scan(&id, &bc.Name, &bc.Endpoint, &bc.ProviderClass, &bc.ExplorerTemplate,
		&bc.ConfirmationBlocks, &bc.IsActive, &maxLevel, &minLevel); err != nil {
		return nil, err
	}
	bc.ID, _ = uuid.Parse(id)
	if maxLevel.Valid {
		bc.MaxLevel = &maxLevel.Int64
	}
	if minLevel.Valid {
		bc.MinLevel = &minLevel.Int64
	}
	return &bc, nil
}

func (s *Store) SaveTransaction(ctx context.Context, tx *model.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	history, err := json.Marshal(tx.History)
	if err != nil {
		return djerrors.Validationf("sqlstore: marshal history: %s", err)
	}
	var contractCode any
	if len(tx.ContractCode) > 0 {
		contractCode = string(tx.ContractCode)
	}
	var args, argsResolved any
	if len(tx.Args) > 0 {
		args = string(tx.Args)
	}
	if len(tx.ArgsResolved) > 0 {
		argsResolved = string(tx.ArgsResolved)
	}
	var lastFail any
	if tx.LastFail != nil {
		lastFail = tx.LastFail.Unix()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, sender_ref, receiver_ref, created_at, updated_at, txhash, gas_price, gas,
			contract_address, contract_name, contract_source, contract_code, contract_ref,
			function, args, args_resolved, amount, level, last_fail, state, error, history
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sender_ref=excluded.sender_ref, receiver_ref=excluded.receiver_ref,
			updated_at=excluded.updated_at, txhash=excluded.txhash, gas_price=excluded.gas_price,
			gas=excluded.gas, contract_address=excluded.contract_address,
			contract_name=excluded.contract_name, contract_source=excluded.contract_source,
			contract_code=excluded.contract_code, contract_ref=excluded.contract_ref,
			function=excluded.function, args=excluded.args, args_resolved=excluded.args_resolved,
			amount=excluded.amount, level=excluded.level, last_fail=excluded.last_fail,
			state=excluded.state, error=excluded.error, history=excluded.history`,
		tx.ID.String(), nullUUID(tx.SenderRef), nullUUID(tx.ReceiverRef),
		tx.CreatedAt.Unix(), tx.UpdatedAt.Unix(), nullString(tx.TxHash),
		nullInt64(tx.GasPrice), nullInt64(tx.Gas), nullString(tx.ContractAddress),
		nullString(tx.ContractName), nullString(tx.ContractSource), contractCode,
		nullUUID(tx.ContractRef), nullString(tx.Function), args, argsResolved,
		nullInt64(tx.Amount), nullInt64(tx.Level), lastFail, string(tx.State), tx.Error, string(history))
	if err != nil {
		if isUniqueViolation(err) {
			log.Warnf("sqlstore: duplicate txhash %s", stringOrEmpty(tx.TxHash))
			return djerrors.Classify(store.ErrDuplicateTxHash{TxHash: stringOrEmpty(tx.TxHash)})
		}
		log.Errorf("sqlstore: save transaction %s: %v", tx.ID, err)
		return djerrors.Classify(err)
	}
	return nil
}

func stringOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	row := s.db.QueryRowContext(ctx, transactionSelect+` WHERE id = ?`, id.String())
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound{Kind: "transaction", ID: id}
	}
	return tx, err
}

const transactionSelect = `SELECT
	id, sender_ref, receiver_ref, created_at, updated_at, txhash, gas_price, gas,
	contract_address, contract_name, contract_source, contract_code, contract_ref,
	function, args, args_resolved, amount, level, last_fail, state, error, history
	FROM transactions`

func scanTransaction(r scanner) (*model.Transaction, error) {
	var tx model.Transaction
	var id string
	var senderRef, receiverRef, contractRef sql.NullString
	var txhash, contractAddress, contractName, contractSource, function sql.NullString
	var contractCode, args, argsResolved sql.NullString
	var gasPrice, gas, amount, level, lastFail sql.NullInt64
	var createdAt, updatedAt int64
	var state, history string
	if err := r.Scan(&id, &senderRef, &receiverRef, &createdAt, &updatedAt, &txhash,
		&gasPrice, &gas, &contractAddress, &contractName, &contractSource, &contractCode,
		&contractRef, &function, &args, &argsResolved, &amount, &level, &lastFail,
		&state, &tx.Error, &history); err != nil {
		return nil, err
	}
	tx.ID, _ = uuid.Parse(id)
	tx.CreatedAt = unixTime(createdAt)
	tx.UpdatedAt = unixTime(updatedAt)
	tx.State = model.State(state)
	if senderRef.Valid {
		u, _ := uuid.Parse(senderRef.String)
		tx.SenderRef = &u
	}
	if receiverRef.Valid {
		u, _ := uuid.Parse(receiverRef.String)
		tx.ReceiverRef = &u
	}
	if contractRef.Valid {
		u, _ := uuid.Parse(contractRef.String)
		tx.ContractRef = &u
	}
	if txhash.Valid {
		tx.TxHash = &txhash.String
	}
	if contractAddress.Valid {
		tx.ContractAddress = &contractAddress.String
	}
	if contractName.Valid {
		tx.ContractName = &contractName.String
	}
	if contractSource.Valid {
		tx.ContractSource = &contractSource.String
	}
	if function.Valid {
		tx.Function = &function.String
	}
	if contractCode.Valid {
		tx.ContractCode = []byte(contractCode.String)
	}
	if args.Valid {
		tx.Args = []byte(args.String)
	}
	if argsResolved.Valid {
		tx.ArgsResolved = []byte(argsResolved.String)
	}
	if gasPrice.Valid {
		tx.GasPrice = &gasPrice.Int64
	}
	if gas.Valid {
		tx.Gas = &gas.Int64
	}
	if amount.Valid {
		tx.Amount = &amount.Int64
	}
	if level.Valid {
		tx.Level = &level.Int64
	}
	if lastFail.Valid {
		t := unixTime(lastFail.Int64)
		tx.LastFail = &t
	}
	if history != "" {
		_ = json.Unmarshal([]byte(history), &tx.History)
	}
	return &tx, nil
}

func (s *Store) ListBySenderState(ctx context.Context, senderRef uuid.UUID, states ...model.State) ([]*model.Transaction, error) {
	query, args := withStates(transactionSelect+` WHERE sender_ref = ?`, []any{senderRef.String()}, states)
	return s.queryTransactions(ctx, query+` ORDER BY created_at ASC`, args...)
}

func (s *Store) ListByState(ctx context.Context, states ...model.State) ([]*model.Transaction, error) {
	query, args := withStates(transactionSelect+` WHERE 1=1`, nil, states)
	return s.queryTransactions(ctx, query+` ORDER BY created_at ASC`, args...)
}

func withStates(query string, args []any, states []model.State) (string, []any) {
	if len(states) == 0 {
		return query, args
	}
	query += ` AND state IN (`
	for i, st := range states {
		if i > 0 {
			query += `,`
		}
		query += `?`
		args = append(args, string(st))
	}
	query += `)`
	return query, args
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]*model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, djerrors.Classify(err)
	}
	defer rows.Close()
	var out []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, djerrors.Classify(err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) ListSenders(ctx context.Context) ([]uuid.UUID, error) {
	terminal := make([]any, 0, len(model.TerminalStateNames()))
	placeholders := ""
	for i, st := range model.TerminalStateNames() {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		terminal = append(terminal, st)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT sender_ref FROM transactions WHERE sender_ref IS NOT NULL AND state NOT IN (`+placeholders+`)`,
		terminal...)
	if err != nil {
		return nil, djerrors.Classify(err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, djerrors.Classify(err)
		}
		if u, err := uuid.Parse(s); err == nil {
			out = append(out, u)
		}
	}
	return out, rows.Err()
}

func (s *Store) FindTransactionByTxHash(ctx context.Context, txHash string) (*model.Transaction, error) {
	row := s.db.QueryRowContext(ctx, transactionSelect+` WHERE txhash = ?`, txHash)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound{Kind: "transaction txhash", Ref: txHash}
	}
	return tx, err
}

func (s *Store) ListContractAddresses(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT contract_address FROM transactions
		WHERE contract_address IS NOT NULL AND contract_address != ''
		AND contract_code IS NOT NULL AND contract_code != ''`)
	if err != nil {
		return nil, djerrors.Classify(err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, djerrors.Classify(err)
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

var _ store.Store = (*Store)(nil)
