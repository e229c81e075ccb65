package sandbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nao1215/credgw/pkg/idservice"
)

var (
	// ErrNotFound は対象のレコードが存在しないことを表す。
	ErrNotFound = errors.New("レコードが見つかりません")
	// ErrConflict は一意制約に違反したことを表す。
	ErrConflict = errors.New("レコードが既に存在します")
)

// Ecosystem はエコシステムのレコード。
type Ecosystem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URI         string `json:"uri"`
}

// Member はトラストレジストリのメンバー。
type Member struct {
	DidURI    string `json:"did"`
	SchemaURI string `json:"schemaUri"`
	Status    string `json:"status"`
}

// Wallet はウォレットのレコード。
type Wallet struct {
	ID          string `json:"walletId"`
	EcosystemID string `json:"ecosystemId"`
	Description string `json:"description"`
	PublicDID   string `json:"publicDid"`
	TokenID     string `json:"-"`
}

// Store はサンドボックスの永続化層。
type Store struct {
	db *sql.DB
}

// NewStore はdbを使うStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateEcosystem はエコシステムを保存する。名前が重複する場合はErrConflictを返す。
func (s *Store) CreateEcosystem(ctx context.Context, e Ecosystem) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO ecosystems (id, name, description, uri) VALUES (?, ?, ?, ?)",
		e.ID, e.Name, e.Description, e.URI,
	)
	if err != nil {
		return fmt.Errorf("エコシステムの保存に失敗: %w", mapConstraintError(err))
	}
	return nil
}

// GetEcosystem はIDでエコシステムを取得する。
func (s *Store) GetEcosystem(ctx context.Context, id string) (*Ecosystem, error) {
	var e Ecosystem
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, uri FROM ecosystems WHERE id = ?", id,
	).Scan(&e.ID, &e.Name, &e.Description, &e.URI)
	if err != nil {
		return nil, fmt.Errorf("エコシステムの取得に失敗: %w", mapNoRows(err))
	}
	return &e, nil
}

// CreateTemplate はテンプレートをエコシステム配下に保存する。
// 同じエコシステムに同名のテンプレートがある場合はErrConflictを返す。
func (s *Store) CreateTemplate(ctx context.Context, t idservice.TemplateData) error {
	fields, err := json.Marshal(t.Fields)
	if err != nil {
		return fmt.Errorf("フィールド定義のエンコードに失敗: %w", err)
	}
	ordering, err := json.Marshal(t.FieldOrdering)
	if err != nil {
		return fmt.Errorf("フィールド順のエンコードに失敗: %w", err)
	}
	var appleWallet sql.NullString
	if t.AppleWalletOptions != nil {
		b, err := json.Marshal(t.AppleWalletOptions)
		if err != nil {
			return fmt.Errorf("Apple Wallet設定のエンコードに失敗: %w", err)
		}
		appleWallet = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO templates (
			id, ecosystem_id, name, schema_uri, title, description, version,
			allow_additional_fields, fields, field_ordering, apple_wallet_options
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.EcosystemID, t.Name, t.SchemaURI, t.Title, t.Description, t.Version,
		t.AllowAdditionalFields, string(fields), string(ordering), appleWallet,
	)
	if err != nil {
		return fmt.Errorf("テンプレートの保存に失敗: %w", mapConstraintError(err))
	}
	return nil
}

const selectTemplate = `
	SELECT id, ecosystem_id, name, schema_uri, title, description, version,
		allow_additional_fields, fields, field_ordering, apple_wallet_options
	FROM templates`

// GetTemplate はエコシステム内のテンプレートをIDで取得する。
// 他のエコシステムのテンプレートはErrNotFoundになる。
func (s *Store) GetTemplate(ctx context.Context, ecosystemID, id string) (*idservice.TemplateData, error) {
	row := s.db.QueryRowContext(ctx, selectTemplate+" WHERE id = ? AND ecosystem_id = ?", id, ecosystemID)
	return scanTemplate(row)
}

// GetTemplateByID はエコシステムを問わずテンプレートをIDで取得する。
func (s *Store) GetTemplateByID(ctx context.Context, id string) (*idservice.TemplateData, error) {
	row := s.db.QueryRowContext(ctx, selectTemplate+" WHERE id = ?", id)
	return scanTemplate(row)
}

func scanTemplate(row *sql.Row) (*idservice.TemplateData, error) {
	var (
		t                idservice.TemplateData
		fields, ordering string
		appleWallet      sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.EcosystemID, &t.Name, &t.SchemaURI, &t.Title, &t.Description, &t.Version,
		&t.AllowAdditionalFields, &fields, &ordering, &appleWallet,
	)
	if err != nil {
		return nil, fmt.Errorf("テンプレートの取得に失敗: %w", mapNoRows(err))
	}

	if err := json.Unmarshal([]byte(fields), &t.Fields); err != nil {
		return nil, fmt.Errorf("フィールド定義のデコードに失敗: %w", err)
	}
	if err := json.Unmarshal([]byte(ordering), &t.FieldOrdering); err != nil {
		return nil, fmt.Errorf("フィールド順のデコードに失敗: %w", err)
	}
	if appleWallet.Valid {
		t.AppleWalletOptions = &idservice.AppleWalletOptions{}
		if err := json.Unmarshal([]byte(appleWallet.String), t.AppleWalletOptions); err != nil {
			return nil, fmt.Errorf("Apple Wallet設定のデコードに失敗: %w", err)
		}
	}
	return &t, nil
}

// AddMember はDIDをスキーマの発行者として登録する。登録済みならErrConflictを返す。
func (s *Store) AddMember(ctx context.Context, ecosystemID string, m Member) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO trust_registry_members (ecosystem_id, did_uri, schema_uri, status) VALUES (?, ?, ?, ?)",
		ecosystemID, m.DidURI, m.SchemaURI, m.Status,
	)
	if err != nil {
		return fmt.Errorf("メンバーの登録に失敗: %w", mapConstraintError(err))
	}
	return nil
}

// ListMembers はエコシステム内のメンバーを登録順に返す。
// schemaURIが空でなければそのスキーマのメンバーに絞り込む。
func (s *Store) ListMembers(ctx context.Context, ecosystemID, schemaURI string) ([]Member, error) {
	query := "SELECT did_uri, schema_uri, status FROM trust_registry_members WHERE ecosystem_id = ?"
	args := []any{ecosystemID}
	if schemaURI != "" {
		query += " AND schema_uri = ?"
		args = append(args, schemaURI)
	}
	query += " ORDER BY created_at, rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("メンバー一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	members := make([]Member, 0)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.DidURI, &m.SchemaURI, &m.Status); err != nil {
			return nil, fmt.Errorf("メンバーの読み取りに失敗: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メンバー一覧の走査に失敗: %w", err)
	}
	return members, nil
}

// CreateWallet はウォレットを保存する。
func (s *Store) CreateWallet(ctx context.Context, w Wallet) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO wallets (id, ecosystem_id, description, public_did, token_id) VALUES (?, ?, ?, ?, ?)",
		w.ID, w.EcosystemID, w.Description, w.PublicDID, w.TokenID,
	)
	if err != nil {
		return fmt.Errorf("ウォレットの保存に失敗: %w", mapConstraintError(err))
	}
	return nil
}

// GetWallet はIDでウォレットを取得する。
func (s *Store) GetWallet(ctx context.Context, id string) (*Wallet, error) {
	var w Wallet
	err := s.db.QueryRowContext(ctx,
		"SELECT id, ecosystem_id, description, public_did, token_id FROM wallets WHERE id = ?", id,
	).Scan(&w.ID, &w.EcosystemID, &w.Description, &w.PublicDID, &w.TokenID)
	if err != nil {
		return nil, fmt.Errorf("ウォレットの取得に失敗: %w", mapNoRows(err))
	}
	return &w, nil
}

// AddWalletItem はウォレットにドキュメントを保存する。
func (s *Store) AddWalletItem(ctx context.Context, walletID, itemID, data string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO wallet_items (id, wallet_id, data) VALUES (?, ?, ?)",
		itemID, walletID, data,
	)
	if err != nil {
		return fmt.Errorf("ウォレットアイテムの保存に失敗: %w", mapConstraintError(err))
	}
	return nil
}

// ListWalletItems はウォレットのドキュメントを保存順に返す。
func (s *Store) ListWalletItems(ctx context.Context, walletID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT data FROM wallet_items WHERE wallet_id = ? ORDER BY created_at, rowid", walletID,
	)
	if err != nil {
		return nil, fmt.Errorf("ウォレットアイテムの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]string, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("ウォレットアイテムの読み取りに失敗: %w", err)
		}
		items = append(items, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ウォレットアイテムの走査に失敗: %w", err)
	}
	return items, nil
}

// mapNoRows はsql.ErrNoRowsをErrNotFoundに変換する。
func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// mapConstraintError は一意制約違反をErrConflictに変換する。
func mapConstraintError(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ErrConflict
		}
	}
	return err
}
