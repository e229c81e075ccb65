package idservice

import "encoding/json"

// CreateEcosystemRequest はエコシステム作成リクエスト。
type CreateEcosystemRequest struct {
	// Name はエコシステムの識別名。空ならリモート側で採番される。
	Name string `json:"name,omitempty"`
	// Description はエコシステムの説明。
	Description string `json:"description"`
}

// CreateEcosystemResponse はエコシステム作成レスポンス。
type CreateEcosystemResponse struct {
	// Ecosystem はリモートが返したエコシステムレコード。加工せずに保持する。
	Ecosystem json.RawMessage `json:"ecosystem"`
	// AuthToken はエコシステムに紐づくプロバイダ用のBearerトークン。
	AuthToken string `json:"authToken"`
}

// GetTemplateRequest はテンプレート取得リクエスト。
type GetTemplateRequest struct {
	ID string `json:"id"`
}

// TemplateData はクレデンシャルテンプレートのレコード。
type TemplateData struct {
	ID                    string                   `json:"id"`
	Name                  string                   `json:"name"`
	Title                 string                   `json:"title,omitempty"`
	Description           string                   `json:"description,omitempty"`
	Version               int                      `json:"version,omitempty"`
	SchemaURI             string                   `json:"schemaUri"`
	EcosystemID           string                   `json:"ecosystemId,omitempty"`
	AllowAdditionalFields bool                     `json:"allowAdditionalFields"`
	Fields                map[string]TemplateField `json:"fields,omitempty"`
	FieldOrdering         map[string]FieldOrdering `json:"fieldOrdering,omitempty"`
	AppleWalletOptions    *AppleWalletOptions      `json:"appleWalletOptions,omitempty"`
}

// GetTemplateResponse はテンプレート取得レスポンス。
type GetTemplateResponse struct {
	Template TemplateData `json:"template"`
}

// FieldType はテンプレートフィールドの型。
type FieldType string

const (
	// FieldTypeString は文字列フィールド。
	FieldTypeString FieldType = "STRING"
	// FieldTypeNumber は数値フィールド。
	FieldTypeNumber FieldType = "NUMBER"
	// FieldTypeBool は真偽値フィールド。
	FieldTypeBool FieldType = "BOOL"
	// FieldTypeDateTime は日時フィールド。
	FieldTypeDateTime FieldType = "DATETIME"
	// FieldTypeURI はURIフィールド。
	FieldTypeURI FieldType = "URI"
)

// TemplateField はテンプレートの1フィールドの定義。
type TemplateField struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Optional    bool      `json:"optional"`
	Type        FieldType `json:"type"`
}

// FieldOrdering はウォレット表示時のフィールド順とセクション。
type FieldOrdering struct {
	Order   int    `json:"order"`
	Section string `json:"section"`
}

// AppleWalletOptions はApple Walletでのカード表示設定。
type AppleWalletOptions struct {
	PrimaryField    string   `json:"primaryField"`
	SecondaryFields []string `json:"secondaryFields"`
	AuxiliaryFields []string `json:"auxiliaryFields"`
}

// CreateTemplateRequest はテンプレート作成リクエスト。
type CreateTemplateRequest struct {
	Name                  string                   `json:"name"`
	Title                 string                   `json:"title"`
	Description           string                   `json:"description"`
	AllowAdditionalFields bool                     `json:"allowAdditionalFields"`
	Fields                map[string]TemplateField `json:"fields"`
	FieldOrdering         map[string]FieldOrdering `json:"fieldOrdering"`
	AppleWalletOptions    *AppleWalletOptions      `json:"appleWalletOptions,omitempty"`
}

// CreateTemplateResponse はテンプレート作成レスポンス。
type CreateTemplateResponse struct {
	Data TemplateData `json:"data"`
}

// RegisterMemberRequest はトラストレジストリへのメンバー登録リクエスト。
type RegisterMemberRequest struct {
	DidURI    string `json:"didUri"`
	SchemaURI string `json:"schemaUri"`
}

// ListAuthorizedMembersRequest は認可済みメンバー一覧の取得リクエスト。
type ListAuthorizedMembersRequest struct {
	SchemaURI string `json:"schemaUri"`
}

// SearchRequest はウォレット検索リクエスト。Queryが空なら全件を対象とする。
type SearchRequest struct {
	Query             string `json:"query,omitempty"`
	ContinuationToken string `json:"continuationToken,omitempty"`
}

// CreateWalletRequest はウォレット作成リクエスト。
type CreateWalletRequest struct {
	EcosystemID string `json:"ecosystemId"`
	Description string `json:"description"`
}

// IssueFromTemplateRequest はテンプレートからのクレデンシャル発行リクエスト。
type IssueFromTemplateRequest struct {
	TemplateID string `json:"templateId"`
	// ValuesJSON はフィールド値をJSONエンコードした文字列。
	ValuesJSON        string `json:"valuesJson"`
	IncludeGovernance bool   `json:"includeGovernance"`
}
