package idservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nao1215/credgw/pkg/httpclient"
)

// Service はアイデンティティサービスへのクライアント。
// 1つのServiceは1つの認証トークンに束縛される。
type Service struct {
	// client はリモート呼び出しに使うJSONクライアント。
	client *httpclient.Client
}

// options はServiceの生成オプション。
type options struct {
	authToken  string
	httpClient *http.Client
}

// Option はServiceの生成オプションを設定する関数。
type Option func(*options)

// WithAuthToken はすべての呼び出しに付与するBearerトークンを設定する。
// 空文字列を渡した場合は認証なしのクライアントになる。
func WithAuthToken(token string) Option {
	return func(o *options) {
		o.authToken = token
	}
}

// WithHTTPClient は内部のHTTPクライアントを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// New はbaseURLのアイデンティティサービスに接続するServiceを生成する。
func New(baseURL string, opts ...Option) *Service {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return &Service{
		client: httpclient.New(baseURL,
			httpclient.WithBearerToken(o.authToken),
			httpclient.WithHTTPClient(o.httpClient),
		),
	}
}

// CreateEcosystem はエコシステムを作成し、プロバイダ用トークンとともに返す。
func (s *Service) CreateEcosystem(ctx context.Context, req CreateEcosystemRequest) (*CreateEcosystemResponse, error) {
	var resp CreateEcosystemResponse
	if err := s.client.PostJSON(ctx, "/v1/provider/ecosystems", req, &resp); err != nil {
		return nil, fmt.Errorf("エコシステムの作成に失敗: %w", err)
	}
	return &resp, nil
}

// GetTemplate はIDでテンプレートを取得する。
func (s *Service) GetTemplate(ctx context.Context, req GetTemplateRequest) (*GetTemplateResponse, error) {
	var resp GetTemplateResponse
	if err := s.client.GetJSON(ctx, "/v1/templates/"+url.PathEscape(req.ID), &resp); err != nil {
		return nil, fmt.Errorf("テンプレートの取得に失敗: %w", err)
	}
	return &resp, nil
}

// CreateTemplate はクレデンシャルテンプレートを作成する。
func (s *Service) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (*CreateTemplateResponse, error) {
	var resp CreateTemplateResponse
	if err := s.client.PostJSON(ctx, "/v1/templates", req, &resp); err != nil {
		return nil, fmt.Errorf("テンプレートの作成に失敗: %w", err)
	}
	return &resp, nil
}

// RegisterMember はDIDをスキーマの発行者としてトラストレジストリに登録する。
func (s *Service) RegisterMember(ctx context.Context, req RegisterMemberRequest) error {
	if err := s.client.PostJSON(ctx, "/v1/trust-registry/members", req, nil); err != nil {
		return fmt.Errorf("トラストレジストリへの登録に失敗: %w", err)
	}
	return nil
}

// ListAuthorizedMembers はスキーマに対して認可されたメンバー一覧を返す。
// レスポンスの形はリモートが決めるため、加工せずに返す。
func (s *Service) ListAuthorizedMembers(ctx context.Context, req ListAuthorizedMembersRequest) (json.RawMessage, error) {
	path := "/v1/trust-registry/members?" + url.Values{"schemaUri": {req.SchemaURI}}.Encode()

	var resp json.RawMessage
	if err := s.client.GetJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("認可済みメンバー一覧の取得に失敗: %w", err)
	}
	return resp, nil
}

// SearchWallet はトークンのウォレットを検索する。
func (s *Service) SearchWallet(ctx context.Context, req SearchRequest) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := s.client.PostJSON(ctx, "/v1/wallet/search", req, &resp); err != nil {
		return nil, fmt.Errorf("ウォレットの検索に失敗: %w", err)
	}
	return resp, nil
}

// CreateWallet はエコシステム配下にウォレットを作成する。
func (s *Service) CreateWallet(ctx context.Context, req CreateWalletRequest) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := s.client.PostJSON(ctx, "/v1/wallets", req, &resp); err != nil {
		return nil, fmt.Errorf("ウォレットの作成に失敗: %w", err)
	}
	return resp, nil
}

// IssueFromTemplate はテンプレートからクレデンシャルを発行する。
func (s *Service) IssueFromTemplate(ctx context.Context, req IssueFromTemplateRequest) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := s.client.PostJSON(ctx, "/v1/credentials/issue-from-template", req, &resp); err != nil {
		return nil, fmt.Errorf("クレデンシャルの発行に失敗: %w", err)
	}
	return resp, nil
}
