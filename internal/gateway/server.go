package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nao1215/credgw/internal/config"
	"github.com/nao1215/credgw/pkg/httpclient"
	"github.com/nao1215/credgw/pkg/idservice"
	"github.com/nao1215/credgw/pkg/middleware"
)

const (
	// defaultEcosystemDescription はnameが指定されなかった場合のエコシステムの説明。
	defaultEcosystemDescription = "My ecosystem"
	// defaultWalletDescription はdescriptionが指定されなかった場合のウォレットの説明。
	defaultWalletDescription = "MyWallet"
	// maxFormMemory はマルチパートフォームをメモリに保持する上限。
	maxFormMemory = 32 << 20
)

// identityService はゲートウェイが呼び出すリモート操作。
// *idservice.Service が実装する。
type identityService interface {
	CreateEcosystem(ctx context.Context, req idservice.CreateEcosystemRequest) (*idservice.CreateEcosystemResponse, error)
	GetTemplate(ctx context.Context, req idservice.GetTemplateRequest) (*idservice.GetTemplateResponse, error)
	CreateTemplate(ctx context.Context, req idservice.CreateTemplateRequest) (*idservice.CreateTemplateResponse, error)
	RegisterMember(ctx context.Context, req idservice.RegisterMemberRequest) error
	ListAuthorizedMembers(ctx context.Context, req idservice.ListAuthorizedMembersRequest) (json.RawMessage, error)
	SearchWallet(ctx context.Context, req idservice.SearchRequest) (json.RawMessage, error)
	CreateWallet(ctx context.Context, req idservice.CreateWalletRequest) (json.RawMessage, error)
	IssueFromTemplate(ctx context.Context, req idservice.IssueFromTemplateRequest) (json.RawMessage, error)
}

// clientFactory はトークンに束縛されたクライアントを生成する。
// 空のトークンは認証なしのクライアントを意味する。
type clientFactory func(authToken string) identityService

// Server はゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// newClient はリクエストごとにクライアントを生成する。
	newClient clientFactory
	// logger は構造化ロガー。
	logger zerolog.Logger
	// metrics はリクエストの指標。
	metrics *middleware.Metrics
}

// NewServer は新しいゲートウェイサーバーを生成する。
func NewServer(cfg config.GatewayConfig, logger zerolog.Logger) *Server {
	baseURL := cfg.IDServiceURL
	factory := func(authToken string) identityService {
		return idservice.New(baseURL, idservice.WithAuthToken(authToken))
	}

	s := newServer(cfg.Port, factory, logger)
	s.router.Use(middleware.CORS(cfg.AllowedOrigins))
	s.setupRoutes()
	return s
}

// newServer はルート未登録のサーバーを生成する。CORS以外のミドルウェアを適用する。
func newServer(port string, factory clientFactory, logger zerolog.Logger) *Server {
	metrics := middleware.NewMetrics("gateway")

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(metrics.Middleware())

	return &Server{
		router:    router,
		port:      port,
		newClient: factory,
		logger:    logger,
		metrics:   metrics,
	}
}

// Handler はルーターをhttp.Handlerとして返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.POST("/ecosystem", s.handleCreateEcosystem())

	s.router.GET("/template", s.handleGetTemplate())
	s.router.POST("/template", s.handleCreateTemplate())

	s.router.POST("/issuer", s.handleRegisterIssuer())
	s.router.GET("/issuers", s.handleListIssuers())

	s.router.GET("/wallet", s.handleSearchWallet())
	s.router.POST("/wallet", s.handleCreateWallet())

	s.router.POST("/credential", s.handleIssueCredential())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// API定義はリリースモード以外でのみ公開する
	if gin.Mode() != gin.ReleaseMode {
		s.router.GET("/openapi.yaml", s.handleOpenAPIYAML())
		s.router.GET("/openapi.json", s.handleOpenAPIJSON())
	}
}

// createEcosystemParams は POST /ecosystem のパラメータ。
type createEcosystemParams struct {
	// Name は省略可能。省略と空文字列を区別するためポインタで受ける。
	Name *string `form:"name" json:"name"`
}

// authTokenParams はトークンのみを受け取るルートのパラメータ。
type authTokenParams struct {
	AuthToken string `form:"authToken" json:"authToken" binding:"required"`
}

// getTemplateParams は GET /template のパラメータ。
type getTemplateParams struct {
	AuthToken  string `form:"authToken" json:"authToken" binding:"required"`
	TemplateID string `form:"templateId" json:"templateId" binding:"required"`
}

// schemaParams は /issuer と /issuers のパラメータ。
type schemaParams struct {
	AuthToken string `form:"authToken" json:"authToken" binding:"required"`
	SchemaURI string `form:"schemaUri" json:"schemaUri" binding:"required"`
}

// walletTokenParams は GET /wallet のパラメータ。
type walletTokenParams struct {
	WalletAuthToken string `form:"walletAuthToken" json:"walletAuthToken" binding:"required"`
}

// createWalletParams は POST /wallet のパラメータ。
type createWalletParams struct {
	EcosystemID string  `form:"ecosystemId" json:"ecosystemId" binding:"required"`
	Description *string `form:"description" json:"description"`
}

// issueCredentialParams は POST /credential のパラメータ。
type issueCredentialParams struct {
	WalletAuthToken string `form:"walletAuthToken" json:"walletAuthToken" binding:"required"`
	TemplateID      string `form:"templateId" json:"templateId" binding:"required"`
	// Values はフィールド値をJSONエンコードした文字列。中身は検証せずに転送する。
	Values string `form:"values" json:"values" binding:"required"`
}

// templateResponse はテンプレート系ルートのレスポンス。
type templateResponse struct {
	TemplateID string `json:"templateId"`
	SchemaURI  string `json:"schemaUri"`
}

// handleCreateEcosystem はエコシステムを作成するハンドラを返す。
//
// @Summary エコシステムを作成する
// @ID CreateEcosystem
// @Produce json
// @Param name query string false "エコシステムの説明（省略時は My ecosystem）"
// @Success 200 {object} object "ecosystem と authToken"
// @Failure 502 {object} object
// @Router /ecosystem [post]
func (s *Server) handleCreateEcosystem() gin.HandlerFunc {
	return func(c *gin.Context) {
		var params createEcosystemParams
		if !s.bind(c, &params) {
			return
		}

		description := defaultEcosystemDescription
		if params.Name != nil {
			description = *params.Name
		}

		resp, err := s.newClient("").CreateEcosystem(c.Request.Context(), idservice.CreateEcosystemRequest{
			Description: description,
		})
		if err != nil {
			s.respondRemoteError(c, "CreateEcosystem", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ecosystem": resp.Ecosystem,
			"authToken": resp.AuthToken,
		})
	}
}

// handleGetTemplate はテンプレートを取得するハンドラを返す。
//
// @Summary テンプレートを取得する
// @ID GetTemplate
// @Produce json
// @Param authToken query string true "プロバイダ用トークン"
// @Param templateId query string true "テンプレートID"
// @Success 200 {object} templateResponse
// @Failure 400 {object} object
// @Router /template [get]
func (s *Server) handleGetTemplate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var params getTemplateParams
		if !s.bind(c, &params) {
			return
		}

		resp, err := s.newClient(params.AuthToken).GetTemplate(c.Request.Context(), idservice.GetTemplateRequest{
			ID: params.TemplateID,
		})
		if err != nil {
			s.respondRemoteError(c, "GetTemplate", err)
			return
		}

		c.JSON(http.StatusOK, templateResponse{
			TemplateID: resp.Template.ID,
			SchemaURI:  resp.Template.SchemaURI,
		})
	}
}

// handleCreateTemplate はサンプルテンプレートを作成するハンドラを返す。
//
// @Summary サンプルテンプレートを作成する
// @ID CreateTemplate
// @Produce json
// @Param authToken query string true "プロバイダ用トークン"
// @Success 200 {object} templateResponse
// @Failure 400 {object} object
// @Router /template [post]
func (s *Server) handleCreateTemplate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var params authTokenParams
		if !s.bind(c, &params) {
			return
		}

		resp, err := s.newClient(params.AuthToken).CreateTemplate(c.Request.Context(), exampleTemplate())
		if err != nil {
			s.respondRemoteError(c, "CreateTemplate", err)
			return
		}

		c.JSON(http.StatusOK, templateResponse{
			TemplateID: resp.Data.ID,
			SchemaURI:  resp.Data.SchemaURI,
		})
	}
}

// handleRegisterIssuer は新しいDIDを生成し、スキーマの発行者として登録するハンドラを返す。
//
// @Summary 発行者を登録する
// @ID RegisterIssuer
// @Produce json
// @Param authToken query string true "プロバイダ用トークン"
// @Param schemaUri query string true "スキーマURI"
// @Success 200 {string} string "登録したDID"
// @Failure 400 {object} object
// @Router /issuer [post]
func (s *Server) handleRegisterIssuer() gin.HandlerFunc {
	return func(c *gin.Context) {
		var params schemaParams
		if !s.bind(c, &params) {
			return
		}

		didURI := newDIDURI()
		err := s.newClient(params.AuthToken).RegisterMember(c.Request.Context(), idservice.RegisterMemberRequest{
			DidURI:    didURI,
			SchemaURI: params.SchemaURI,
		})
		if err != nil {
			s.respondRemoteError(c, "RegisterMember", err)
			return
		}

		c.JSON(http.StatusOK, didURI)
	}
}

// handleListIssuers はスキーマの認可済みメンバー一覧を返すハンドラを返す。
//
// @Summary 認可済みの発行者一覧を取得する
// @ID ListIssuers
// @Produce json
// @Param authToken query string true "プロバイダ用トークン"
// @Param schemaUri query string true "スキーマURI"
// @Success 200 {object} object
// @Failure 400 {object} object
// @Router /issuers [get]
func (s *Server) handleListIssuers() gin.HandlerFunc {
	return func(c *gin.Context) {
		var params schemaParams
		if !s.bind(c, &params) {
			return
		}

		members, err := s.newClient(params.AuthToken).ListAuthorizedMembers(c.Request.Context(), idservice.ListAuthorizedMembersRequest{
			SchemaURI: params.SchemaURI,
		})
		if err != nil {
			s.respondRemoteError(c, "ListAuthorizedMembers", err)
			return
		}

		respondRaw(c, members)
	}
}

// handleSearchWallet はウォレットの中身を検索するハンドラを返す。
//
// @Summary ウォレットを検索する
// @ID SearchWallet
// @Produce json
// @Param walletAuthToken query string true "ウォレット用トークン"
// @Success 200 {object} object
// @Failure 400 {object} object
// @Router /wallet [get]
func (s *Server) handleSearchWallet() gin.HandlerFunc {
	return func(c *gin.Context) {
		var params walletTokenParams
		if !s.bind(c, &params) {
			return
		}

		items, err := s.newClient(params.WalletAuthToken).SearchWallet(c.Request.Context(), idservice.SearchRequest{})
		if err != nil {
			s.respondRemoteError(c, "SearchWallet", err)
			return
		}

		respondRaw(c, items)
	}
}

// handleCreateWallet はウォレットを作成するハンドラを返す。
// 呼び出し元の認証情報は使わず、常に認証なしのクライアントで呼び出す。
//
// @Summary ウォレットを作成する
// @ID CreateWallet
// @Produce json
// @Param ecosystemId query string true "エコシステムID"
// @Param description query string false "ウォレットの説明（省略時は MyWallet）"
// @Success 200 {object} object
// @Failure 400 {object} object
// @Router /wallet [post]
func (s *Server) handleCreateWallet() gin.HandlerFunc {
	return func(c *gin.Context) {
		var params createWalletParams
		if !s.bind(c, &params) {
			return
		}

		description := defaultWalletDescription
		if params.Description != nil {
			description = *params.Description
		}

		wallet, err := s.newClient("").CreateWallet(c.Request.Context(), idservice.CreateWalletRequest{
			EcosystemID: params.EcosystemID,
			Description: description,
		})
		if err != nil {
			s.respondRemoteError(c, "CreateWallet", err)
			return
		}

		respondRaw(c, wallet)
	}
}

// handleIssueCredential はテンプレートからクレデンシャルを発行するハンドラを返す。
//
// @Summary テンプレートからクレデンシャルを発行する
// @ID IssueCredential
// @Produce json
// @Param walletAuthToken query string true "ウォレット用トークン"
// @Param templateId query string true "テンプレートID"
// @Param values query string true "フィールド値のJSON"
// @Success 200 {object} object
// @Failure 400 {object} object
// @Router /credential [post]
func (s *Server) handleIssueCredential() gin.HandlerFunc {
	return func(c *gin.Context) {
		var params issueCredentialParams
		if !s.bind(c, &params) {
			return
		}

		credential, err := s.newClient(params.WalletAuthToken).IssueFromTemplate(c.Request.Context(), idservice.IssueFromTemplateRequest{
			TemplateID:        params.TemplateID,
			ValuesJSON:        params.Values,
			IncludeGovernance: true,
		})
		if err != nil {
			s.respondRemoteError(c, "IssueFromTemplate", err)
			return
		}

		respondRaw(c, credential)
	}
}

// bind はボディとクエリ文字列の値をparamsに重ねてから検証する。
// 同じパラメータが両方にある場合はクエリ文字列の値を使う。
// 失敗した場合は400を返してfalseを返す。
func (s *Server) bind(c *gin.Context, params any) bool {
	err := decodeParams(c, params)
	if err == nil {
		err = binding.Validator.ValidateStruct(params)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "リクエストパラメータが不正です",
			"detail": err.Error(),
		})
		return false
	}
	return true
}

// decodeParams はボディ（JSONまたはフォーム）、クエリ文字列の順にparamsへ値を設定する。
// 検証は行わない。
func decodeParams(c *gin.Context, params any) error {
	req := c.Request
	if req.Body != nil && req.Body != http.NoBody {
		switch c.ContentType() {
		case binding.MIMEJSON:
			if err := json.NewDecoder(req.Body).Decode(params); err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("JSONボディの解析に失敗: %w", err)
			}
		case binding.MIMEPOSTForm, binding.MIMEMultipartPOSTForm:
			if err := req.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
				return fmt.Errorf("フォームボディの解析に失敗: %w", err)
			}
			if err := binding.MapFormWithTag(params, req.PostForm, "form"); err != nil {
				return fmt.Errorf("フォームボディの解析に失敗: %w", err)
			}
		}
	}

	if err := binding.MapFormWithTag(params, req.URL.Query(), "form"); err != nil {
		return fmt.Errorf("クエリ文字列の解析に失敗: %w", err)
	}
	return nil
}

// respondRemoteError はリモート呼び出しの失敗をレスポンスに変換する。
// リモートがHTTPエラーを返した場合はステータスとボディをそのまま転送し、
// 通信自体に失敗した場合は502を返す。
func (s *Server) respondRemoteError(c *gin.Context, operation string, err error) {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		s.logger.Warn().
			Err(err).
			Str("operation", operation).
			Int("status", statusErr.StatusCode).
			Msg("リモートサービスがエラーを返しました")

		contentType := statusErr.ContentType
		if contentType == "" {
			contentType = "application/json; charset=utf-8"
		}
		c.Data(statusErr.StatusCode, contentType, statusErr.Body)
		return
	}

	s.logger.Error().
		Err(err).
		Str("operation", operation).
		Msg("リモートサービスとの通信に失敗しました")
	c.JSON(http.StatusBadGateway, gin.H{"error": "リモートサービスとの通信に失敗しました"})
}

// respondRaw はリモートのJSONレスポンスを加工せずに200で返す。
func respondRaw(c *gin.Context, body json.RawMessage) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// newDIDURI は発行者用の新しいDIDを生成する。
func newDIDURI() string {
	return "did:" + uuid.NewString()
}
