package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nao1215/credgw/internal/config"
	"github.com/nao1215/credgw/pkg/idservice"
	"github.com/nao1215/credgw/pkg/middleware"
)

// memberStatusAuthorized は登録済みメンバーの状態。
const memberStatusAuthorized = "AUTHORIZED"

// Server はサンドボックスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。
	db *sql.DB
	// store は永続化層。
	store *Store
	// tokenSecret はトークン署名用の秘密鍵。
	tokenSecret string
	// publicURL はスキーマURIの組み立てに使う公開URL。
	publicURL string
	// logger は構造化ロガー。
	logger zerolog.Logger
	// now は現在時刻を返す。
	now func() time.Time
}

// NewServer は新しいサンドボックスサーバーを生成する。
// SQLiteデータベースを開き、マイグレーションを適用する。
func NewServer(ctx context.Context, cfg config.SandboxConfig, logger zerolog.Logger) (*Server, error) {
	db, err := openDB(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))

	s := &Server{
		router:      router,
		port:        cfg.Port,
		db:          db,
		store:       NewStore(db),
		tokenSecret: cfg.TokenSecret,
		publicURL:   strings.TrimSuffix(cfg.PublicURL, "/"),
		logger:      logger,
		now:         time.Now,
	}
	s.setupRoutes()

	return s, nil
}

// Handler はルーターをhttp.Handlerとして返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
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
	v1 := s.router.Group("/v1")
	{
		// 認証不要
		v1.POST("/provider/ecosystems", s.handleCreateEcosystem())
		v1.POST("/wallets", s.handleCreateWallet())

		provider := v1.Group("", middleware.TokenAuth(s.tokenSecret, middleware.TokenKindProvider))
		provider.GET("/templates/:id", s.handleGetTemplate())
		provider.POST("/templates", s.handleCreateTemplate())
		provider.POST("/trust-registry/members", s.handleRegisterMember())
		provider.GET("/trust-registry/members", s.handleListMembers())

		wallet := v1.Group("", middleware.TokenAuth(s.tokenSecret, middleware.TokenKindWallet))
		wallet.POST("/wallet/search", s.handleSearchWallet())
		wallet.POST("/credentials/issue-from-template", s.handleIssueFromTemplate())
	}

	// スキーマURIの参照先
	s.router.GET("/schemas/:id", s.handleGetSchema())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "sandbox"})
	})
}

// handleCreateEcosystem はエコシステムを作成し、プロバイダ用トークンを発行するハンドラを返す。
func (s *Server) handleCreateEcosystem() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req idservice.CreateEcosystemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの形式が不正です"})
			return
		}

		id := uuid.NewString()
		name := req.Name
		if name == "" {
			name = "ecosystem-" + id[:8]
		}
		eco := Ecosystem{
			ID:          id,
			Name:        name,
			Description: req.Description,
			URI:         "urn:credgw:ecosystems:" + name,
		}

		if err := s.store.CreateEcosystem(c.Request.Context(), eco); err != nil {
			if errors.Is(err, ErrConflict) {
				c.JSON(http.StatusConflict, gin.H{"error": "同名のエコシステムが既に存在します"})
				return
			}
			s.internalError(c, "エコシステムの作成に失敗しました", err)
			return
		}

		token, err := middleware.GenerateToken(s.tokenSecret, middleware.TokenParams{
			ID:          uuid.NewString(),
			Kind:        middleware.TokenKindProvider,
			EcosystemID: eco.ID,
		})
		if err != nil {
			s.internalError(c, "トークンの生成に失敗しました", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ecosystem": eco,
			"authToken": token,
		})
	}
}

// handleGetTemplate はテンプレートを取得するハンドラを返す。
func (s *Server) handleGetTemplate() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)

		tpl, err := s.store.GetTemplate(c.Request.Context(), claims.EcosystemID, c.Param("id"))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "テンプレートが見つかりません"})
				return
			}
			s.internalError(c, "テンプレートの取得に失敗しました", err)
			return
		}

		c.JSON(http.StatusOK, idservice.GetTemplateResponse{Template: *tpl})
	}
}

// handleCreateTemplate はテンプレートを作成するハンドラを返す。
func (s *Server) handleCreateTemplate() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)

		var req idservice.CreateTemplateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの形式が不正です"})
			return
		}
		if msg := validateTemplateRequest(&req); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		id := uuid.NewString()
		tpl := idservice.TemplateData{
			ID:                    id,
			Name:                  req.Name,
			Title:                 req.Title,
			Description:           req.Description,
			Version:               1,
			SchemaURI:             s.publicURL + "/schemas/" + id,
			EcosystemID:           claims.EcosystemID,
			AllowAdditionalFields: req.AllowAdditionalFields,
			Fields:                req.Fields,
			FieldOrdering:         req.FieldOrdering,
			AppleWalletOptions:    req.AppleWalletOptions,
		}

		if err := s.store.CreateTemplate(c.Request.Context(), tpl); err != nil {
			if errors.Is(err, ErrConflict) {
				c.JSON(http.StatusConflict, gin.H{"error": "同名のテンプレートが既に存在します"})
				return
			}
			s.internalError(c, "テンプレートの作成に失敗しました", err)
			return
		}

		c.JSON(http.StatusOK, idservice.CreateTemplateResponse{Data: tpl})
	}
}

// validateTemplateRequest はテンプレート定義を検証し、不正ならエラーメッセージを返す。
func validateTemplateRequest(req *idservice.CreateTemplateRequest) string {
	if req.Name == "" {
		return "テンプレート名は必須です"
	}
	if len(req.Fields) == 0 {
		return "フィールドを1つ以上定義してください"
	}
	for name, field := range req.Fields {
		if !validFieldType(field.Type) {
			return fmt.Sprintf("フィールド %q の型 %q は使用できません", name, field.Type)
		}
	}
	for name := range req.FieldOrdering {
		if _, ok := req.Fields[name]; !ok {
			return fmt.Sprintf("フィールド順に未定義のフィールド %q があります", name)
		}
	}
	return ""
}

// handleRegisterMember はトラストレジストリにメンバーを登録するハンドラを返す。
func (s *Server) handleRegisterMember() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)

		var req idservice.RegisterMemberRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.DidURI == "" || req.SchemaURI == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "didUriとschemaUriは必須です"})
			return
		}

		member := Member{DidURI: req.DidURI, SchemaURI: req.SchemaURI, Status: memberStatusAuthorized}
		if err := s.store.AddMember(c.Request.Context(), claims.EcosystemID, member); err != nil {
			if errors.Is(err, ErrConflict) {
				c.JSON(http.StatusConflict, gin.H{"error": "既に登録されています"})
				return
			}
			s.internalError(c, "メンバーの登録に失敗しました", err)
			return
		}

		c.JSON(http.StatusCreated, member)
	}
}

// handleListMembers は認可済みメンバー一覧を返すハンドラを返す。
func (s *Server) handleListMembers() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)

		members, err := s.store.ListMembers(c.Request.Context(), claims.EcosystemID, c.Query("schemaUri"))
		if err != nil {
			s.internalError(c, "メンバー一覧の取得に失敗しました", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"authorizedMembers": members})
	}
}

// handleCreateWallet はウォレットを作成し、ウォレット用トークンを発行するハンドラを返す。
func (s *Server) handleCreateWallet() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req idservice.CreateWalletRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.EcosystemID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ecosystemIdは必須です"})
			return
		}

		ctx := c.Request.Context()
		if _, err := s.store.GetEcosystem(ctx, req.EcosystemID); err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "エコシステムが見つかりません"})
				return
			}
			s.internalError(c, "エコシステムの取得に失敗しました", err)
			return
		}

		wallet := Wallet{
			ID:          uuid.NewString(),
			EcosystemID: req.EcosystemID,
			Description: req.Description,
			PublicDID:   "did:" + uuid.NewString(),
			TokenID:     uuid.NewString(),
		}

		token, err := middleware.GenerateToken(s.tokenSecret, middleware.TokenParams{
			ID:          wallet.TokenID,
			Kind:        middleware.TokenKindWallet,
			EcosystemID: wallet.EcosystemID,
			WalletID:    wallet.ID,
		})
		if err != nil {
			s.internalError(c, "トークンの生成に失敗しました", err)
			return
		}

		if err := s.store.CreateWallet(ctx, wallet); err != nil {
			s.internalError(c, "ウォレットの作成に失敗しました", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"authToken": token,
			"tokenId":   wallet.TokenID,
			"wallet":    wallet,
		})
	}
}

// handleSearchWallet はウォレットの中身を返すハンドラを返す。
// クエリによる絞り込みとページングには対応しない。
func (s *Server) handleSearchWallet() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)

		var req idservice.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの形式が不正です"})
			return
		}
		if req.Query != "" || req.ContinuationToken != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "クエリとページングには対応していません"})
			return
		}

		items, err := s.store.ListWalletItems(c.Request.Context(), claims.WalletID)
		if err != nil {
			s.internalError(c, "ウォレットの検索に失敗しました", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"items":             items,
			"hasMore":           false,
			"continuationToken": "",
		})
	}
}

// handleIssueFromTemplate はテンプレートからクレデンシャルを発行し、
// トークンのウォレットに保存するハンドラを返す。
func (s *Server) handleIssueFromTemplate() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		ctx := c.Request.Context()

		var req idservice.IssueFromTemplateRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.TemplateID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "templateIdは必須です"})
			return
		}

		tpl, err := s.store.GetTemplate(ctx, claims.EcosystemID, req.TemplateID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "テンプレートが見つかりません"})
				return
			}
			s.internalError(c, "テンプレートの取得に失敗しました", err)
			return
		}

		values, err := validateValues(tpl, req.ValuesJSON)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		wallet, err := s.store.GetWallet(ctx, claims.WalletID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ウォレットが見つかりません"})
				return
			}
			s.internalError(c, "ウォレットの取得に失敗しました", err)
			return
		}

		eco, err := s.store.GetEcosystem(ctx, claims.EcosystemID)
		if err != nil {
			s.internalError(c, "エコシステムの取得に失敗しました", err)
			return
		}

		credentialID := uuid.NewString()
		document, err := buildDocument(issueParams{
			ID:                credentialID,
			Template:          tpl,
			Issuer:            wallet.PublicDID,
			Values:            values,
			Ecosystem:         eco,
			IncludeGovernance: req.IncludeGovernance,
			IssuedAt:          s.now(),
		})
		if err != nil {
			s.internalError(c, "クレデンシャルの生成に失敗しました", err)
			return
		}

		if err := s.store.AddWalletItem(ctx, wallet.ID, credentialID, document); err != nil {
			s.internalError(c, "クレデンシャルの保存に失敗しました", err)
			return
		}

		s.logger.Info().
			Str("credential_id", credentialID).
			Str("template_id", tpl.ID).
			Str("wallet_id", wallet.ID).
			Msg("クレデンシャルを発行しました")

		c.JSON(http.StatusOK, gin.H{"documentJson": document})
	}
}

// handleGetSchema はテンプレートのJSON Schemaを返すハンドラを返す。
func (s *Server) handleGetSchema() gin.HandlerFunc {
	return func(c *gin.Context) {
		tpl, err := s.store.GetTemplateByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "スキーマが見つかりません"})
				return
			}
			s.internalError(c, "スキーマの取得に失敗しました", err)
			return
		}

		c.JSON(http.StatusOK, templateSchema(tpl))
	}
}

// internalError はエラーを記録して500を返す。
func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
