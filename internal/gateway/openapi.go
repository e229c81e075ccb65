package gateway

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML []byte

// openAPIJSON は埋め込みのAPI定義をJSONに変換する。
func openAPIJSON() ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(openAPIYAML, &doc); err != nil {
		return nil, fmt.Errorf("API定義のパースに失敗: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("API定義のJSON変換に失敗: %w", err)
	}
	return b, nil
}

// handleOpenAPIYAML は埋め込みのAPI定義をそのまま返すハンドラを返す。
func (s *Server) handleOpenAPIYAML() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml; charset=utf-8", openAPIYAML)
	}
}

// handleOpenAPIJSON はAPI定義をJSONで返すハンドラを返す。
func (s *Server) handleOpenAPIJSON() gin.HandlerFunc {
	doc, err := openAPIJSON()
	return func(c *gin.Context) {
		if err != nil {
			s.logger.Error().Err(err).Msg("API定義の読み込みに失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "API定義の読み込みに失敗しました"})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
	}
}
