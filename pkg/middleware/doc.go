// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// パニックリカバリ、CORS、zerologによるリクエストログ、Prometheus指標、
// サンドボックスが発行するトークンの生成と検証を含む。
package middleware
