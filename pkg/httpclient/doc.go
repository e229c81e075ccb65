// Package httpclient はリモートサービスとのJSON HTTP通信を行うクライアントを提供する。
//
// idserviceパッケージのトランスポートとして使用する。
// Bearerトークンの付与、2xx以外のレスポンスのStatusErrorへの変換、
// レスポンスボディの無加工での受け渡しを担当する。
package httpclient
