// Package gateway はアイデンティティサービスの前段に立つHTTPゲートウェイを提供する。
//
// ルートごとにクエリ/ボディのパラメータを型付きのリクエストにバインドし、
// 呼び出し元が渡したトークンでリクエスト専用のクライアントを生成して
// リモート操作を1回だけ呼び出し、その結果をJSONで返す。
// ゲートウェイ自身は状態を持たず、トークンの検証やリトライも行わない。
//
// API定義は openapi.yaml に埋め込まれ、リリースモード以外では
// /openapi.yaml と /openapi.json で公開される。
//
// @title Credential Gateway API
// @version 1.0
// @description アイデンティティサービスのエコシステム、テンプレート、トラストレジストリ、ウォレット、クレデンシャル発行を呼び出すゲートウェイ
// @BasePath /
// @schemes http https
package gateway
