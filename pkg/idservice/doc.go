// Package idservice はアイデンティティ/クレデンシャル発行サービスのクライアントを提供する。
//
// エコシステム作成、クレデンシャルテンプレート管理、トラストレジストリ、
// ウォレット操作、クレデンシャル発行の各リモート操作を1メソッドずつ公開する。
// Serviceは生成時に渡された認証トークンに束縛され、状態を持たない。
// リクエストごとに New で生成して使い捨てる。
package idservice
