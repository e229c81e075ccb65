// Package sandbox はアイデンティティサービスのリモートAPIを
// SQLite上で再現する開発用のサービスを提供する。
//
// エコシステム作成時にプロバイダ用トークンを、ウォレット作成時に
// ウォレット用トークンを発行し、以降のAPIはトークンの種類で認可する。
// テンプレート、トラストレジストリ、ウォレットの内容はすべてエコシステム単位で分離される。
package sandbox
