// Package gateway は図書館管理システムのAPI Gatewayの内部実装を提供する。
//
// 外部に公開する唯一のHTTPサーバーとして、各ルートを所有サービス
// （admin、borrower-service、librarian-service）の内部パスに変換して中継する。
// 業務ロジックは持たず、下流サービスのステータス・ヘッダー・ボディを
// そのまま呼び出し元に返す。ルーティング表は起動時に確定し、以降は変更されない。
package gateway
