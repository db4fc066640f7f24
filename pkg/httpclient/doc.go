// Package httpclient はゲートウェイから下流サービスへリクエストを中継するクライアントを提供する。
//
// 1つの Client を全リクエストで共有する。レスポンスはステータス・ヘッダー・ボディを
// そのまま返し、どのステータスをエラーとみなすかは ErrorPolicy で決める。
// 既定の PassThrough はどのステータスもエラーとして扱わない。
package httpclient
