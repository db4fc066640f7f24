// Package middleware はゲートウェイのGinエンジンで使用する共通ミドルウェアを提供する。
//
// パニックリカバリ、CORS、リクエストIDの付与を含む。
package middleware
