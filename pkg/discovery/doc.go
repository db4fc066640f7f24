// Package discovery は論理サービス名から下流サービスのインスタンスURLを解決する。
//
// 1つのサービス名に複数のインスタンスを登録でき、Resolveのたびに
// ラウンドロビンで次のインスタンスを返す。登録内容は起動時に確定し、
// 以降は変更されない。
package discovery
