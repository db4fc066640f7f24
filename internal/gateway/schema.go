package gateway

import (
	"encoding/json"
	"fmt"
	"time"
)

// 下流サービスとやり取りするペイロードの型定義。
// ゲートウェイはこれらを書き換えず、各ルートが返すべき形の宣言としてのみ使う。

// Author は著者。
type Author struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Publisher は出版社。
type Publisher struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// Book は書籍。著者・出版社は未設定の場合がある。
type Book struct {
	ID        int        `json:"id"`
	Title     string     `json:"title"`
	Author    *Author    `json:"author,omitempty"`
	Publisher *Publisher `json:"publisher,omitempty"`
}

// Branch は図書館の分館。
type Branch struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Borrower は利用者。図書カード番号で識別する。
type Borrower struct {
	CardNumber int    `json:"cardNumber"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	Phone      string `json:"phone"`
}

// Loan は貸出記録。
type Loan struct {
	Book     Book     `json:"book"`
	Branch   Branch   `json:"branch"`
	Borrower Borrower `json:"borrower"`
	DateOut  *Date    `json:"dateOut,omitempty"`
	DueDate  *Date    `json:"dueDate,omitempty"`
}

// BranchCopies はある分館が所蔵するある書籍の冊数。
type BranchCopies struct {
	Book   Book   `json:"book"`
	Branch Branch `json:"branch"`
	Copies int    `json:"copies"`
}

// BranchBookCopies は分館ごと・書籍ごとの所蔵冊数の一覧。
// キーは下流サービスが文字列化した分館・書籍。
type BranchBookCopies map[string]map[string]int

// dateLayout はISO-8601の日付形式。
const dateLayout = "2006-01-02"

// Date は時刻を持たない暦日。JSONでは "2006-01-02" 形式の文字列になる。
type Date struct {
	time.Time
}

// ParseDate はISO-8601形式の日付を解析する。
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("日付の形式が不正です（YYYY-MM-DD）: %q", s)
	}
	return Date{Time: t}, nil
}

// String は "2006-01-02" 形式の文字列を返す。
func (d Date) String() string {
	return d.Format(dateLayout)
}

// MarshalJSON はDateをJSON文字列に変換する。
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON はJSON文字列からDateを復元する。
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("日付は文字列である必要があります: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// schemaOf は型Tのゼロ値へのポインタを返す関数を生成する。
// ルーティング表でレスポンスの型を宣言するために使う。
func schemaOf[T any]() func() any {
	return func() any { return new(T) }
}
