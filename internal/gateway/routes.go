package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// 下流サービスの論理名。discovery.Registry で実際のURLに解決する。
const (
	// ServiceAdmin は目録・分館・利用者・貸出期限を管理するサービス。
	ServiceAdmin = "admin"
	// ServiceBorrower は利用者向けの貸出・返却サービス。
	ServiceBorrower = "borrower-service"
	// ServiceLibrarian は司書向けの分館・所蔵管理サービス。
	ServiceLibrarian = "librarian-service"
)

// Route はゲートウェイが公開する1つのルートの定義。
type Route struct {
	// Name はログとスパンに使う識別名。
	Name string
	// Method はHTTPメソッド。
	Method string
	// Pattern は外部公開パス。パスパラメータは ":name" で表す。
	Pattern string
	// Service は所有サービスの論理名。
	Service string
	// Target は下流サービスのパス。パスパラメータは "{name}" で表す。
	Target string
	// Query は受け付けるクエリパラメータ。nilの場合はクエリ文字列をそのまま転送する。
	Query []queryParam
	// BodyFrom は束縛したクエリパラメータから下流に送るJSONボディを作る。
	// 指定した場合、束縛したパラメータはクエリとしては転送しない。
	BodyFrom func(url.Values) ([]byte, error)
	// Schema は2xxレスポンスのボディの型を返す。nilの場合は型を宣言しない。
	Schema func() any
}

// Routes はゲートウェイの全ルートを登録順に返す。
//
// 同じメソッド・パスを複数のサービスが提供していた経緯があるため、
// 所有者は次の規則で1つに決めている。
//   - /branches, /books, /branch/:branchId (GET, PUT), /book/:bookId (GET) は librarian-service
//   - 目録の作成・更新・削除と分館の作成・削除、利用者管理、貸出期限は admin
//   - 利用者自身の貸出操作は borrower-service
func Routes() []Route {
	var routes []Route
	routes = append(routes, borrowerRoutes()...)
	routes = append(routes, catalogRoutes()...)
	routes = append(routes, executiveRoutes()...)
	routes = append(routes, librarianRoutes()...)
	return routes
}

// borrowerRoutes は利用者向けの貸出・返却ルート。
func borrowerRoutes() []Route {
	const loanPath = "/borrowers/:cardNo/branches/:branchId/books/:bookId"
	const loanTarget = "/borrowers/{cardNo}/branches/{branchId}/books/{bookId}"
	return []Route{
		{Name: "borrowBook", Method: http.MethodPost, Pattern: loanPath, Service: ServiceBorrower, Target: loanTarget, Schema: schemaOf[Loan]()},
		{Name: "returnBook", Method: http.MethodDelete, Pattern: loanPath, Service: ServiceBorrower, Target: loanTarget},
		{Name: "getLoan", Method: http.MethodGet, Pattern: loanPath, Service: ServiceBorrower, Target: loanTarget, Schema: schemaOf[Loan]()},
		{Name: "getBranchCopies", Method: http.MethodGet, Pattern: "/branches/:branchId/copies", Service: ServiceBorrower, Target: "/branches/{branchId}/copies", Schema: schemaOf[[]BranchCopies]()},
		{Name: "getBranchesWithLoan", Method: http.MethodGet, Pattern: "/borrowers/:cardNo/branches", Service: ServiceBorrower, Target: "/borrowers/{cardNo}/branches", Schema: schemaOf[[]Branch]()},
		{Name: "getBorrowerLoans", Method: http.MethodGet, Pattern: "/borrowers/:cardNo/loans", Service: ServiceBorrower, Target: "/borrowers/{cardNo}/loans", Schema: schemaOf[[]Loan]()},
	}
}

// catalogRoutes は目録管理者向けのルート。
func catalogRoutes() []Route {
	return []Route{
		{Name: "getAuthors", Method: http.MethodGet, Pattern: "/authors", Service: ServiceAdmin, Target: "/authors/", Schema: schemaOf[[]Author]()},
		{Name: "getPublishers", Method: http.MethodGet, Pattern: "/publishers", Service: ServiceAdmin, Target: "/publishers/", Schema: schemaOf[[]Publisher]()},
		{Name: "getAuthor", Method: http.MethodGet, Pattern: "/author/:authorId", Service: ServiceAdmin, Target: "/author/{authorId}", Schema: schemaOf[Author]()},
		{Name: "getPublisher", Method: http.MethodGet, Pattern: "/publisher/:publisherId", Service: ServiceAdmin, Target: "/publisher/{publisherId}", Schema: schemaOf[Publisher]()},
		{Name: "updateAuthor", Method: http.MethodPut, Pattern: "/author/:authorId", Service: ServiceAdmin, Target: "/author/{authorId}", Schema: schemaOf[Author]()},
		{Name: "updatePublisher", Method: http.MethodPut, Pattern: "/publisher/:publisherId", Service: ServiceAdmin, Target: "/publisher/{publisherId}", Schema: schemaOf[Publisher]()},
		{Name: "updateBook", Method: http.MethodPut, Pattern: "/book/:bookId", Service: ServiceAdmin, Target: "/book/{bookId}", Schema: schemaOf[Book]()},
		{
			Name: "createAuthor", Method: http.MethodPost, Pattern: "/author", Service: ServiceAdmin, Target: "/author",
			Query:  []queryParam{required("name")},
			Schema: schemaOf[Author](),
		},
		{
			Name: "createPublisher", Method: http.MethodPost, Pattern: "/publisher", Service: ServiceAdmin, Target: "/publisher",
			Query:  []queryParam{required("name"), withDefault("address", ""), withDefault("phone", "")},
			Schema: schemaOf[Publisher](),
		},
		{
			Name: "createBook", Method: http.MethodPost, Pattern: "/book", Service: ServiceAdmin, Target: "/book",
			Query:  []queryParam{required("title"), optional("author"), optional("publisher")},
			Schema: schemaOf[Book](),
		},
		{Name: "deleteAuthor", Method: http.MethodDelete, Pattern: "/author/:authorId", Service: ServiceAdmin, Target: "/author/{authorId}"},
		{Name: "deletePublisher", Method: http.MethodDelete, Pattern: "/publisher/:publisherId", Service: ServiceAdmin, Target: "/publisher/{publisherId}"},
		{Name: "deleteBook", Method: http.MethodDelete, Pattern: "/book/:bookId", Service: ServiceAdmin, Target: "/book/{bookId}"},
	}
}

// executiveRoutes は分館・利用者の管理と貸出期限の変更を行う管理者向けルート。
func executiveRoutes() []Route {
	const duePath = "/loan/book/:bookId/branch/:branchId/borrower/:borrowerId/due"
	const dueTarget = "/loan/book/{bookId}/branch/{branchId}/borrower/{borrowerId}/due"
	return []Route{
		{Name: "getBorrowers", Method: http.MethodGet, Pattern: "/borrowers", Service: ServiceAdmin, Target: "/borrowers", Schema: schemaOf[[]Borrower]()},
		{Name: "getBorrower", Method: http.MethodGet, Pattern: "/borrower/:cardNumber", Service: ServiceAdmin, Target: "/borrower/{cardNumber}", Schema: schemaOf[Borrower]()},
		{Name: "updateBorrower", Method: http.MethodPut, Pattern: "/borrower/:cardNumber", Service: ServiceAdmin, Target: "/borrower/{cardNumber}", Schema: schemaOf[Borrower]()},
		{Name: "createBranch", Method: http.MethodPost, Pattern: "/branch", Service: ServiceAdmin, Target: "/branch", Schema: schemaOf[Branch]()},
		{Name: "createBorrower", Method: http.MethodPost, Pattern: "/borrower", Service: ServiceAdmin, Target: "/borrower", Schema: schemaOf[Borrower]()},
		{Name: "deleteBranch", Method: http.MethodDelete, Pattern: "/branch/:branchId", Service: ServiceAdmin, Target: "/branch/{branchId}"},
		{Name: "deleteBorrower", Method: http.MethodDelete, Pattern: "/borrower/:cardNumber", Service: ServiceAdmin, Target: "/borrower/{cardNumber}"},
		{
			Name: "overrideDueDate", Method: http.MethodPut, Pattern: duePath, Service: ServiceAdmin, Target: dueTarget,
			Query:    []queryParam{requiredDate("dueDate")},
			BodyFrom: dueDateBody,
			Schema:   schemaOf[Loan](),
		},
		{Name: "getDueDate", Method: http.MethodGet, Pattern: duePath, Service: ServiceAdmin, Target: dueTarget, Schema: schemaOf[Date]()},
	}
}

// librarianRoutes は司書向けのルート。下流では /librarian 配下に置かれている。
func librarianRoutes() []Route {
	return []Route{
		{Name: "getBranches", Method: http.MethodGet, Pattern: "/branches", Service: ServiceLibrarian, Target: "/librarian/branches", Schema: schemaOf[[]Branch]()},
		{Name: "getBooks", Method: http.MethodGet, Pattern: "/books", Service: ServiceLibrarian, Target: "/librarian/books", Schema: schemaOf[[]Book]()},
		{Name: "getBranch", Method: http.MethodGet, Pattern: "/branch/:branchId", Service: ServiceLibrarian, Target: "/librarian/branch/{branchId}", Schema: schemaOf[Branch]()},
		{Name: "getBook", Method: http.MethodGet, Pattern: "/book/:bookId", Service: ServiceLibrarian, Target: "/librarian/book/{bookId}", Schema: schemaOf[Book]()},
		{Name: "updateBranch", Method: http.MethodPut, Pattern: "/branch/:branchId", Service: ServiceLibrarian, Target: "/librarian/branch/{branchId}", Schema: schemaOf[Branch]()},
		{
			Name: "setBranchCopies", Method: http.MethodPut, Pattern: "/branch/:branchId/book/:bookId", Service: ServiceLibrarian, Target: "/librarian/branch/{branchId}/book/{bookId}",
			Query:  []queryParam{requiredInt("noOfCopies")},
			Schema: schemaOf[BranchCopies](),
		},
		{Name: "getBranchBookCopies", Method: http.MethodGet, Pattern: "/branch/:branchId/book/:bookId", Service: ServiceLibrarian, Target: "/librarian/branch/{branchId}/book/{bookId}", Schema: schemaOf[BranchCopies]()},
		{Name: "getAllCopies", Method: http.MethodGet, Pattern: "/branches/books/copies", Service: ServiceLibrarian, Target: "/librarian/branches/books/copies", Schema: schemaOf[BranchBookCopies]()},
	}
}

// dueDateBody は貸出期限の変更で下流に送るボディ（JSONの日付文字列）を作る。
func dueDateBody(params url.Values) ([]byte, error) {
	due, err := ParseDate(params.Get("dueDate"))
	if err != nil {
		return nil, err
	}
	return json.Marshal(due)
}

// patternParams はパターン中のパスパラメータ名を順に返す。
func patternParams(pattern string) []string {
	var names []string
	for _, seg := range strings.Split(pattern, "/") {
		if name, ok := strings.CutPrefix(seg, ":"); ok {
			names = append(names, name)
		}
	}
	return names
}

// targetParams はTarget中のプレースホルダ名を順に返す。
func targetParams(target string) []string {
	var names []string
	for _, seg := range strings.Split(target, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			names = append(names, seg[1:len(seg)-1])
		}
	}
	return names
}

// validateRoutes はルーティング表の整合性を検証する。
// メソッドとパスの組が重複していないこと、Targetのプレースホルダが
// すべてPatternで定義されていることを確認する。
func validateRoutes(routes []Route) error {
	seen := make(map[string]string, len(routes))
	for _, r := range routes {
		key := r.Method + " " + r.Pattern
		if owner, ok := seen[key]; ok {
			return fmt.Errorf("ルートが重複しています: %s (%s と %s)", key, owner, r.Name)
		}
		seen[key] = r.Name

		defined := make(map[string]struct{})
		for _, name := range patternParams(r.Pattern) {
			defined[name] = struct{}{}
		}
		for _, name := range targetParams(r.Target) {
			if _, ok := defined[name]; !ok {
				return fmt.Errorf("ルート %s のTargetに未定義のパラメータがあります: %s", r.Name, name)
			}
		}
		if r.BodyFrom != nil && len(r.Query) == 0 {
			return fmt.Errorf("ルート %s はBodyFromを使うにはQueryの定義が必要です", r.Name)
		}
	}
	return nil
}

// pathParams は登録パターンとエスケープ済みの実パスを突き合わせ、
// パスパラメータをデコードして返す。
func pathParams(pattern, escapedPath string) (map[string]string, error) {
	patSegs := strings.Split(pattern, "/")
	pathSegs := strings.Split(escapedPath, "/")
	if len(patSegs) != len(pathSegs) {
		return nil, fmt.Errorf("パスがパターンに一致しません: pattern=%s, path=%s", pattern, escapedPath)
	}

	params := make(map[string]string)
	for i, seg := range patSegs {
		name, ok := strings.CutPrefix(seg, ":")
		if !ok {
			continue
		}
		v, err := url.PathUnescape(pathSegs[i])
		if err != nil {
			return nil, fmt.Errorf("パスパラメータ %s のデコードに失敗: %w", name, err)
		}
		params[name] = v
	}
	return params, nil
}

// expandTarget はTargetのプレースホルダをパーセントエンコードした値で置き換える。
func expandTarget(target string, params map[string]string) (string, error) {
	segs := strings.Split(target, "/")
	for i, seg := range segs {
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
			continue
		}
		name := seg[1 : len(seg)-1]
		v, ok := params[name]
		if !ok {
			return "", fmt.Errorf("パスパラメータ %s がありません", name)
		}
		segs[i] = url.PathEscape(v)
	}
	return strings.Join(segs, "/"), nil
}
