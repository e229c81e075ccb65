package idservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nao1215/credgw/pkg/httpclient"
)

// recordedRequest はスタブサーバーが受け取ったリクエスト。
type recordedRequest struct {
	Method        string
	Path          string
	RawQuery      string
	Authorization string
	Body          []byte
}

// newStub は固定レスポンスを返し、受け取ったリクエストを記録するサーバーを生成する。
func newStub(t *testing.T, status int, body string) (*httptest.Server, *recordedRequest) {
	t.Helper()

	rec := &recordedRequest{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.Method = r.Method
		rec.Path = r.URL.Path
		rec.RawQuery = r.URL.RawQuery
		rec.Authorization = r.Header.Get("Authorization")
		rec.Body, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts, rec
}

// TestCreateEcosystem はエコシステム作成を検証する。
func TestCreateEcosystem(t *testing.T) {
	t.Parallel()

	t.Run("説明を送信しエコシステムとトークンを返すこと", func(t *testing.T) {
		t.Parallel()

		ts, rec := newStub(t, http.StatusOK, `{"ecosystem":{"id":"eco-1","uri":"urn:eco:1"},"authToken":"provider-token"}`)

		resp, err := New(ts.URL).CreateEcosystem(context.Background(), CreateEcosystemRequest{Description: "Acme"})
		if err != nil {
			t.Fatalf("CreateEcosystem()でエラーが発生: %v", err)
		}

		if rec.Method != http.MethodPost || rec.Path != "/v1/provider/ecosystems" {
			t.Errorf("リクエスト = %s %s", rec.Method, rec.Path)
		}
		if rec.Authorization != "" {
			t.Errorf("認証なしのクライアントがAuthorizationを送信した: %q", rec.Authorization)
		}
		if string(rec.Body) != `{"description":"Acme"}` {
			t.Errorf("Body = %s", rec.Body)
		}
		if string(resp.Ecosystem) != `{"id":"eco-1","uri":"urn:eco:1"}` {
			t.Errorf("Ecosystem = %s", resp.Ecosystem)
		}
		if resp.AuthToken != "provider-token" {
			t.Errorf("AuthToken = %q, want %q", resp.AuthToken, "provider-token")
		}
	})
}

// TestGetTemplate はテンプレート取得を検証する。
func TestGetTemplate(t *testing.T) {
	t.Parallel()

	t.Run("トークン付きでIDのテンプレートを取得すること", func(t *testing.T) {
		t.Parallel()

		ts, rec := newStub(t, http.StatusOK, `{"template":{"id":"tpl-1","name":"n","schemaUri":"https://schema/tpl-1"}}`)

		resp, err := New(ts.URL, WithAuthToken("T")).GetTemplate(context.Background(), GetTemplateRequest{ID: "tpl-1"})
		if err != nil {
			t.Fatalf("GetTemplate()でエラーが発生: %v", err)
		}
		if rec.Method != http.MethodGet || rec.Path != "/v1/templates/tpl-1" {
			t.Errorf("リクエスト = %s %s", rec.Method, rec.Path)
		}
		if rec.Authorization != "Bearer T" {
			t.Errorf("Authorization = %q, want %q", rec.Authorization, "Bearer T")
		}
		if resp.Template.ID != "tpl-1" || resp.Template.SchemaURI != "https://schema/tpl-1" {
			t.Errorf("Template = %+v", resp.Template)
		}
	})

	t.Run("リモートの404がStatusErrorとして返ること", func(t *testing.T) {
		t.Parallel()

		ts, _ := newStub(t, http.StatusNotFound, `{"error":"not found"}`)

		_, err := New(ts.URL, WithAuthToken("T")).GetTemplate(context.Background(), GetTemplateRequest{ID: "missing"})
		var statusErr *httpclient.StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("StatusErrorではない: %v", err)
		}
		if statusErr.StatusCode != http.StatusNotFound {
			t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, http.StatusNotFound)
		}
	})
}

// TestCreateTemplate はテンプレート作成を検証する。
func TestCreateTemplate(t *testing.T) {
	t.Parallel()

	ts, rec := newStub(t, http.StatusOK, `{"data":{"id":"tpl-9","name":"x","schemaUri":"https://schema/tpl-9"}}`)

	req := CreateTemplateRequest{
		Name: "x",
		Fields: map[string]TemplateField{
			"age": {Title: "Age", Type: FieldTypeNumber},
		},
		FieldOrdering: map[string]FieldOrdering{
			"age": {Order: 0, Section: "Misc"},
		},
	}
	resp, err := New(ts.URL, WithAuthToken("T")).CreateTemplate(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateTemplate()でエラーが発生: %v", err)
	}
	if resp.Data.ID != "tpl-9" || resp.Data.SchemaURI != "https://schema/tpl-9" {
		t.Errorf("Data = %+v", resp.Data)
	}

	var sent CreateTemplateRequest
	if err := json.Unmarshal(rec.Body, &sent); err != nil {
		t.Fatalf("リクエストボディのパースに失敗: %v", err)
	}
	if sent.Fields["age"].Type != FieldTypeNumber {
		t.Errorf("age.type = %q, want %q", sent.Fields["age"].Type, FieldTypeNumber)
	}
	if sent.AppleWalletOptions != nil {
		t.Error("未設定のappleWalletOptionsが送信された")
	}
}

// TestTrustRegistry はトラストレジストリ操作を検証する。
func TestTrustRegistry(t *testing.T) {
	t.Parallel()

	t.Run("メンバー登録でDIDとスキーマを送信すること", func(t *testing.T) {
		t.Parallel()

		ts, rec := newStub(t, http.StatusCreated, `{}`)

		err := New(ts.URL, WithAuthToken("T")).RegisterMember(context.Background(), RegisterMemberRequest{
			DidURI:    "did:123",
			SchemaURI: "https://schema/1",
		})
		if err != nil {
			t.Fatalf("RegisterMember()でエラーが発生: %v", err)
		}
		if rec.Path != "/v1/trust-registry/members" {
			t.Errorf("Path = %q", rec.Path)
		}
		if string(rec.Body) != `{"didUri":"did:123","schemaUri":"https://schema/1"}` {
			t.Errorf("Body = %s", rec.Body)
		}
	})

	t.Run("一覧取得でスキーマURIがクエリにエンコードされ、レスポンスが無加工で返ること", func(t *testing.T) {
		t.Parallel()

		const body = `{"authorizedMembers":[{"did":"did:1","schemaUri":"https://schema/1?v=1"}]}`
		ts, rec := newStub(t, http.StatusOK, body)

		got, err := New(ts.URL, WithAuthToken("T")).ListAuthorizedMembers(context.Background(), ListAuthorizedMembersRequest{
			SchemaURI: "https://schema/1?v=1",
		})
		if err != nil {
			t.Fatalf("ListAuthorizedMembers()でエラーが発生: %v", err)
		}
		if rec.RawQuery != "schemaUri=https%3A%2F%2Fschema%2F1%3Fv%3D1" {
			t.Errorf("RawQuery = %q", rec.RawQuery)
		}
		if string(got) != body {
			t.Errorf("got = %s, want %s", got, body)
		}
	})
}

// TestWalletAndCredential はウォレットとクレデンシャル操作を検証する。
func TestWalletAndCredential(t *testing.T) {
	t.Parallel()

	t.Run("ウォレット検索はフィルタなしのリクエストを送ること", func(t *testing.T) {
		t.Parallel()

		ts, rec := newStub(t, http.StatusOK, `{"items":[],"hasMore":false}`)

		got, err := New(ts.URL, WithAuthToken("W")).SearchWallet(context.Background(), SearchRequest{})
		if err != nil {
			t.Fatalf("SearchWallet()でエラーが発生: %v", err)
		}
		if rec.Method != http.MethodPost || rec.Path != "/v1/wallet/search" {
			t.Errorf("リクエスト = %s %s", rec.Method, rec.Path)
		}
		if string(rec.Body) != `{}` {
			t.Errorf("Body = %s, want {}", rec.Body)
		}
		if string(got) != `{"items":[],"hasMore":false}` {
			t.Errorf("got = %s", got)
		}
	})

	t.Run("ウォレット作成でエコシステムと説明を送信すること", func(t *testing.T) {
		t.Parallel()

		ts, rec := newStub(t, http.StatusOK, `{"authToken":"w","wallet":{"walletId":"w-1"}}`)

		got, err := New(ts.URL).CreateWallet(context.Background(), CreateWalletRequest{EcosystemID: "eco-1", Description: "MyWallet"})
		if err != nil {
			t.Fatalf("CreateWallet()でエラーが発生: %v", err)
		}
		if string(rec.Body) != `{"ecosystemId":"eco-1","description":"MyWallet"}` {
			t.Errorf("Body = %s", rec.Body)
		}
		if string(got) != `{"authToken":"w","wallet":{"walletId":"w-1"}}` {
			t.Errorf("got = %s", got)
		}
	})

	t.Run("クレデンシャル発行で値とガバナンスフラグを送信すること", func(t *testing.T) {
		t.Parallel()

		ts, rec := newStub(t, http.StatusOK, `{"documentJson":"{}"}`)

		got, err := New(ts.URL, WithAuthToken("W")).IssueFromTemplate(context.Background(), IssueFromTemplateRequest{
			TemplateID:        "tpl-1",
			ValuesJSON:        `{"firstName":"Ada"}`,
			IncludeGovernance: true,
		})
		if err != nil {
			t.Fatalf("IssueFromTemplate()でエラーが発生: %v", err)
		}
		if string(rec.Body) != `{"templateId":"tpl-1","valuesJson":"{\"firstName\":\"Ada\"}","includeGovernance":true}` {
			t.Errorf("Body = %s", rec.Body)
		}
		if string(got) != `{"documentJson":"{}"}` {
			t.Errorf("got = %s", got)
		}
	})
}
