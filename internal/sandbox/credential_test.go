package sandbox

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/credgw/pkg/idservice"
)

// testTemplate は検証用のテンプレートを返す。
func testTemplate() *idservice.TemplateData {
	return &idservice.TemplateData{
		ID:        "tpl-1",
		Name:      "Membership",
		SchemaURI: "http://sandbox.test/schemas/tpl-1",
		Fields: map[string]idservice.TemplateField{
			"name":     {Title: "Name", Type: idservice.FieldTypeString},
			"age":      {Title: "Age", Type: idservice.FieldTypeNumber},
			"active":   {Title: "Active", Type: idservice.FieldTypeBool, Optional: true},
			"joinedAt": {Title: "Joined", Type: idservice.FieldTypeDateTime, Optional: true},
			"homepage": {Title: "Homepage", Type: idservice.FieldTypeURI, Optional: true},
		},
	}
}

func TestValidateValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		values  string
		allow   bool
		wantErr string
	}{
		{name: "必須フィールドのみで成功すること", values: `{"name":"Ada","age":36}`},
		{name: "任意フィールドを含めて成功すること", values: `{"name":"Ada","age":36,"active":true,"joinedAt":"2024-01-02T03:04:05Z","homepage":"https://example.com"}`},
		{name: "任意フィールドのnullは省略として扱うこと", values: `{"name":"Ada","age":36,"active":null}`},
		{name: "必須フィールドが欠けるとエラーになること", values: `{"name":"Ada"}`, wantErr: `"age"`},
		{name: "NUMBERに文字列を渡すとエラーになること", values: `{"name":"Ada","age":"36"}`, wantErr: "数値ではありません"},
		{name: "BOOLに数値を渡すとエラーになること", values: `{"name":"Ada","age":36,"active":1}`, wantErr: "真偽値ではありません"},
		{name: "STRINGに数値を渡すとエラーになること", values: `{"name":1,"age":36}`, wantErr: "文字列ではありません"},
		{name: "DATETIMEの形式が不正だとエラーになること", values: `{"name":"Ada","age":36,"joinedAt":"yesterday"}`, wantErr: "RFC3339"},
		{name: "URIが相対だとエラーになること", values: `{"name":"Ada","age":36,"homepage":"example"}`, wantErr: "絶対URI"},
		{name: "テンプレートにないフィールドはエラーになること", values: `{"name":"Ada","age":36,"nick":"a"}`, wantErr: "nick"},
		{name: "追加フィールドが許可されていれば成功すること", values: `{"name":"Ada","age":36,"nick":"a"}`, allow: true},
		{name: "JSONでない値はエラーになること", values: `not json`, wantErr: "解析できません"},
		{name: "配列はエラーになること", values: `[1,2]`, wantErr: "解析できません"},
		{name: "nullはエラーになること", values: `null`, wantErr: "JSONオブジェクトではありません"},
		{name: "後ろに余分なデータがあるとエラーになること", values: `{"name":"Ada","age":36} junk`, wantErr: "余分なデータ"},
		{name: "JSONオブジェクトが2つ続くとエラーになること", values: `{"name":"Ada","age":36}{"name":"Bob","age":1}`, wantErr: "余分なデータ"},
		{name: "末尾の空白は許容すること", values: "{\"name\":\"Ada\",\"age\":36}\n  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tpl := testTemplate()
			tpl.AllowAdditionalFields = tt.allow

			got, err := validateValues(tpl, tt.values)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validateValues()でエラーが発生: %v", err)
				}
				if got["name"] != "Ada" {
					t.Errorf("name = %v, want Ada", got["name"])
				}
				return
			}

			if err == nil {
				t.Fatalf("エラーが返らなかった: %v", got)
			}
			if !errors.Is(err, errInvalidValues) {
				t.Errorf("errInvalidValuesではない: %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("エラー = %q, %q を含まない", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestBuildDocument(t *testing.T) {
	t.Parallel()

	issuedAt := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	eco := &Ecosystem{ID: "eco-1", URI: "urn:credgw:ecosystems:acme"}
	values, err := validateValues(testTemplate(), `{"name":"Ada","age":36.5}`)
	if err != nil {
		t.Fatalf("validateValues()でエラーが発生: %v", err)
	}

	t.Run("ガバナンス情報を含むドキュメントを生成すること", func(t *testing.T) {
		t.Parallel()

		raw, err := buildDocument(issueParams{
			ID:                "cred-1",
			Template:          testTemplate(),
			Issuer:            "did:issuer",
			Values:            values,
			Ecosystem:         eco,
			IncludeGovernance: true,
			IssuedAt:          issuedAt,
		})
		if err != nil {
			t.Fatalf("buildDocument()でエラーが発生: %v", err)
		}

		var doc credentialDocument
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			t.Fatalf("ドキュメントのパースに失敗: %v", err)
		}
		if doc.ID != "urn:uuid:cred-1" {
			t.Errorf("id = %q", doc.ID)
		}
		if doc.Issuer != "did:issuer" {
			t.Errorf("issuer = %q", doc.Issuer)
		}
		if doc.IssuanceDate != "2024-05-06T07:08:09Z" {
			t.Errorf("issuanceDate = %q", doc.IssuanceDate)
		}
		if doc.CredentialSchema.ID != "http://sandbox.test/schemas/tpl-1" {
			t.Errorf("credentialSchema.id = %q", doc.CredentialSchema.ID)
		}
		if doc.IssuerGovernance == nil || doc.IssuerGovernance.EcosystemID != "eco-1" {
			t.Errorf("issuerGovernance = %+v", doc.IssuerGovernance)
		}
		// 数値は元の表記のまま出力される
		if !strings.Contains(raw, `"age":36.5`) {
			t.Errorf("ageの表記が変わった: %s", raw)
		}
	})

	t.Run("ガバナンス不要ならissuerGovernanceを出力しないこと", func(t *testing.T) {
		t.Parallel()

		raw, err := buildDocument(issueParams{
			ID:        "cred-2",
			Template:  testTemplate(),
			Issuer:    "did:issuer",
			Values:    values,
			Ecosystem: eco,
			IssuedAt:  issuedAt,
		})
		if err != nil {
			t.Fatalf("buildDocument()でエラーが発生: %v", err)
		}
		if strings.Contains(raw, "issuerGovernance") {
			t.Errorf("issuerGovernanceが含まれている: %s", raw)
		}
	})
}

func TestTemplateSchema(t *testing.T) {
	t.Parallel()

	schema := templateSchema(testTemplate())

	required, _ := schema["required"].([]string)
	if strings.Join(required, ",") != "age,name" {
		t.Errorf("required = %v, want [age name]", required)
	}
	props, _ := schema["properties"].(map[string]any)
	age, _ := props["age"].(map[string]any)
	if age["type"] != "number" {
		t.Errorf("age.type = %v, want number", age["type"])
	}
	joined, _ := props["joinedAt"].(map[string]any)
	if joined["format"] != "date-time" {
		t.Errorf("joinedAt.format = %v, want date-time", joined["format"])
	}
	if schema["additionalProperties"] != false {
		t.Errorf("additionalProperties = %v, want false", schema["additionalProperties"])
	}
}
