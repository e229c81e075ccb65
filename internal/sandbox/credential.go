package sandbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"time"

	"github.com/nao1215/credgw/pkg/idservice"
)

// errInvalidValues はクレデンシャルの値がテンプレートに適合しないことを表す。
var errInvalidValues = errors.New("クレデンシャルの値が不正です")

// credentialContext はW3C Verifiable Credentialsのコンテキスト。
const credentialContext = "https://www.w3.org/2018/credentials/v1"

// credentialDocument は発行するクレデンシャルのドキュメント。
type credentialDocument struct {
	Context           []string          `json:"@context"`
	ID                string            `json:"id"`
	Type              []string          `json:"type"`
	Issuer            string            `json:"issuer"`
	IssuanceDate      string            `json:"issuanceDate"`
	CredentialSchema  credentialSchema  `json:"credentialSchema"`
	CredentialSubject map[string]any    `json:"credentialSubject"`
	IssuerGovernance  *issuerGovernance `json:"issuerGovernance,omitempty"`
}

type credentialSchema struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// issuerGovernance は発行元エコシステムの情報。
type issuerGovernance struct {
	EcosystemID  string `json:"ecosystemId"`
	EcosystemURI string `json:"ecosystemUri"`
}

// validateValues はJSONエンコードされた値をテンプレートに照らして検証し、デコード結果を返す。
// 数値は精度を保つためjson.Numberのまま返す。
func validateValues(t *idservice.TemplateData, valuesJSON string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(valuesJSON)))
	dec.UseNumber()

	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("%w: JSONオブジェクトとして解析できません: %v", errInvalidValues, err)
	}
	if values == nil {
		return nil, fmt.Errorf("%w: JSONオブジェクトではありません", errInvalidValues)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: JSONオブジェクトの後に余分なデータがあります", errInvalidValues)
	}

	names := make([]string, 0, len(t.Fields))
	for name := range t.Fields {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		field := t.Fields[name]
		v, ok := values[name]
		if !ok || v == nil {
			if field.Optional {
				continue
			}
			return nil, fmt.Errorf("%w: 必須フィールド %q がありません", errInvalidValues, name)
		}
		if err := checkFieldType(field.Type, v); err != nil {
			return nil, fmt.Errorf("%w: フィールド %q: %v", errInvalidValues, name, err)
		}
	}

	if !t.AllowAdditionalFields {
		extra := make([]string, 0)
		for name := range values {
			if _, ok := t.Fields[name]; !ok {
				extra = append(extra, name)
			}
		}
		if len(extra) > 0 {
			slices.Sort(extra)
			return nil, fmt.Errorf("%w: テンプレートにないフィールドがあります: %v", errInvalidValues, extra)
		}
	}

	return values, nil
}

// checkFieldType は値がフィールドの型に適合するかを検証する。
func checkFieldType(fieldType idservice.FieldType, v any) error {
	switch fieldType {
	case idservice.FieldTypeNumber:
		if _, ok := v.(json.Number); !ok {
			return errors.New("数値ではありません")
		}
	case idservice.FieldTypeBool:
		if _, ok := v.(bool); !ok {
			return errors.New("真偽値ではありません")
		}
	case idservice.FieldTypeDateTime:
		s, ok := v.(string)
		if !ok {
			return errors.New("文字列ではありません")
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return errors.New("RFC3339形式の日時ではありません")
		}
	case idservice.FieldTypeURI:
		s, ok := v.(string)
		if !ok {
			return errors.New("文字列ではありません")
		}
		if u, err := url.Parse(s); err != nil || u.Scheme == "" {
			return errors.New("絶対URIではありません")
		}
	default:
		if _, ok := v.(string); !ok {
			return errors.New("文字列ではありません")
		}
	}
	return nil
}

// validFieldType はテンプレートに指定できるフィールド型かを返す。
func validFieldType(fieldType idservice.FieldType) bool {
	switch fieldType {
	case idservice.FieldTypeString, idservice.FieldTypeNumber, idservice.FieldTypeBool,
		idservice.FieldTypeDateTime, idservice.FieldTypeURI:
		return true
	}
	return false
}

// issueParams はbuildDocumentの入力。
type issueParams struct {
	ID                string
	Template          *idservice.TemplateData
	Issuer            string
	Values            map[string]any
	Ecosystem         *Ecosystem
	IncludeGovernance bool
	IssuedAt          time.Time
}

// buildDocument はクレデンシャルのドキュメントを組み立ててJSON文字列で返す。
func buildDocument(p issueParams) (string, error) {
	doc := credentialDocument{
		Context:      []string{credentialContext},
		ID:           "urn:uuid:" + p.ID,
		Type:         []string{"VerifiableCredential", p.Template.Name},
		Issuer:       p.Issuer,
		IssuanceDate: p.IssuedAt.UTC().Format(time.RFC3339),
		CredentialSchema: credentialSchema{
			ID:   p.Template.SchemaURI,
			Type: "JsonSchemaValidator2018",
		},
		CredentialSubject: p.Values,
	}
	if p.IncludeGovernance {
		doc.IssuerGovernance = &issuerGovernance{
			EcosystemID:  p.Ecosystem.ID,
			EcosystemURI: p.Ecosystem.URI,
		}
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("ドキュメントのエンコードに失敗: %w", err)
	}
	return string(b), nil
}

// templateSchema はテンプレートからJSON Schemaを生成する。
func templateSchema(t *idservice.TemplateData) map[string]any {
	properties := make(map[string]any, len(t.Fields))
	required := make([]string, 0, len(t.Fields))
	for name, field := range t.Fields {
		prop := map[string]any{
			"title":       field.Title,
			"description": field.Description,
		}
		switch field.Type {
		case idservice.FieldTypeNumber:
			prop["type"] = "number"
		case idservice.FieldTypeBool:
			prop["type"] = "boolean"
		case idservice.FieldTypeDateTime:
			prop["type"] = "string"
			prop["format"] = "date-time"
		case idservice.FieldTypeURI:
			prop["type"] = "string"
			prop["format"] = "uri"
		default:
			prop["type"] = "string"
		}
		properties[name] = prop
		if !field.Optional {
			required = append(required, name)
		}
	}
	slices.Sort(required)

	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"$id":                  t.SchemaURI,
		"title":                t.Title,
		"description":          t.Description,
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": t.AllowAdditionalFields,
	}
}
